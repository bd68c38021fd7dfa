package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/prefs"
)

// renderHeader renders the status bar with all information.
func (m Model) renderHeader() string {
	// Header uses Surface background
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if !m.snapshot.HasPage {
		return m.renderConnectingHeader(styles, bg)
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		Render(m.buildStatusContent(styles, bg))
}

// renderConnectingHeader shows the loading or error state before the first
// page arrives.
func (m Model) renderConnectingHeader(styles Styles, bg BgStyle) string {
	sep := bg.Spaces(2)

	if m.snapshot.LastError != nil {
		last := "soon"
		if !m.lastUpdated.IsZero() {
			last = m.lastUpdated.Format("15:04:05")
		}
		parts := []string{
			bg.Render("recall", styles.Logo),
			bg.Render("NOTES "+classifyConnectionError(m.snapshot.LastError), styles.DangerText.Bold(true)),
			bg.Render("Retrying...", styles.WarningText.Bold(true)),
			bg.Render(last, styles.MutedText),
		}
		if m.logPath != "" {
			parts = append(parts,
				bg.Render("logs", styles.FaintText)+bg.Space()+
					bg.Render(truncateMiddle(m.logPath, 50), styles.MutedText))
		}
		return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
	}

	return styles.Header.Width(m.width).Render(
		bg.Render("recall", styles.Logo) + sep +
			bg.Render("Loading notes...", styles.WarningText.Bold(true)),
	)
}

// buildStatusContent builds the status bar content string.
func (m Model) buildStatusContent(styles Styles, bg BgStyle) string {
	compact := m.width < LayoutCompactWidth
	sep := bg.Spaces(2)

	parts := []string{bg.Render("recall", styles.Logo)}

	if m.isOnline() {
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	} else {
		parts = append(parts, bg.Render("● OFFLINE", styles.DangerText))
	}

	if m.archiver != nil {
		queued := m.archiver.QueueLen()
		queueStyle := styles.Text
		if queued > 0 {
			queueStyle = styles.WarningText.Bold(true)
		}
		parts = append(parts,
			bg.Render("Queued:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", queued), queueStyle))
	}

	parts = append(parts, bg.Render(m.pageLabel(), styles.Text))

	if !compact {
		due := 0
		now := m.now()
		for _, n := range m.visibleNotes() {
			if n.DueForReview(now) {
				due++
			}
		}
		if due > 0 {
			dueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor("due")))
			parts = append(parts, bg.Render(fmt.Sprintf("%d due", due), dueStyle))
		}
	}

	if warning, danger := m.tokenWarning(); warning != "" {
		style := styles.WarningText
		if danger {
			style = styles.DangerText
		}
		parts = append(parts, bg.Render(warning, style))
	}

	if err := m.snapshot.LastError; err != nil {
		parts = append(parts, bg.Render("stale: "+classifyConnectionError(err), styles.WarningText))
	}

	if !compact {
		parts = append(parts, bg.Render(formatTimestamp(m.snapshot.LastUpdated), styles.FaintText))
	}

	return bg.Join(parts, sep)
}

// pageLabel describes the current page, e.g. "Notes 21-40 of 57".
func (m Model) pageLabel() string {
	label := ternary(m.archived, "Archived", "Notes")
	total := m.snapshot.Total
	count := len(m.snapshot.Notes)
	if total == 0 || count == 0 {
		return label + " 0"
	}
	first := m.snapshot.Query.Offset + 1
	last := m.snapshot.Query.Offset + count
	return fmt.Sprintf("%s %d-%d of %d", label, first, last, total)
}

// tokenWarning returns the header text for an expiring token and whether it
// has already expired.
func (m Model) tokenWarning() (string, bool) {
	if m.tokenExpiry.IsZero() {
		return "", false
	}
	left := m.tokenExpiry.Sub(m.now())
	switch {
	case left <= 0:
		return "TOKEN EXPIRED", true
	case left <= TokenWarnBefore:
		return "token expires " + formatRelative(m.tokenExpiry, m.now()), false
	default:
		return "", false
	}
}

// classifyConnectionError turns a poll error into a short header label.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "status 401"), strings.Contains(msg, "status 403"):
		return "UNAUTHORIZED"
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

// renderCommandBar renders the command hints bar.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewActivity:
		commands = []cmd{
			{"j/k", "Scroll"},
			{"L", "Notes"},
			{"u", "Undo"},
			{"R", "Replay"},
			{"?", "More"},
		}
	default:
		if m.archived {
			commands = []cmd{
				{"r", "Restore"},
				{"A", "Active"},
			}
		} else {
			commands = []cmd{
				{"a", "Archive"},
				{"u", "Undo"},
				{"A", "Archived"},
			}
		}
		commands = append(commands,
			cmd{"/", "Search"},
			cmd{"s", sortLabel(m.sortBy)},
			cmd{"o", strings.ToUpper(m.order)},
			cmd{"v", ternary(m.viewMode == prefs.ViewRow, "Rows", "Cards")},
			cmd{"[/]", "Page"},
			cmd{"L", "Activity"},
			cmd{"?", "More"},
		)
	}

	colon := bg.Sep(":")
	sep := bg.Spaces(2)

	segments := make([]string, 0, len(commands)+2)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}

	if m.searchTerm != "" {
		segments = append(segments, bg.Render("/"+truncate(m.searchTerm, 18), styles.AccentText))
	}

	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, sep))
}

func sortLabel(sortBy string) string {
	if sortBy == notes.SortNextReviewAt {
		return "Review"
	}
	return "Created"
}
