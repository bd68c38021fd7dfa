package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/valibibe/recall/internal/archive"
	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/prefs"
)

// paneWidths splits the terminal between the list and detail panes.
// Extra wide (>= 160): 30% list, 70% detail. Default: 40% list, 60% detail.
func (m Model) paneWidths() (int, int) {
	list := m.width * 40 / 100
	if m.width >= LayoutExtraWideWidth {
		list = m.width * 30 / 100
	}
	return list, m.width - list
}

func (m Model) linesPerNote() int {
	if m.viewMode == prefs.ViewRow {
		return 1
	}
	return 4
}

// listCapacity is how many notes fit in the list pane.
func (m Model) listCapacity() int {
	return max((m.contentHeight()-2)/m.linesPerNote(), 1)
}

// renderNotes renders the notes view with split layout (list + detail).
func (m Model) renderNotes() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	items := m.visibleNotes()
	if len(items) == 0 {
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center,
			styles.MutedText.Render(m.emptyMessage()))
	}

	listWidth, detailWidth := m.paneWidths()

	listFocused := m.focusedPane == 0
	listBg := ternary(listFocused, m.theme.FocusBg, m.theme.SurfaceAlt)
	listPane := m.renderTitledBox(m.listTitle(len(items)), m.renderNoteList(items, listWidth-2, listBg), listWidth, height, listFocused)

	detailPane := m.renderTitledBox("Details", m.detailViewport.View(), detailWidth, height, m.focusedPane == 1)

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

func (m Model) emptyMessage() string {
	switch {
	case m.searchTerm != "":
		return fmt.Sprintf("No notes match %q", m.searchTerm)
	case m.archived:
		return "No archived notes"
	case !m.snapshot.HasPage:
		return "Waiting for notes..."
	default:
		return "No notes"
	}
}

func (m Model) listTitle(visible int) string {
	label := ternary(m.archived, "Archived", "Notes")
	if hidden := len(m.snapshot.Notes) - visible; hidden > 0 {
		return fmt.Sprintf("%s (%d, %d hidden)", label, visible, hidden)
	}
	return fmt.Sprintf("%s (%d)", label, visible)
}

// renderNoteList renders the window of notes around the selection.
func (m Model) renderNoteList(items []notes.Note, width int, bgColor string) string {
	capacity := m.listCapacity()
	start := 0
	if m.selectedRow >= capacity {
		start = m.selectedRow - capacity + 1
	}
	end := min(start+capacity, len(items))

	var lines []string
	for i := start; i < end; i++ {
		selected := i == m.selectedRow
		rowBg := ternary(selected, m.theme.SelectionBg, bgColor)
		var block []string
		if m.viewMode == prefs.ViewRow {
			block = []string{m.formatNoteRow(items[i], width, rowBg, selected)}
		} else {
			block = m.formatNoteCard(items[i], width, rowBg, selected)
		}
		for _, content := range block {
			lines = append(lines, lipgloss.NewStyle().
				Background(lipgloss.Color(rowBg)).
				Width(width).
				Render(content))
		}
		if m.viewMode != prefs.ViewRow {
			lines = append(lines, "")
		}
	}
	return strings.Join(lines, "\n")
}

// noteStyles picks per-part styles. Selected rows use SelectionText for every
// part so the text keeps its contrast.
func (m Model) noteStyles(level int, selected bool) (title, muted, memory lipgloss.Style) {
	if selected {
		sel := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
		return sel, sel, sel
	}
	styles := m.theme.Styles()
	return styles.Text, styles.MutedText,
		lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.MemoryColor(level)))
}

// formatNoteRow formats a note as "42% Title · in 2d".
func (m Model) formatNoteRow(n notes.Note, width int, bgColor string, selected bool) string {
	bg := NewBgStyle(bgColor)
	level := n.ClampedMemoryLevel()
	titleStyle, mutedStyle, memoryStyle := m.noteStyles(level, selected)

	levelStr := fmt.Sprintf("%3d%%", level)
	review := m.reviewLabel(n)
	titleWidth := max(width-len(levelStr)-len([]rune(review))-5, 10)

	return bg.Render(levelStr, memoryStyle) + bg.Space() +
		bg.Render(truncate(displayTitle(n.Title), titleWidth), titleStyle) +
		bg.Render(" · ", mutedStyle) +
		bg.Render(review, mutedStyle)
}

// formatNoteCard formats a note as three lines: title, excerpt and a memory
// bar with the review date.
func (m Model) formatNoteCard(n notes.Note, width int, bgColor string, selected bool) []string {
	bg := NewBgStyle(bgColor)
	level := n.ClampedMemoryLevel()
	titleStyle, mutedStyle, memoryStyle := m.noteStyles(level, selected)
	inner := max(width-2, 10)

	barWidth := min(20, max(inner/3, 5))
	meta := fmt.Sprintf(" %d%%  %s", level, m.reviewLabel(n))

	return []string{
		bg.Space() + bg.Render(truncate(displayTitle(n.Title), inner), titleStyle.Bold(true)),
		bg.Space() + bg.Render(truncate(firstLine(n.Content), inner), mutedStyle),
		bg.Space() + bg.Render(memoryBar(level, barWidth), memoryStyle) + bg.Render(truncate(meta, inner-barWidth), mutedStyle),
	}
}

func (m Model) reviewLabel(n notes.Note) string {
	if n.NextReviewAt == nil {
		return "no review"
	}
	if n.DueForReview(m.now()) {
		return "due"
	}
	return "review " + formatRelative(*n.NextReviewAt, m.now())
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

func (m *Model) resizeViewports() {
	_, detailWidth := m.paneWidths()
	inner := max(m.contentHeight()-2, 1)
	m.detailViewport.Width = max(detailWidth-4, 1)
	m.detailViewport.Height = inner
	m.activityViewport.Width = max(m.width-4, 1)
	m.activityViewport.Height = inner
}

// updateDetailViewport refreshes the detail pane for the selected note.
func (m *Model) updateDetailViewport() {
	if !m.ready {
		return
	}
	note, ok := m.selectedNote()
	if !ok {
		m.detailViewport.SetContent(m.theme.Styles().MutedText.Render("Select a note"))
		return
	}
	m.detailViewport.SetContent(m.renderDetailContent(note, m.detailViewport.Width))
	if note.ID != m.detailID {
		m.detailViewport.GotoTop()
		m.detailID = note.ID
	}
}

// renderDetailContent renders the detail pane body for one note.
func (m Model) renderDetailContent(n notes.Note, width int) string {
	styles := m.theme.Styles()
	now := m.now()
	var b strings.Builder

	b.WriteString(styles.Text.Bold(true).Render(truncate(displayTitle(n.Title), width)))
	b.WriteString("\n\n")

	level := n.ClampedMemoryLevel()
	memoryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.MemoryColor(level)))
	b.WriteString(styles.MutedText.Render("Memory:    "))
	b.WriteString(memoryStyle.Render(memoryBar(level, min(20, max(width-16, 5)))))
	b.WriteString(styles.Text.Render(fmt.Sprintf(" %d%%", level)))
	b.WriteString("\n")

	if !n.CreatedAt.IsZero() {
		b.WriteString(styles.MutedText.Render("Created:   "))
		b.WriteString(styles.Text.Render(n.CreatedAt.Local().Format("2006-01-02 15:04")))
		b.WriteString(styles.FaintText.Render(" (" + formatRelative(n.CreatedAt, now) + ")"))
		b.WriteString("\n")
	}

	b.WriteString(styles.MutedText.Render("Review:    "))
	switch {
	case n.NextReviewAt == nil:
		b.WriteString(styles.FaintText.Render("not scheduled"))
	case n.DueForReview(now):
		due := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor("due"))).Bold(true)
		b.WriteString(due.Render("due " + formatRelative(*n.NextReviewAt, now)))
	default:
		b.WriteString(styles.Text.Render(n.NextReviewAt.Local().Format("2006-01-02")))
		b.WriteString(styles.FaintText.Render(" (" + formatRelative(*n.NextReviewAt, now) + ")"))
	}
	b.WriteString("\n")

	if status := m.noteStatus(n); status != "" {
		b.WriteString(styles.MutedText.Render("Status:    "))
		b.WriteString(m.theme.Styles().StatusStyle(status).Render(status))
		b.WriteString("\n")
	}

	b.WriteString(styles.MutedText.Render("ID:        "))
	b.WriteString(styles.FaintText.Render(n.ID))
	b.WriteString("\n\n")

	content := strings.TrimSpace(n.Content)
	if content == "" {
		b.WriteString(styles.FaintText.Render("(no content)"))
	} else {
		b.WriteString(styles.Text.Width(width).Render(content))
	}
	return b.String()
}

// noteStatus is the archive status shown in the detail pane.
func (m Model) noteStatus(n notes.Note) string {
	if m.archiver != nil {
		if st := m.archiver.State(n.ID); st != archive.StateIdle {
			return st.String()
		}
	}
	if n.Archived {
		return archive.StateCommitted.String()
	}
	return ""
}

// renderTitledBox renders content in a box with the title embedded in the
// top border: ┌─── Title ───┐. Focused boxes use BorderFocus and FocusBg.
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	borderColorStr := ternary(focused, m.theme.BorderFocus, m.theme.Border)
	bgColorStr := ternary(focused, m.theme.FocusBg, m.theme.SurfaceAlt)
	bg := NewBgStyle(bgColorStr)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColorStr))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 0)
	title = truncate(title, max(innerWidth-4, 1))
	titleLen := len([]rune(title))
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	topBorder := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)

	bottomBorder := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", innerWidth), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(bg.Color())
	contentLines := strings.Split(content, "\n")
	boxHeight := max(height-2, 0)

	lines := make([]string, 0, boxHeight)
	for i := 0; i < boxHeight; i++ {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		lines = append(lines,
			bg.Render("│", borderStyle)+
				contentStyle.Render(line)+
				bg.Render("│", borderStyle))
	}

	return topBorder + "\n" + strings.Join(lines, "\n") + "\n" + bottomBorder
}
