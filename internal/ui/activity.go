package ui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/valibibe/recall/internal/logtail"
)

// renderActivity renders the log tail pane.
func (m Model) renderActivity() string {
	title := "Activity"
	if m.logPath != "" {
		title += " " + truncateMiddle(m.logPath, 40)
	}
	return m.renderTitledBox(title, m.activityViewport.View(), m.width, m.contentHeight(), true)
}

// updateActivityViewport re-renders the tail and keeps it pinned to the
// newest entry.
func (m *Model) updateActivityViewport() {
	if !m.ready {
		return
	}
	styles := m.theme.Styles()
	switch {
	case m.activityErr != nil:
		m.activityViewport.SetContent(styles.DangerText.Render("Could not read log: " + m.activityErr.Error()))
		return
	case len(m.activity) == 0:
		m.activityViewport.SetContent(styles.MutedText.Render("No activity yet"))
		return
	}

	lines := make([]string, 0, len(m.activity))
	for _, e := range m.activity {
		lines = append(lines, m.formatEntry(e, m.activityViewport.Width))
	}
	atBottom := m.activityViewport.AtBottom() || m.activityViewport.TotalLineCount() == 0
	m.activityViewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.activityViewport.GotoBottom()
	}
}

// formatEntry renders one log entry: time, level, message, then the fields in
// key order.
func (m Model) formatEntry(e logtail.Entry, width int) string {
	styles := m.theme.Styles()
	if e.Message == "" && e.Level == "" {
		return styles.FaintText.Render(truncate(e.Raw, width))
	}

	ts := "--:--:--"
	if !e.Time.IsZero() {
		ts = e.Time.Local().Format("15:04:05")
	}

	level := strings.ToUpper(e.Level)
	if level == "" {
		level = "INFO"
	}

	var b strings.Builder
	b.WriteString(styles.FaintText.Render(ts))
	b.WriteString(" ")
	b.WriteString(m.levelStyle(level).Render(padRight(level, 5)))
	b.WriteString(" ")
	b.WriteString(styles.Text.Render(e.Message))

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(styles.MutedText.Render(k + "="))
		b.WriteString(styles.AccentText.Render(e.Fields[k]))
	}
	return b.String()
}

func (m Model) levelStyle(level string) lipgloss.Style {
	var color string
	switch level {
	case "ERROR", "FATAL", "PANIC":
		color = m.theme.Danger
	case "WARN", "WARNING":
		color = m.theme.Warning
	case "DEBUG", "TRACE":
		color = m.theme.Faint
	default:
		color = m.theme.Info
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}
