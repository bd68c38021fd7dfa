package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal is the interface for modal dialogs.
// Update returns the updated modal, a command, and whether the modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// searchModal edits the note search term. Enter submits, esc cancels, and an
// empty submission clears the search.
type searchModal struct {
	input     textinput.Model
	submitted bool
}

func newSearchModal(current string) *searchModal {
	ti := textinput.New()
	ti.Placeholder = "title or content"
	ti.Prompt = "/ "
	ti.CharLimit = 200
	ti.SetValue(current)
	ti.CursorEnd()
	ti.Focus()
	return &searchModal{input: ti}
}

func (s *searchModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Confirm):
			s.submitted = true
			return s, nil, true
		case key.Matches(msg, keys.Escape), msg.Type == tea.KeyCtrlC:
			return s, nil, true
		}
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd, false
}

func (s *searchModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	s.input.PromptStyle = styles.AccentText
	s.input.TextStyle = styles.Text
	s.input.PlaceholderStyle = styles.FaintText

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Search notes"))
	b.WriteString("\n\n")
	b.WriteString(s.input.View())
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("enter apply · esc cancel · empty clears"))

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(min(60, max(width-4, 20)))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}
