package ui

import (
	"errors"
	"fmt"

	"github.com/valibibe/recall/internal/actionqueue"
	"github.com/valibibe/recall/internal/archive"
	"github.com/valibibe/recall/internal/notes"
)

// renderSnackbar renders the bottom line: the undo banner for the latest
// archive request, or else the most recent notice.
func (m Model) renderSnackbar() string {
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	bg := NewBgStyle(m.theme.SurfaceAlt)
	sep := bg.Spaces(2)

	var parts []string
	if m.archiver != nil {
		if banner, ok := m.archiver.Banner(); ok {
			parts = m.bannerParts(banner, styles, bg)
		}
	}
	if len(parts) == 0 && m.notice != "" {
		style := styles.MutedText
		if m.noticeError {
			style = styles.DangerText
		}
		parts = append(parts, bg.Render(m.notice, style))
	}

	return styles.Footer.Background(bg.Color()).Width(m.width).Render(bg.Join(parts, sep))
}

func (m Model) bannerParts(b archive.Banner, styles Styles, bg BgStyle) []string {
	title := fmt.Sprintf("%q", truncate(displayTitle(b.Title), 40))
	colon := bg.Sep(":")
	hint := func(k, desc string) string {
		return bg.Render(k, styles.AccentText) + colon + bg.Render(desc, styles.MutedText)
	}
	state := styles.StatusStyle(b.State.String()).Render(b.State.String())

	switch b.State {
	case archive.StatePendingUndo:
		return []string{
			state,
			bg.Render("Archived "+title, styles.Text),
			hint("u", "Undo"),
			bg.Render(formatCountdown(b.Remaining), styles.WarningText),
		}
	case archive.StateCommitting:
		return []string{
			state,
			bg.Render("Archiving "+title+"...", styles.Text),
			hint("u", "Undo"),
		}
	case archive.StateQueued:
		return []string{
			state,
			bg.Render("Offline: "+title+" will be archived when the service is back", styles.WarningText),
			hint("u", "Undo"),
			hint("x", "Dismiss"),
		}
	default:
		return []string{
			state,
			bg.Render("Archived "+title, styles.SuccessText),
			hint("u", "Undo"),
			hint("x", "Dismiss"),
		}
	}
}

// describeFailure turns an absorbed failure into snackbar text.
func describeFailure(f archive.Failure) string {
	subject := "note"
	if f.NoteID != "" {
		subject = "note " + truncate(f.NoteID, 8)
	}
	reason := "failed"
	switch {
	case f.Err == nil:
	case errors.Is(f.Err, actionqueue.ErrOffline), notes.IsConnectivity(f.Err):
		reason = "failed: service unreachable"
	case notes.IsNotFound(f.Err):
		reason = "failed: note no longer exists"
	case notes.IsUnauthorized(f.Err):
		reason = "failed: not authorized"
	default:
		reason = "failed: " + f.Err.Error()
	}

	switch f.Op {
	case archive.OpArchive:
		return fmt.Sprintf("Archiving %s %s", subject, reason)
	case archive.OpUnarchive:
		return fmt.Sprintf("Restoring %s %s", subject, reason)
	case archive.OpEnqueue:
		return fmt.Sprintf("Could not queue %s for retry: %v", subject, f.Err)
	case archive.OpReplay:
		return fmt.Sprintf("Replay %s", reason)
	default:
		return fmt.Sprintf("%s %s", subject, reason)
	}
}
