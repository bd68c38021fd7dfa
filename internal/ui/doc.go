// Package ui is the Bubble Tea terminal interface for recall.
//
// # Layout
//
//	┌ header: connectivity, queued actions, page, token expiry ┐
//	│ command bar                                              │
//	│ notes list (cards or rows)  │  detail viewport           │
//	└ snackbar: undo banner or latest notice                   ┘
//
// The list shows the poller's current page minus the notes the archive
// coordinator hides. Pressing a hides the selected note immediately and
// opens the undo window; u undoes the latest request from anywhere. The
// snackbar counts the window down, then reports whether the archive was
// confirmed or queued for replay.
//
// # Files
//
//   - app.go: Model, messages, key routing and Run
//   - notes.go: list and detail rendering
//   - snackbar.go: undo banner and failure text
//   - activity.go: tail of the client log (L)
//   - search.go: search modal
//   - header.go: status and command bars
//   - theme.go, style_helpers.go: palettes and background-safe rendering
//
// Preferences (theme, card/row mode, sort and page size) are written back to
// prefs.toml as they change.
package ui
