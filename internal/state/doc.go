// Package state holds the latest notes page shared between the background
// poller and the UI.
//
// The poller is the single writer: each refresh calls Update with the page it
// fetched (or the error it hit). The UI reads with Snapshot on its own tick.
// A failed refresh keeps the previous page and only records the error, so the
// list stays usable while the service is unreachable. ConsecutiveFailures
// drives the poller's backoff.
//
// Snapshots are copies. Callers may sort or filter Snapshot.Notes freely, and
// Visible drops the notes the archive coordinator is currently hiding.
//
// The zero Store is ready to use.
package state
