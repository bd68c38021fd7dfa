// Package logtail reads the end of recall's own log file for the activity
// pane.
//
// Read keeps a ring buffer of maxLines so large files are scanned once with
// bounded memory. ReadEntries and Parse understand the key=value layout the
// logrus text formatter writes:
//
//	time="2024-05-01T09:00:00Z" level=info msg="archive committed" note_id=6f1c...
//
// Quoted values may contain escaped quotes. Lines in any other shape are kept
// verbatim in Entry.Message so nothing is dropped from the pane.
package logtail
