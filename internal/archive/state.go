package archive

import (
	"time"

	"github.com/valibibe/recall/internal/notes"
)

// State is the lifecycle position of one note's archive request.
type State int

const (
	// StateIdle means no request is tracked for the note.
	StateIdle State = iota
	// StatePendingUndo means the note is hidden and the undo window is open.
	StatePendingUndo
	// StateCommitting means the archive call is in flight.
	StateCommitting
	// StateQueued means the archive call failed and the action waits in the
	// durable queue.
	StateQueued
	// StateCommitted means the server confirmed the archive.
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingUndo:
		return "pending"
	case StateCommitting:
		return "committing"
	case StateQueued:
		return "queued"
	case StateCommitted:
		return "archived"
	default:
		return "unknown"
	}
}

// Banner is what the undo snackbar shows: the most recent request that can
// still be undone.
type Banner struct {
	NoteID    string
	Title     string
	State     State
	Remaining time.Duration
}

// Failure describes an error the coordinator absorbed instead of returning.
type Failure struct {
	NoteID string
	Op     string
	Err    error
}

const (
	OpArchive   = "archive"
	OpUnarchive = "unarchive"
	OpEnqueue   = "enqueue"
	OpReplay    = "replay"
)

type record struct {
	note        notes.Note
	state       State
	requestedAt time.Time
	deadline    time.Time
	seq         uint64
	gen         uint64
	timer       *time.Timer
	settled     chan struct{}
	dismissed   bool
}

func (r *record) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
