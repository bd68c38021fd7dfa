package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/valibibe/recall/internal/notes"
)

// Snapshot represents the latest notes page available to the UI.
type Snapshot struct {
	Notes               []notes.Note
	Total               int64
	Query               notes.ListQuery
	HasPage             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// Visible returns the page notes minus those hide reports as hidden.
func (s Snapshot) Visible(hide func(id string) bool) []notes.Note {
	if hide == nil {
		return cloneNotes(s.Notes)
	}
	out := make([]notes.Note, 0, len(s.Notes))
	for _, n := range s.Notes {
		if hide(n.ID) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored page. When err is non-nil the previous page is
// kept but the error is recorded for visibility.
func (s *Store) Update(page *notes.Page, query notes.ListQuery, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	if page != nil {
		s.snapshot.Notes = cloneNotes(page.Notes)
		s.snapshot.Total = page.Total
		s.snapshot.HasPage = true
	} else {
		s.snapshot.Notes = nil
		s.snapshot.Total = 0
		s.snapshot.HasPage = false
	}
	s.snapshot.Query = query
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Notes = cloneNotes(s.snapshot.Notes)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneNotes(items []notes.Note) []notes.Note {
	if len(items) == 0 {
		return nil
	}
	dup := make([]notes.Note, len(items))
	copy(dup, items)
	return dup
}
