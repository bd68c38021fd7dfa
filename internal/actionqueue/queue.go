// Package actionqueue keeps the durable, ordered record of note mutations
// that have not been confirmed by the server yet.
package actionqueue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/valibibe/recall/internal/storage"
)

// AttemptFunc applies one action against the server. Wrap ErrOffline or
// ErrPermanent to steer Drain; any other error is retried on the next drain.
type AttemptFunc func(ctx context.Context, action PendingAction) error

// Options tune a Store.
type Options struct {
	// MaxAttempts abandons an action after this many non-offline failures.
	// Zero retries forever.
	MaxAttempts int
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

// Result reports the outcome of a drain.
type Result struct {
	Committed []PendingAction
	Abandoned []PendingAction
	Remaining []PendingAction
}

// Store is the process-wide queue. All mutations go through Enqueue, Drain
// and Cancel so that the persisted copy is never rewritten from a stale read.
type Store struct {
	kv          storage.KV
	maxAttempts int
	log         logrus.FieldLogger
	now         func() time.Time

	mu      sync.Mutex
	actions []PendingAction
	entropy io.Reader

	drains singleflight.Group
}

// Open loads the persisted queue from kv.
func Open(ctx context.Context, kv storage.KV, opts Options) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("action queue requires storage")
	}
	s := &Store{
		kv:          kv,
		maxAttempts: opts.MaxAttempts,
		log:         opts.Logger,
		now:         opts.Now,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	data, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load action queue: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil
	}

	actions, migrate, err := decode(data)
	if errors.Is(err, ErrUnsupportedVersion) {
		return fmt.Errorf("load action queue: %w", err)
	}
	if err != nil {
		// Keep the unreadable payload around for inspection and start empty.
		s.log.WithError(err).Warn("action queue payload is corrupt; starting empty")
		if setErr := s.kv.Set(ctx, StorageKey+".corrupt", data); setErr != nil {
			return fmt.Errorf("preserve corrupt action queue: %w", setErr)
		}
		return s.kv.Delete(ctx, StorageKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range actions {
		if actions[i].ID == "" {
			actions[i].ID = s.newIDLocked(actions[i].CreatedAt)
			migrate = true
		}
		if actions[i].Kind == "" {
			actions[i].Kind = KindArchive
			migrate = true
		}
	}
	s.actions = actions

	if migrate {
		s.log.WithField("actions", len(actions)).Info("migrated action queue to current format")
		return s.persistLocked(ctx)
	}
	return nil
}

// Enqueue appends action to the end of the queue and persists the queue.
// The action stays queued in memory even when persisting fails.
func (s *Store) Enqueue(ctx context.Context, action PendingAction) (PendingAction, error) {
	if action.NoteID == "" {
		return PendingAction{}, fmt.Errorf("enqueue: note id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if action.Kind == "" {
		action.Kind = KindArchive
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = s.now()
	}
	if action.ID == "" {
		action.ID = s.newIDLocked(action.CreatedAt)
	}
	s.actions = append(s.actions, action)

	s.log.WithFields(logrus.Fields{
		"action_id": action.ID,
		"kind":      action.Kind,
		"note_id":   action.NoteID,
	}).Info("queued pending action")

	if err := s.persistLocked(ctx); err != nil {
		return action, err
	}
	return action, nil
}

// Drain applies queued actions in FIFO order. It stops at the first offline
// failure and leaves that action and everything after it untouched. Calls
// made while a drain is running share that drain's result.
func (s *Store) Drain(ctx context.Context, attempt AttemptFunc) (Result, error) {
	if attempt == nil {
		return Result{}, fmt.Errorf("drain: attempt func is required")
	}
	v, err, _ := s.drains.Do("drain", func() (any, error) {
		return s.drain(ctx, attempt)
	})
	res, _ := v.(Result)
	return res, err
}

func (s *Store) drain(ctx context.Context, attempt AttemptFunc) (Result, error) {
	snapshot := s.Pending()
	if len(snapshot) == 0 {
		return Result{}, nil
	}

	var res Result
	removed := make(map[string]struct{})
	updated := make(map[string]PendingAction)
	var stopErr error

loop:
	for _, action := range snapshot {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		err := attempt(ctx, action)
		entry := s.log.WithFields(logrus.Fields{"action_id": action.ID, "note_id": action.NoteID})
		switch {
		case err == nil:
			removed[action.ID] = struct{}{}
			res.Committed = append(res.Committed, action)
			entry.Info("replayed pending action")

		case errors.Is(err, ErrOffline):
			entry.WithError(err).Info("offline during replay; keeping remaining actions")
			break loop

		case errors.Is(err, ErrPermanent):
			action.LastError = err.Error()
			removed[action.ID] = struct{}{}
			res.Abandoned = append(res.Abandoned, action)
			entry.WithError(err).Warn("dropping pending action that cannot succeed")

		default:
			action.Attempts++
			action.LastError = err.Error()
			if s.maxAttempts > 0 && action.Attempts >= s.maxAttempts {
				removed[action.ID] = struct{}{}
				res.Abandoned = append(res.Abandoned, action)
				entry.WithError(err).WithField("attempts", action.Attempts).Warn("abandoning pending action")
				continue
			}
			updated[action.ID] = action
			entry.WithError(err).WithField("attempts", action.Attempts).Warn("replay failed; will retry")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Merge against the live slice so that actions enqueued or cancelled while
	// the drain was running are respected.
	next := make([]PendingAction, 0, len(s.actions))
	for _, action := range s.actions {
		if _, ok := removed[action.ID]; ok {
			continue
		}
		if u, ok := updated[action.ID]; ok {
			action = u
		}
		next = append(next, action)
	}
	s.actions = next
	res.Remaining = cloneActions(next)

	if err := s.persistLocked(context.WithoutCancel(ctx)); err != nil {
		return res, err
	}
	return res, stopErr
}

// Cancel removes every queued action for noteID. It reports whether anything
// was removed.
func (s *Store) Cancel(ctx context.Context, noteID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.actions[:0:0]
	for _, action := range s.actions {
		if action.NoteID == noteID {
			continue
		}
		next = append(next, action)
	}
	if len(next) == len(s.actions) {
		return false, nil
	}
	s.actions = next
	s.log.WithField("note_id", noteID).Info("cancelled pending action")
	return true, s.persistLocked(ctx)
}

// Pending returns a copy of the queued actions in order.
func (s *Store) Pending() []PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneActions(s.actions)
}

// Len returns the number of queued actions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Contains reports whether an action for noteID is queued.
func (s *Store) Contains(noteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, action := range s.actions {
		if action.NoteID == noteID {
			return true
		}
	}
	return false
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := encode(s.actions)
	if err != nil {
		return fmt.Errorf("encode action queue: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("persist action queue: %w", err)
	}
	return nil
}

func (s *Store) newIDLocked(at time.Time) string {
	if at.IsZero() {
		at = s.now()
	}
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func cloneActions(actions []PendingAction) []PendingAction {
	if len(actions) == 0 {
		return nil
	}
	dup := make([]PendingAction, len(actions))
	copy(dup, actions)
	return dup
}
