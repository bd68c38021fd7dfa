// Package archive runs the optimistic archive-with-undo flow: a note is hidden
// as soon as the user archives it, the server call waits out an undo window,
// and calls that fail are handed to the durable action queue for replay.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/valibibe/recall/internal/actionqueue"
	"github.com/valibibe/recall/internal/notes"
)

// DefaultUndoWindow is how long a request can be undone without a server call.
const DefaultUndoWindow = 4 * time.Second

var (
	// ErrNotPending is returned by Undo when nothing is tracked for the note.
	ErrNotPending = errors.New("no archive request to undo")
	// ErrClosed is returned by RequestArchive after Close.
	ErrClosed = errors.New("archive coordinator is closed")
)

// Connectivity reports whether the service is believed reachable.
type Connectivity interface {
	Online() bool
}

// Health receives the outcome of archive calls.
type Health interface {
	ReportSuccess()
	ReportFailure(err error)
}

// Options tune a Coordinator. Callbacks run on the goroutine that caused the
// transition and must not call back into the Coordinator while blocking.
type Options struct {
	UndoWindow time.Duration
	// HideQueued keeps queued notes hidden until the replay confirms them.
	HideQueued   bool
	Connectivity Connectivity
	Health       Health

	OnCommitted func(noteID string)
	OnRestored  func(noteID string)
	OnFailure   func(Failure)
	OnChange    func()

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Coordinator owns every per-note archive request. It is safe for concurrent
// use.
type Coordinator struct {
	api        notes.Archiver
	queue      *actionqueue.Store
	window     time.Duration
	hideQueued bool
	conn       Connectivity
	health     Health

	onCommitted func(string)
	onRestored  func(string)
	onFailure   func(Failure)
	onChange    func()

	log logrus.FieldLogger
	now func() time.Time

	mu      sync.Mutex
	records map[string]*record
	seq     uint64
	gen     uint64
	closed  bool

	inflight sync.WaitGroup
	replays  singleflight.Group
	// replayMu orders queue drains against cancellation of queued actions.
	replayMu sync.Mutex
}

// New builds a Coordinator on top of api and queue.
func New(api notes.Archiver, queue *actionqueue.Store, opts Options) (*Coordinator, error) {
	if api == nil {
		return nil, fmt.Errorf("archive coordinator requires an archiver")
	}
	if queue == nil {
		return nil, fmt.Errorf("archive coordinator requires an action queue")
	}
	c := &Coordinator{
		api:         api,
		queue:       queue,
		window:      opts.UndoWindow,
		hideQueued:  opts.HideQueued,
		conn:        opts.Connectivity,
		health:      opts.Health,
		onCommitted: opts.OnCommitted,
		onRestored:  opts.OnRestored,
		onFailure:   opts.OnFailure,
		onChange:    opts.OnChange,
		log:         opts.Logger,
		now:         opts.Now,
		records:     make(map[string]*record),
	}
	if c.window <= 0 {
		c.window = DefaultUndoWindow
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// RequestArchive hides note and opens its undo window. Repeating the request
// while the window is open restarts the window; repeating it while the
// archive is already in flight or queued does nothing.
func (c *Coordinator) RequestArchive(note notes.Note) error {
	if note.ID == "" {
		return fmt.Errorf("request archive: note id is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	rec := c.records[note.ID]
	if rec != nil && (rec.state == StateCommitting || rec.state == StateQueued) {
		state := rec.state
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{"note_id": note.ID, "state": state}).Debug("archive already in progress")
		return nil
	}
	if rec == nil {
		rec = &record{}
		c.records[note.ID] = rec
	}
	rec.stopTimer()

	now := c.now()
	c.seq++
	c.gen++
	rec.note = note
	rec.state = StatePendingUndo
	rec.requestedAt = now
	rec.deadline = now.Add(c.window)
	rec.seq = c.seq
	rec.gen = c.gen
	rec.dismissed = false

	id, gen := note.ID, rec.gen
	rec.timer = time.AfterFunc(c.window, func() { c.fire(id, gen) })
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"note_id": id, "window": c.window}).Info("archive requested")
	c.changed()
	return nil
}

func (c *Coordinator) fire(id string, gen uint64) {
	c.mu.Lock()
	rec := c.records[id]
	if c.closed || rec == nil || rec.gen != gen || rec.state != StatePendingUndo {
		c.mu.Unlock()
		return
	}
	rec.state = StateCommitting
	rec.timer = nil
	rec.settled = make(chan struct{})
	c.inflight.Add(1)
	c.mu.Unlock()
	c.changed()

	defer c.inflight.Done()
	c.commit(id, gen)
}

// commit runs outside the lock. In-flight calls are never cancelled, so it
// uses a fresh context bounded only by the client's request timeout.
func (c *Coordinator) commit(id string, gen uint64) {
	ctx := context.Background()
	entry := c.log.WithField("note_id", id)

	var err error
	if c.conn != nil && !c.conn.Online() {
		err = actionqueue.ErrOffline
	} else {
		_, err = c.api.Archive(ctx, id)
		c.reportHealth(err)
	}

	if err == nil {
		c.settle(id, gen, StateCommitted)
		entry.Info("archive committed")
		c.committed(id)
		return
	}

	entry.WithError(err).Warn("archive failed; queueing for replay")
	action := actionqueue.PendingAction{Kind: actionqueue.KindArchive, NoteID: id, CreatedAt: c.now()}

	// A drain must not see the action before the record is Queued, or it
	// commits an action whose record it cannot promote.
	c.replayMu.Lock()
	_, qerr := c.queue.Enqueue(ctx, action)
	c.settle(id, gen, StateQueued)
	c.replayMu.Unlock()

	if qerr != nil {
		entry.WithError(qerr).Error("persist queued archive")
		c.fail(Failure{NoteID: id, Op: OpEnqueue, Err: qerr})
	}
}

// reportHealth feeds archive call outcomes to the connectivity source so a
// failed commit can trigger the offline and online transitions.
func (c *Coordinator) reportHealth(err error) {
	if c.health == nil {
		return
	}
	switch {
	case err == nil:
		c.health.ReportSuccess()
	case notes.IsConnectivity(err):
		c.health.ReportFailure(err)
	}
}

func (c *Coordinator) settle(id string, gen uint64, state State) {
	c.mu.Lock()
	rec := c.records[id]
	if rec != nil && rec.gen == gen && rec.state == StateCommitting {
		rec.state = state
		close(rec.settled)
		rec.settled = nil
		if state == StateCommitted {
			c.schedulePruneLocked(id, rec)
		}
	}
	c.mu.Unlock()
	c.changed()
}

// schedulePruneLocked drops a committed record once the late-undo offer has
// been visible for one undo window.
func (c *Coordinator) schedulePruneLocked(id string, rec *record) {
	if c.closed {
		return
	}
	rec.stopTimer()
	gen := rec.gen
	rec.timer = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		cur := c.records[id]
		removed := cur != nil && cur.gen == gen && cur.state == StateCommitted
		if removed {
			delete(c.records, id)
		}
		c.mu.Unlock()
		if removed {
			c.changed()
		}
	})
}

// Undo reverts the request for noteID. Inside the undo window nothing reaches
// the server. Later, the archive may already be durable, so Undo waits for an
// in-flight call to settle and then sends a compensating unarchive. A failure
// of that call is reported through OnFailure and returned.
func (c *Coordinator) Undo(ctx context.Context, noteID string) error {
	for {
		c.mu.Lock()
		rec := c.records[noteID]
		if rec == nil {
			c.mu.Unlock()
			return ErrNotPending
		}

		switch rec.state {
		case StatePendingUndo:
			rec.stopTimer()
			delete(c.records, noteID)
			c.mu.Unlock()
			c.log.WithField("note_id", noteID).Info("archive undone before commit")
			c.changed()
			return nil

		case StateCommitting:
			settled := rec.settled
			c.mu.Unlock()
			select {
			case <-settled:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}

		default:
			state := rec.state
			rec.stopTimer()
			delete(c.records, noteID)
			c.mu.Unlock()
			c.changed()
			return c.compensate(ctx, noteID, state)
		}
	}
}

// UndoLatest undoes the request shown in the banner.
func (c *Coordinator) UndoLatest(ctx context.Context) error {
	banner, ok := c.Banner()
	if !ok {
		return ErrNotPending
	}
	return c.Undo(ctx, banner.NoteID)
}

func (c *Coordinator) compensate(ctx context.Context, id string, from State) error {
	entry := c.log.WithFields(logrus.Fields{"note_id": id, "state": from})

	if from == StateQueued {
		c.replayMu.Lock()
		_, err := c.queue.Cancel(ctx, id)
		c.replayMu.Unlock()
		if err != nil {
			entry.WithError(err).Warn("persist cancelled action")
		}
	}

	_, err := c.api.Unarchive(ctx, id)
	c.reportHealth(err)
	if err != nil {
		entry.WithError(err).Error("compensating unarchive failed")
		c.fail(Failure{NoteID: id, Op: OpUnarchive, Err: err})
		return fmt.Errorf("unarchive %s: %w", id, err)
	}
	entry.Info("archive reverted")
	if c.onRestored != nil {
		c.onRestored(id)
	}
	return nil
}

// Replay drains the action queue against the server. Concurrent calls share
// one drain.
func (c *Coordinator) Replay(ctx context.Context) (actionqueue.Result, error) {
	v, err, _ := c.replays.Do("replay", func() (any, error) {
		c.replayMu.Lock()
		defer c.replayMu.Unlock()

		res, err := c.queue.Drain(ctx, c.attempt)
		c.applyReplay(res)
		return res, err
	})
	res, _ := v.(actionqueue.Result)
	return res, err
}

func (c *Coordinator) attempt(ctx context.Context, action actionqueue.PendingAction) error {
	if action.Kind != actionqueue.KindArchive {
		return fmt.Errorf("%w: unknown action kind %q", actionqueue.ErrPermanent, action.Kind)
	}
	if c.conn != nil && !c.conn.Online() {
		return actionqueue.ErrOffline
	}

	_, err := c.api.Archive(ctx, action.NoteID)
	c.reportHealth(err)
	switch {
	case err == nil:
		return nil
	case notes.IsConnectivity(err):
		return fmt.Errorf("%w: %v", actionqueue.ErrOffline, err)
	case notes.IsNotFound(err), errors.Is(err, notes.ErrInvalidID):
		return fmt.Errorf("%w: %v", actionqueue.ErrPermanent, err)
	default:
		return err
	}
}

func (c *Coordinator) applyReplay(res actionqueue.Result) {
	if len(res.Committed) == 0 && len(res.Abandoned) == 0 {
		return
	}

	c.mu.Lock()
	for _, action := range res.Committed {
		if rec := c.records[action.NoteID]; rec != nil && rec.state == StateQueued {
			rec.state = StateCommitted
			c.schedulePruneLocked(action.NoteID, rec)
		}
	}
	for _, action := range res.Abandoned {
		if rec := c.records[action.NoteID]; rec != nil && rec.state == StateQueued {
			delete(c.records, action.NoteID)
		}
	}
	c.mu.Unlock()

	for _, action := range res.Committed {
		c.committed(action.NoteID)
	}
	for _, action := range res.Abandoned {
		c.fail(Failure{NoteID: action.NoteID, Op: OpReplay, Err: errors.New(action.LastError)})
	}
	c.changed()
}

// Dismiss removes a settled request from the banner. Requests still inside
// their undo window or in flight are left alone.
func (c *Coordinator) Dismiss(noteID string) {
	c.mu.Lock()
	changed := false
	if rec := c.records[noteID]; rec != nil {
		switch rec.state {
		case StateCommitted:
			rec.stopTimer()
			delete(c.records, noteID)
			changed = true
		case StateQueued:
			changed = !rec.dismissed
			rec.dismissed = true
		}
	}
	c.mu.Unlock()
	if changed {
		c.changed()
	}
}

// IsHidden reports whether noteID should be left out of the list.
func (c *Coordinator) IsHidden(noteID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[noteID]
	return rec != nil && c.hiddenLocked(rec)
}

// Hidden returns the ids currently hidden, sorted.
func (c *Coordinator) Hidden() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, rec := range c.records {
		if c.hiddenLocked(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) hiddenLocked(rec *record) bool {
	switch rec.state {
	case StatePendingUndo, StateCommitting:
		return true
	case StateQueued:
		return c.hideQueued
	default:
		return false
	}
}

// State returns the lifecycle position of noteID.
func (c *Coordinator) State(noteID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.records[noteID]; rec != nil {
		return rec.state
	}
	return StateIdle
}

// Banner returns the most recent request that can still be undone.
func (c *Coordinator) Banner() (Banner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest *record
	for _, rec := range c.records {
		if rec.dismissed {
			continue
		}
		if latest == nil || rec.seq > latest.seq {
			latest = rec
		}
	}
	if latest == nil {
		return Banner{}, false
	}

	b := Banner{NoteID: latest.note.ID, Title: latest.note.Title, State: latest.state}
	if latest.state == StatePendingUndo {
		if remaining := latest.deadline.Sub(c.now()); remaining > 0 {
			b.Remaining = remaining
		}
	}
	return b, true
}

// QueueLen returns the number of actions waiting for replay.
func (c *Coordinator) QueueLen() int {
	return c.queue.Len()
}

// Close stops every timer. Requests still inside their undo window are
// queued so an accepted archive survives the exit. Close waits for in-flight
// archive calls until ctx is done.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var pending []*record
	for _, rec := range c.records {
		rec.stopTimer()
		if rec.state == StatePendingUndo {
			c.gen++
			rec.gen = c.gen
			rec.state = StateQueued
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	ids := make([]string, len(pending))
	for i, rec := range pending {
		ids[i] = rec.note.ID
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		action := actionqueue.PendingAction{Kind: actionqueue.KindArchive, NoteID: id, CreatedAt: c.now()}
		if _, err := c.queue.Enqueue(ctx, action); err != nil {
			errs = append(errs, fmt.Errorf("queue %s on close: %w", id, err))
		}
	}
	if len(ids) > 0 {
		c.log.WithField("actions", len(ids)).Info("queued open undo windows on close")
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for in-flight archives: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

func (c *Coordinator) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Coordinator) committed(id string) {
	if c.onCommitted != nil {
		c.onCommitted(id)
	}
}

func (c *Coordinator) fail(f Failure) {
	if c.onFailure != nil {
		c.onFailure(f)
	}
}
