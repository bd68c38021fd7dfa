package archive

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valibibe/recall/internal/actionqueue"
	"github.com/valibibe/recall/internal/connectivity"
	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/storage"
)

const (
	testWindow = 30 * time.Millisecond
	waitFor    = 2 * time.Second
	tick       = 5 * time.Millisecond
)

var unavailable = &notes.APIError{Status: http.StatusServiceUnavailable, Path: "/notes", Message: "unavailable"}

type fakeAPI struct {
	mu           sync.Mutex
	archives     map[string]int
	unarchives   map[string]int
	archiveErr   error
	unarchiveErr error
	gate         chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{archives: make(map[string]int), unarchives: make(map[string]int)}
}

func (f *fakeAPI) Archive(ctx context.Context, id string) (*notes.Note, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives[id]++
	if f.archiveErr != nil {
		return nil, f.archiveErr
	}
	return &notes.Note{ID: id, Archived: true}, nil
}

func (f *fakeAPI) Unarchive(ctx context.Context, id string) (*notes.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unarchives[id]++
	if f.unarchiveErr != nil {
		return nil, f.unarchiveErr
	}
	return &notes.Note{ID: id}, nil
}

func (f *fakeAPI) setArchiveErr(err error) {
	f.mu.Lock()
	f.archiveErr = err
	f.mu.Unlock()
}

func (f *fakeAPI) archiveCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archives[id]
}

func (f *fakeAPI) unarchiveCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unarchives[id]
}

func (f *fakeAPI) totalArchiveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.archives {
		total += n
	}
	return total
}

type onlineFlag struct{ offline atomic.Bool }

func (o *onlineFlag) Online() bool { return !o.offline.Load() }

type recorder struct {
	mu        sync.Mutex
	committed []string
	restored  []string
	failures  []Failure
}

func (r *recorder) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func (r *recorder) restores() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.restored...)
}

func (r *recorder) failed() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

type harness struct {
	coord *Coordinator
	queue *actionqueue.Store
	kv    storage.KV
	api   *fakeAPI
	rec   *recorder
}

func newHarness(t *testing.T, kv storage.KV, opts Options) *harness {
	t.Helper()
	if kv == nil {
		kv = storage.NewMemory()
	}
	logger, _ := test.NewNullLogger()
	q, err := actionqueue.Open(context.Background(), kv, actionqueue.Options{Logger: logger})
	require.NoError(t, err)

	h := &harness{queue: q, kv: kv, api: newFakeAPI(), rec: &recorder{}}
	if opts.UndoWindow == 0 {
		opts.UndoWindow = testWindow
	}
	opts.Logger = logger
	opts.OnCommitted = func(id string) {
		h.rec.mu.Lock()
		h.rec.committed = append(h.rec.committed, id)
		h.rec.mu.Unlock()
	}
	opts.OnRestored = func(id string) {
		h.rec.mu.Lock()
		h.rec.restored = append(h.rec.restored, id)
		h.rec.mu.Unlock()
	}
	opts.OnFailure = func(f Failure) {
		h.rec.mu.Lock()
		h.rec.failures = append(h.rec.failures, f)
		h.rec.mu.Unlock()
	}
	h.coord, err = New(h.api, q, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.coord.Close(context.Background()) })
	return h
}

func (h *harness) stateIs(id string, want State) func() bool {
	return func() bool { return h.coord.State(id) == want }
}

func note(id string) notes.Note {
	return notes.Note{ID: id, Title: "note " + id}
}

func TestCommitAfterUndoWindow(t *testing.T) {
	h := newHarness(t, nil, Options{})

	require.NoError(t, h.coord.RequestArchive(note("A")))
	assert.True(t, h.coord.IsHidden("A"))
	assert.Equal(t, StatePendingUndo, h.coord.State("A"))
	assert.Zero(t, h.api.archiveCalls("A"), "no call inside the undo window")

	require.Eventually(t, h.stateIs("A", StateCommitted), waitFor, tick)
	assert.False(t, h.coord.IsHidden("A"))
	require.Eventually(t, func() bool { return len(h.rec.commits()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"A"}, h.rec.commits())

	// The committed record expires after one more window.
	require.Eventually(t, h.stateIs("A", StateIdle), waitFor, tick)
	assert.Equal(t, 1, h.api.archiveCalls("A"))
	assert.Zero(t, h.coord.QueueLen())
}

func TestUndoBeforeTimerMakesNoCall(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: 100 * time.Millisecond})

	require.NoError(t, h.coord.RequestArchive(note("B")))
	require.NoError(t, h.coord.Undo(context.Background(), "B"))

	assert.False(t, h.coord.IsHidden("B"))
	assert.Equal(t, StateIdle, h.coord.State("B"))
	_, ok := h.coord.Banner()
	assert.False(t, ok)

	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, h.api.archiveCalls("B"))
	assert.Zero(t, h.api.unarchiveCalls("B"))
	assert.Zero(t, h.coord.QueueLen())
	assert.Empty(t, h.rec.commits())
}

func TestUndoIsIdempotentAfterCancel(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: time.Hour})

	require.NoError(t, h.coord.RequestArchive(note("B")))
	require.NoError(t, h.coord.Undo(context.Background(), "B"))
	assert.ErrorIs(t, h.coord.Undo(context.Background(), "B"), ErrNotPending)
}

func TestFailedCommitIsQueuedAndReplayed(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.api.setArchiveErr(unavailable)

	require.NoError(t, h.coord.RequestArchive(note("C")))
	require.Eventually(t, h.stateIs("C", StateQueued), waitFor, tick)
	assert.False(t, h.coord.IsHidden("C"), "queued notes reappear by default")
	assert.Equal(t, 1, h.coord.QueueLen())
	assert.Empty(t, h.rec.commits())

	h.api.setArchiveErr(nil)
	res, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Committed, 1)
	assert.Equal(t, "C", res.Committed[0].NoteID)
	assert.Zero(t, h.coord.QueueLen())
	assert.Equal(t, StateCommitted, h.coord.State("C"))
	assert.Equal(t, []string{"C"}, h.rec.commits())
	assert.Equal(t, 2, h.api.archiveCalls("C"))

	// Nothing left to apply.
	_, err = h.coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.api.archiveCalls("C"))
}

func TestOfflineSkipsCallAndQueues(t *testing.T) {
	conn := &onlineFlag{}
	conn.offline.Store(true)
	h := newHarness(t, nil, Options{Connectivity: conn})

	require.NoError(t, h.coord.RequestArchive(note("C")))
	require.Eventually(t, h.stateIs("C", StateQueued), waitFor, tick)
	assert.Zero(t, h.api.archiveCalls("C"))

	res, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Committed)
	assert.Equal(t, 1, h.coord.QueueLen())

	conn.offline.Store(false)
	res, err = h.coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Committed, 1)
	assert.Equal(t, 1, h.api.archiveCalls("C"))
}

func TestConcurrentRequestsCommitIndependently(t *testing.T) {
	h := newHarness(t, nil, Options{})

	require.NoError(t, h.coord.RequestArchive(note("D")))
	require.NoError(t, h.coord.RequestArchive(note("E")))
	assert.Equal(t, []string{"D", "E"}, h.coord.Hidden())

	require.Eventually(t, func() bool {
		return h.coord.State("D") == StateCommitted && h.coord.State("E") == StateCommitted
	}, waitFor, tick)
	assert.Empty(t, h.coord.Hidden())
	require.Eventually(t, func() bool { return len(h.rec.commits()) == 2 }, waitFor, tick)
	assert.Equal(t, 1, h.api.archiveCalls("D"))
	assert.Equal(t, 1, h.api.archiveCalls("E"))
	assert.ElementsMatch(t, []string{"D", "E"}, h.rec.commits())
}

func TestUndoOneOfTwoLeavesTheOther(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: 80 * time.Millisecond})

	require.NoError(t, h.coord.RequestArchive(note("D")))
	require.NoError(t, h.coord.RequestArchive(note("E")))
	require.NoError(t, h.coord.Undo(context.Background(), "D"))

	require.Eventually(t, h.stateIs("E", StateCommitted), waitFor, tick)
	assert.Zero(t, h.api.archiveCalls("D"))
	assert.Equal(t, 1, h.api.archiveCalls("E"))
}

func TestStaleQueueReplaysOnOnlineSignal(t *testing.T) {
	kv := storage.NewMemory()
	logger, _ := test.NewNullLogger()
	prev, err := actionqueue.Open(context.Background(), kv, actionqueue.Options{Logger: logger})
	require.NoError(t, err)
	_, err = prev.Enqueue(context.Background(), actionqueue.PendingAction{NoteID: "F"})
	require.NoError(t, err)

	monitor := connectivity.NewMonitor(pingerFunc(func(context.Context) error { return nil }),
		connectivity.MonitorOptions{Logger: logger})
	monitor.ReportFailure(errors.New("down"))
	monitor.ReportFailure(errors.New("down"))
	require.False(t, monitor.Online())

	h := newHarness(t, kv, Options{Connectivity: monitor})
	assert.Equal(t, 1, h.coord.QueueLen())

	watcher := connectivity.NewWatcher(monitor, func(ctx context.Context) {
		_, _ = h.coord.Replay(ctx)
	}, logger)
	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	// The startup replay runs while offline and leaves the action queued.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.api.archiveCalls("F"))
	assert.Equal(t, 1, h.coord.QueueLen())

	monitor.ReportSuccess()
	require.Eventually(t, func() bool { return h.coord.QueueLen() == 0 }, waitFor, tick)
	assert.Equal(t, 1, h.api.archiveCalls("F"))
	assert.Equal(t, []string{"F"}, h.rec.commits())
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRepeatRequestRestartsWindow(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: 100 * time.Millisecond})

	require.NoError(t, h.coord.RequestArchive(note("A")))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, h.coord.RequestArchive(note("A")))
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, StatePendingUndo, h.coord.State("A"))
	assert.Zero(t, h.api.archiveCalls("A"))

	require.Eventually(t, h.stateIs("A", StateCommitted), waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.api.archiveCalls("A"))
}

func TestRequestWhileCommittingIsNoop(t *testing.T) {
	h := newHarness(t, nil, Options{})
	gate := make(chan struct{})
	h.api.gate = gate

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.Eventually(t, h.stateIs("A", StateCommitting), waitFor, tick)
	assert.True(t, h.coord.IsHidden("A"), "committing notes stay hidden")

	require.NoError(t, h.coord.RequestArchive(note("A")))
	close(gate)

	require.Eventually(t, h.stateIs("A", StateCommitted), waitFor, tick)
	time.Sleep(3 * testWindow)
	assert.Equal(t, 1, h.api.archiveCalls("A"))
}

func TestUndoWhileCommittingCompensatesAfterSettle(t *testing.T) {
	h := newHarness(t, nil, Options{})
	gate := make(chan struct{})
	h.api.gate = gate

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.Eventually(t, h.stateIs("A", StateCommitting), waitFor, tick)

	done := make(chan error, 1)
	go func() { done <- h.coord.Undo(context.Background(), "A") }()

	select {
	case <-done:
		t.Fatal("Undo returned before the archive call settled")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)

	require.NoError(t, <-done)
	assert.Equal(t, 1, h.api.archiveCalls("A"))
	assert.Equal(t, 1, h.api.unarchiveCalls("A"))
	assert.Equal(t, StateIdle, h.coord.State("A"))
	assert.Equal(t, []string{"A"}, h.rec.restores())
}

func TestUndoWhileCommittingHonoursContext(t *testing.T) {
	h := newHarness(t, nil, Options{})
	gate := make(chan struct{})
	h.api.gate = gate
	defer close(gate)

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.Eventually(t, h.stateIs("A", StateCommitting), waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.coord.Undo(ctx, "A"), context.DeadlineExceeded)
}

func TestUndoAfterCommitSendsUnarchive(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: 50 * time.Millisecond})

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.Eventually(t, h.stateIs("A", StateCommitted), waitFor, tick)

	require.NoError(t, h.coord.Undo(context.Background(), "A"))
	assert.Equal(t, 1, h.api.unarchiveCalls("A"))
	assert.Equal(t, StateIdle, h.coord.State("A"))
}

func TestUndoQueuedCancelsAction(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.api.setArchiveErr(unavailable)

	require.NoError(t, h.coord.RequestArchive(note("C")))
	require.Eventually(t, h.stateIs("C", StateQueued), waitFor, tick)

	require.NoError(t, h.coord.Undo(context.Background(), "C"))
	assert.Zero(t, h.coord.QueueLen())
	assert.Equal(t, 1, h.api.unarchiveCalls("C"))

	h.api.setArchiveErr(nil)
	_, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.archiveCalls("C"), "cancelled action is not replayed")
}

func TestCompensationFailureIsReported(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: 50 * time.Millisecond})
	h.api.unarchiveErr = unavailable

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.Eventually(t, h.stateIs("A", StateCommitted), waitFor, tick)

	err := h.coord.Undo(context.Background(), "A")
	require.ErrorIs(t, err, unavailable)
	failures := h.rec.failed()
	require.Len(t, failures, 1)
	assert.Equal(t, OpUnarchive, failures[0].Op)
	assert.Equal(t, "A", failures[0].NoteID)
	assert.Empty(t, h.rec.restores())
}

func TestUndoUnknownNote(t *testing.T) {
	h := newHarness(t, nil, Options{})
	assert.ErrorIs(t, h.coord.Undo(context.Background(), "missing"), ErrNotPending)
	assert.ErrorIs(t, h.coord.UndoLatest(context.Background()), ErrNotPending)
}

func TestReplayDropsMissingNotes(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.api.setArchiveErr(&notes.APIError{Status: http.StatusNotFound, Path: "/notes/x/archive", Message: "not found"})

	require.NoError(t, h.coord.RequestArchive(note("X")))
	require.Eventually(t, h.stateIs("X", StateQueued), waitFor, tick)

	res, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Abandoned, 1)
	assert.Zero(t, h.coord.QueueLen())
	assert.Equal(t, StateIdle, h.coord.State("X"))

	failures := h.rec.failed()
	require.Len(t, failures, 1)
	assert.Equal(t, OpReplay, failures[0].Op)
}

func TestReplayKeepsServerErrorsForRetry(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.api.setArchiveErr(&notes.APIError{Status: http.StatusInternalServerError, Path: "/notes/y/archive", Message: "boom"})

	require.NoError(t, h.coord.RequestArchive(note("Y")))
	require.Eventually(t, h.stateIs("Y", StateQueued), waitFor, tick)

	res, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Remaining, 1)
	assert.Equal(t, 1, res.Remaining[0].Attempts)
	assert.Equal(t, StateQueued, h.coord.State("Y"))
}

func TestReplayStopsAtFirstOfflineAction(t *testing.T) {
	h := newHarness(t, nil, Options{})
	for _, id := range []string{"A1", "A2", "A3"} {
		_, err := h.queue.Enqueue(context.Background(), actionqueue.PendingAction{NoteID: id})
		require.NoError(t, err)
	}
	h.api.setArchiveErr(unavailable)

	res, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.totalArchiveCalls())

	ids := make([]string, 0, len(res.Remaining))
	for _, a := range res.Remaining {
		ids = append(ids, a.NoteID)
	}
	assert.Equal(t, []string{"A1", "A2", "A3"}, ids)
}

func TestConcurrentReplaysApplyOnce(t *testing.T) {
	h := newHarness(t, nil, Options{})
	_, err := h.queue.Enqueue(context.Background(), actionqueue.PendingAction{NoteID: "A"})
	require.NoError(t, err)

	gate := make(chan struct{})
	h.api.gate = gate

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.coord.Replay(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, h.api.archiveCalls("A"))
	assert.Equal(t, []string{"A"}, h.rec.commits())
}

func TestHideQueuedKeepsNoteHidden(t *testing.T) {
	h := newHarness(t, nil, Options{HideQueued: true})
	h.api.setArchiveErr(unavailable)

	require.NoError(t, h.coord.RequestArchive(note("C")))
	require.Eventually(t, h.stateIs("C", StateQueued), waitFor, tick)
	assert.True(t, h.coord.IsHidden("C"))
}

func TestBannerTracksMostRecentRequest(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: time.Hour})

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.NoError(t, h.coord.RequestArchive(note("B")))

	b, ok := h.coord.Banner()
	require.True(t, ok)
	assert.Equal(t, "B", b.NoteID)
	assert.Equal(t, "note B", b.Title)
	assert.Equal(t, StatePendingUndo, b.State)
	assert.Greater(t, b.Remaining, time.Duration(0))

	require.NoError(t, h.coord.UndoLatest(context.Background()))
	assert.Equal(t, StateIdle, h.coord.State("B"))
	assert.True(t, h.coord.IsHidden("A"))

	b, ok = h.coord.Banner()
	require.True(t, ok)
	assert.Equal(t, "A", b.NoteID)
}

func TestDismissClearsSettledBanner(t *testing.T) {
	h := newHarness(t, nil, Options{UndoWindow: 50 * time.Millisecond})
	h.api.setArchiveErr(unavailable)

	require.NoError(t, h.coord.RequestArchive(note("C")))
	require.Eventually(t, h.stateIs("C", StateQueued), waitFor, tick)

	h.coord.Dismiss("C")
	_, ok := h.coord.Banner()
	assert.False(t, ok)
	assert.Equal(t, StateQueued, h.coord.State("C"), "dismissing does not drop the queued action")
	assert.Equal(t, 1, h.coord.QueueLen())
}

func TestCloseQueuesOpenWindows(t *testing.T) {
	kv := storage.NewMemory()
	h := newHarness(t, kv, Options{UndoWindow: time.Hour})

	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.NoError(t, h.coord.RequestArchive(note("B")))
	require.NoError(t, h.coord.Close(context.Background()))

	assert.ErrorIs(t, h.coord.RequestArchive(note("C")), ErrClosed)
	assert.Zero(t, h.api.totalArchiveCalls())

	logger, _ := test.NewNullLogger()
	reopened, err := actionqueue.Open(context.Background(), kv, actionqueue.Options{Logger: logger})
	require.NoError(t, err)
	pending := reopened.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].NoteID)
	assert.Equal(t, "B", pending[1].NoteID)
}

func TestRequestArchiveRequiresID(t *testing.T) {
	h := newHarness(t, nil, Options{})
	assert.Error(t, h.coord.RequestArchive(notes.Note{}))
}

// gatedKV runs onSet once, before the first write after it is armed.
type gatedKV struct {
	storage.KV
	once  sync.Once
	onSet func()
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	if g.onSet != nil {
		g.once.Do(g.onSet)
	}
	return g.KV.Set(ctx, key, value)
}

func TestReplayDuringEnqueueStillPromotesRecord(t *testing.T) {
	kv := &gatedKV{KV: storage.NewMemory()}
	h := newHarness(t, kv, Options{})
	h.api.setArchiveErr(unavailable)

	kv.onSet = func() {
		// The service recovers while the failed commit is being queued.
		h.api.setArchiveErr(nil)
		go func() { _, _ = h.coord.Replay(context.Background()) }()
		time.Sleep(50 * time.Millisecond)
	}

	require.NoError(t, h.coord.RequestArchive(note("R")))
	require.Eventually(t, h.stateIs("R", StateCommitted), waitFor, tick)
	assert.Zero(t, h.coord.QueueLen())
	assert.Equal(t, []string{"R"}, h.rec.commits())
	assert.Equal(t, 2, h.api.archiveCalls("R"))

	// The record is not stuck: a new request opens a fresh undo window.
	require.Eventually(t, h.stateIs("R", StateIdle), waitFor, tick)
	require.NoError(t, h.coord.RequestArchive(note("R")))
	assert.Equal(t, StatePendingUndo, h.coord.State("R"))
}

type healthLog struct {
	successes atomic.Int32
	failures  atomic.Int32
}

func (l *healthLog) ReportSuccess()        { l.successes.Add(1) }
func (l *healthLog) ReportFailure(_ error) { l.failures.Add(1) }

func TestArchiveOutcomesReachHealth(t *testing.T) {
	health := &healthLog{}
	h := newHarness(t, nil, Options{Health: health})

	h.api.setArchiveErr(unavailable)
	require.NoError(t, h.coord.RequestArchive(note("A")))
	require.Eventually(t, h.stateIs("A", StateQueued), waitFor, tick)
	assert.Equal(t, int32(1), health.failures.Load())

	h.api.setArchiveErr(&notes.APIError{Status: http.StatusBadRequest, Path: "/notes/B/archive", Message: "bad"})
	require.NoError(t, h.coord.RequestArchive(note("B")))
	require.Eventually(t, h.stateIs("B", StateQueued), waitFor, tick)
	assert.Equal(t, int32(1), health.failures.Load(), "rejections say nothing about reachability")

	h.api.setArchiveErr(nil)
	_, err := h.coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), health.successes.Load())
}
