package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valibibe/recall/internal/archive"
	"github.com/valibibe/recall/internal/config"
	"github.com/valibibe/recall/internal/logging"
	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/state"
)

const noteID = "6f1c2b9e-5d0a-4c1e-9a57-2b7f3e8d4c10"

type fakeService struct {
	lists    atomic.Int32
	archives atomic.Int32
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /notes", func(w http.ResponseWriter, r *http.Request) {
		s.lists.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"notes":[{"id":%q,"title":"Kana","memory_level":40,"created_at":"2024-05-01T10:00:00Z"}],"total":1}`, noteID)
	})
	mux.HandleFunc("POST /notes/{id}/archive", func(w http.ResponseWriter, r *http.Request) {
		s.archives.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"title":"Kana","archived":true,"created_at":"2024-05-01T10:00:00Z"}`, r.PathValue("id"))
	})
	return mux
}

func writeConfig(t *testing.T, apiURL string, undoMS int) (string, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.TokenEnv, "")

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	body := fmt.Sprintf("api_url = %q\ndata_dir = %q\nundo_window_ms = %d\nprobe_interval_ms = 20\npoll_interval_ms = 20\n", apiURL, dataDir, undoMS)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dataDir
}

func TestRuntime_ArchiveCommitsAndRefreshes(t *testing.T) {
	svc := &fakeService{}
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	cfgPath, _ := writeConfig(t, server.URL, 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := Open(ctx, Options{
		ConfigPath: cfgPath,
		PrefsPath:  filepath.Join(t.TempDir(), "prefs.toml"),
		Ephemeral:  true,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, rt.Start(ctx))
	assert.Error(t, rt.Start(ctx), "second Start must fail")

	require.Eventually(t, func() bool { return rt.Store.Snapshot().HasPage }, 2*time.Second, 10*time.Millisecond)
	note := rt.Store.Snapshot().Notes[0]

	require.NoError(t, rt.Coordinator.RequestArchive(note))
	assert.True(t, rt.Coordinator.IsHidden(noteID))

	require.Eventually(t, func() bool { return svc.archives.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return rt.Coordinator.State(noteID) == archive.StateCommitted
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-rt.Changes:
	default:
		t.Fatal("expected a change notification")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	require.NoError(t, rt.Close(closeCtx))
}

func TestRuntime_ClosePersistsOpenUndoWindows(t *testing.T) {
	svc := &fakeService{}
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	cfgPath, dataDir := writeConfig(t, server.URL, 60_000)
	ctx := context.Background()

	rt, err := Open(ctx, Options{ConfigPath: cfgPath})
	require.NoError(t, err)
	require.NoError(t, rt.Coordinator.RequestArchive(notes.Note{ID: noteID, Title: "Kana"}))
	require.NoError(t, rt.Close(ctx))
	assert.Zero(t, svc.archives.Load(), "undo window never elapsed")

	_, err = os.Stat(filepath.Join(dataDir, "recall.log"))
	assert.NoError(t, err, "file logger writes into the data dir")

	reopened, err := Open(ctx, Options{ConfigPath: cfgPath, Logger: logging.Discard()})
	require.NoError(t, err)
	defer func() { _ = reopened.Close(ctx) }()
	assert.Equal(t, 1, reopened.Queue.Len())
	assert.True(t, reopened.Queue.Contains(noteID))
}

func TestOpen_RejectsBadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_replay_attempts = -1\n"), 0o644))

	_, err := Open(context.Background(), Options{ConfigPath: path, Logger: logging.Discard()})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "load config"), "err = %v", err)
}

type fakeLister struct {
	mu      sync.Mutex
	err     error
	queries []notes.ListQuery
}

func (f *fakeLister) ListNotes(_ context.Context, q notes.ListQuery) (notes.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return notes.Page{}, f.err
	}
	return notes.Page{Notes: []notes.Note{{ID: noteID}}, Total: 1}, nil
}

type healthRecorder struct {
	successes, failures int
}

func (h *healthRecorder) ReportSuccess()        { h.successes++ }
func (h *healthRecorder) ReportFailure(_ error) { h.failures++ }

func TestPoller_RefreshRecordsOutcome(t *testing.T) {
	lister := &fakeLister{}
	health := &healthRecorder{}
	store := &state.Store{}
	p := NewPoller(store, lister, time.Second, health, logging.Discard())

	p.SetQuery(notes.ListQuery{Search: "kana", Limit: 20})
	require.NoError(t, p.Refresh(context.Background()))

	snap := store.Snapshot()
	assert.True(t, snap.HasPage)
	assert.Equal(t, "kana", snap.Query.Search)
	assert.Equal(t, 1, health.successes)

	lister.err = &notes.APIError{Status: http.StatusServiceUnavailable}
	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, health.failures)
	assert.Equal(t, 1, store.Snapshot().ConsecutiveFailures)

	lister.err = &notes.APIError{Status: http.StatusBadRequest}
	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, health.failures, "rejections say nothing about reachability")
}

func TestPoller_TriggerNeverBlocks(t *testing.T) {
	p := NewPoller(&state.Store{}, &fakeLister{}, time.Second, nil, nil)
	for i := 0; i < 5; i++ {
		p.Trigger()
	}
	assert.Len(t, p.wake, 1)
}

func TestPoller_RunWakesOnTrigger(t *testing.T) {
	lister := &fakeLister{}
	p := NewPoller(&state.Store{}, lister, time.Hour, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	count := func() int {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return len(lister.queries)
	}
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)
	p.Trigger()
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPoller_CancelledRefreshLeavesStore(t *testing.T) {
	lister := &fakeLister{err: context.Canceled}
	store := &state.Store{}
	p := NewPoller(store, lister, time.Second, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Refresh(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, store.Snapshot().ConsecutiveFailures)
}
