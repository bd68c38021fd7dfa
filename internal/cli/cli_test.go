package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valibibe/recall/internal/config"
)

const noteID = "0b8e2c4a-7f3d-4e21-9c6a-5d1f8e3b2a90"

type fakeService struct {
	down       atomic.Bool
	archives   atomic.Int32
	unarchives atomic.Int32
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	unavailable := func(w http.ResponseWriter) bool {
		if s.down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return true
		}
		return false
	}
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		if unavailable(w) {
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if unavailable(w) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"title":"Verbs","created_at":"2024-05-01T10:00:00Z"}`, r.PathValue("id"))
	})
	mux.HandleFunc("POST /notes/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		if unavailable(w) {
			return
		}
		archived := r.PathValue("action") == "archive"
		if archived {
			s.archives.Add(1)
		} else {
			s.unarchives.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"title":"Verbs","archived":%t,"created_at":"2024-05-01T10:00:00Z"}`, r.PathValue("id"), archived)
	})
	return mux
}

func setup(t *testing.T, undoMS int) (*fakeService, string) {
	t.Helper()
	svc := &fakeService{}
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.TokenEnv, "")

	dir := t.TempDir()
	body := fmt.Sprintf("api_url = %q\ndata_dir = %q\nundo_window_ms = %d\n", server.URL, filepath.Join(dir, "data"), undoMS)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return svc, path
}

func execute(ctx context.Context, cfgPath string, args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestArchiveCommitsAfterWindow(t *testing.T) {
	svc, cfg := setup(t, 100)

	out, err := execute(context.Background(), cfg, "archive", noteID)
	require.NoError(t, err)
	assert.Contains(t, out, `Archived "Verbs".`)
	assert.Equal(t, int32(1), svc.archives.Load())

	out, err = execute(context.Background(), cfg, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "No queued actions.")
}

func TestArchiveInterruptUndoes(t *testing.T) {
	svc, cfg := setup(t, 5000)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	out, err := execute(ctx, cfg, "archive", noteID)
	require.NoError(t, err)
	assert.Contains(t, out, "Undone.")
	assert.Zero(t, svc.archives.Load())

	out, err = execute(context.Background(), cfg, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "No queued actions.")
}

func TestOfflineArchiveQueuesThenReplays(t *testing.T) {
	svc, cfg := setup(t, 100)
	svc.down.Store(true)

	out, err := execute(context.Background(), cfg, "archive", noteID)
	require.NoError(t, err)
	assert.Contains(t, out, "queued for replay")

	out, err = execute(context.Background(), cfg, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "ATTEMPTS")
	assert.Contains(t, out, noteID)

	out, err = execute(context.Background(), cfg, "queue", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"noteId": "`+noteID+`"`)

	svc.down.Store(false)
	out, err = execute(context.Background(), cfg, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "1 replayed, 0 dropped, 0 still queued")
	assert.Equal(t, int32(1), svc.archives.Load())

	out, err = execute(context.Background(), cfg, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "No queued actions.")
}

func TestUnarchiveDropsQueuedAction(t *testing.T) {
	svc, cfg := setup(t, 100)
	svc.down.Store(true)

	_, err := execute(context.Background(), cfg, "archive", noteID)
	require.NoError(t, err)

	svc.down.Store(false)
	out, err := execute(context.Background(), cfg, "unarchive", noteID)
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped queued archive")
	assert.Zero(t, svc.unarchives.Load())

	out, err = execute(context.Background(), cfg, "unarchive", noteID)
	require.NoError(t, err)
	assert.Contains(t, out, `Restored "Verbs".`)
	assert.Equal(t, int32(1), svc.unarchives.Load())
}

func TestRejectsInvalidNoteID(t *testing.T) {
	_, cfg := setup(t, 100)

	_, err := execute(context.Background(), cfg, "archive", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-uuid")
}

func TestRootNeedsTerminal(t *testing.T) {
	_, cfg := setup(t, 100)
	prev := isTerminal
	isTerminal = func() bool { return false }
	t.Cleanup(func() { isTerminal = prev })

	_, err := execute(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal")
}
