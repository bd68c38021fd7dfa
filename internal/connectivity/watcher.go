package connectivity

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ReplayFunc is the replay entry point invoked on each online signal.
type ReplayFunc func(ctx context.Context)

// Watcher turns online signals from a Source into replay calls.
type Watcher struct {
	source Source
	replay ReplayFunc
	log    logrus.FieldLogger

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	running     bool
	wg          sync.WaitGroup
}

// NewWatcher builds a Watcher. Nothing happens until Start.
func NewWatcher(source Source, replay ReplayFunc, logger logrus.FieldLogger) *Watcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{source: source, replay: replay, log: logger}
}

// Start registers the single subscription and runs one replay immediately so
// actions left over from a previous session are retried.
func (w *Watcher) Start(ctx context.Context) error {
	if w.source == nil || w.replay == nil {
		return fmt.Errorf("watcher requires a source and a replay func")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already started")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.unsubscribe = w.source.Subscribe(w.onOnline)
	w.spawnLocked("startup")
	return nil
}

// Stop unregisters from the source and waits for in-flight replays.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.unsubscribe()
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Watcher) onOnline() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.spawnLocked("online")
}

func (w *Watcher) spawnLocked(trigger string) {
	ctx := w.ctx
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.WithField("trigger", trigger).Debug("replaying pending actions")
		w.replay(ctx)
	}()
}
