package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/valibibe/recall/internal/actionqueue"
	"github.com/valibibe/recall/internal/archive"
	"github.com/valibibe/recall/internal/config"
	"github.com/valibibe/recall/internal/connectivity"
	"github.com/valibibe/recall/internal/logging"
	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/prefs"
	"github.com/valibibe/recall/internal/state"
	"github.com/valibibe/recall/internal/storage"
	"github.com/valibibe/recall/internal/ui"
)

// Options configure the recall application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/recall/prefs.toml
	PollEvery  int    // seconds; zero uses the config value
	// Ephemeral keeps the action queue in memory instead of SQLite.
	Ephemeral bool
	// Logger replaces the file logger built from the config.
	Logger *logrus.Logger
}

// Runtime holds every long-lived component of a session.
type Runtime struct {
	Config      config.Config
	Prefs       prefs.Prefs
	PrefsPath   string
	Log         *logrus.Logger
	Client      *notes.Client
	Queue       *actionqueue.Store
	Monitor     *connectivity.Monitor
	Watcher     *connectivity.Watcher
	Coordinator *archive.Coordinator
	Poller      *Poller
	Store       *state.Store
	TokenExpiry time.Time

	// Failures and Changes are best-effort notification streams for the UI.
	Failures chan archive.Failure
	Changes  chan struct{}

	closers []io.Closer
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Open loads configuration and wires the runtime. Nothing runs in the
// background until Start.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rt := &Runtime{
		Config:    cfg,
		PrefsPath: opts.PrefsPath,
		Prefs:     prefs.Load(opts.PrefsPath),
		Store:     &state.Store{},
		Failures:  make(chan archive.Failure, 16),
		Changes:   make(chan struct{}, 1),
	}

	rt.Log = opts.Logger
	if rt.Log == nil {
		logger, closer, err := logging.New(cfg.LogPath(), cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
		rt.Log = logger
		rt.closers = append(rt.closers, closer)
	}

	if err := rt.wire(ctx, opts); err != nil {
		_ = rt.closeResources()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context, opts Options) error {
	cfg := rt.Config

	var clientOpts []notes.Option
	if cfg.Token != "" {
		clientOpts = append(clientOpts, notes.WithToken(cfg.Token))
		exp, err := notes.TokenExpiry(cfg.Token)
		if err != nil {
			rt.Log.WithError(err).Warn("could not read token expiry")
		}
		rt.TokenExpiry = exp
	}
	client, err := notes.NewClient(cfg.APIURL, clientOpts...)
	if err != nil {
		return fmt.Errorf("init notes client: %w", err)
	}
	rt.Client = client

	var kv storage.KV
	if opts.Ephemeral {
		kv = storage.NewMemory()
	} else {
		db, err := storage.Open(cfg.DBPath())
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		rt.closers = append(rt.closers, db)
		kv = db
	}

	queue, err := actionqueue.Open(ctx, kv, actionqueue.Options{
		MaxAttempts: cfg.MaxReplayAttempts,
		Logger:      rt.Log.WithField("component", "actionqueue"),
	})
	if err != nil {
		return fmt.Errorf("open action queue: %w", err)
	}
	rt.Queue = queue

	rt.Monitor = connectivity.NewMonitor(client, connectivity.MonitorOptions{
		Interval: cfg.ProbeInterval,
		Logger:   rt.Log.WithField("component", "connectivity"),
	})

	interval := cfg.PollInterval
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}
	rt.Poller = NewPoller(rt.Store, client, interval, rt.Monitor, rt.Log.WithField("component", "poller"))

	coord, err := archive.New(client, queue, archive.Options{
		UndoWindow:   cfg.UndoWindow,
		HideQueued:   cfg.HideQueued,
		Connectivity: rt.Monitor,
		Health:       rt.Monitor,
		OnCommitted:  func(string) { rt.Poller.Trigger() },
		OnRestored:   func(string) { rt.Poller.Trigger() },
		OnFailure:    rt.reportFailure,
		OnChange:     rt.notifyChange,
		Logger:       rt.Log.WithField("component", "archive"),
	})
	if err != nil {
		return fmt.Errorf("init archive coordinator: %w", err)
	}
	rt.Coordinator = coord

	rt.Watcher = connectivity.NewWatcher(rt.Monitor, func(ctx context.Context) {
		res, err := coord.Replay(ctx)
		if err != nil {
			rt.Log.WithError(err).Warn("replay failed")
			return
		}
		if len(res.Committed) > 0 {
			rt.Poller.Trigger()
		}
	}, rt.Log.WithField("component", "watcher"))

	return nil
}

// Start launches the connectivity monitor, the poller and the replay
// watcher. They stop when ctx is cancelled or Close is called.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.cancel != nil {
		return errors.New("runtime already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.Monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		rt.Poller.Run(gctx)
		return nil
	})
	rt.group = g

	if err := rt.Watcher.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start replay watcher: %w", err)
	}
	return nil
}

// Close flushes open undo windows into the queue, stops background work and
// releases storage and the log file.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Coordinator != nil {
		if err := rt.Coordinator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close coordinator: %w", err))
		}
	}
	if rt.Watcher != nil {
		rt.Watcher.Stop()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.group != nil {
		_ = rt.group.Wait()
	}
	if err := rt.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeResources() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) reportFailure(f archive.Failure) {
	rt.Log.WithFields(logrus.Fields{
		"note_id": f.NoteID,
		"op":      f.Op,
	}).WithError(f.Err).Warn("archive operation failed")
	select {
	case rt.Failures <- f:
	default:
	}
}

func (rt *Runtime) notifyChange() {
	select {
	case rt.Changes <- struct{}{}:
	default:
	}
}

// Run boots the recall TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	rt, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			rt.Log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	rt.Poller.SetQuery(ui.InitialQuery(rt.Prefs))
	// Initial refresh so the first frame has data.
	_ = rt.Poller.Refresh(ctx)

	if err := rt.Start(ctx); err != nil {
		return err
	}

	return ui.Run(ui.Options{
		Context:     ctx,
		Archiver:    rt.Coordinator,
		Restorer:    rt.Client,
		Online:      rt.Monitor.Online,
		SetQuery:    rt.Poller.SetQuery,
		Refresh:     rt.Poller.Trigger,
		Store:       rt.Store,
		Prefs:       rt.Prefs,
		PrefsPath:   rt.PrefsPath,
		LogPath:     rt.Config.LogPath(),
		TokenExpiry: rt.TokenExpiry,
		Failures:    rt.Failures,
		Changes:     rt.Changes,
	})
}
