package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/state"
)

const (
	defaultPollInterval = 2 * time.Second
	maxBackoff          = 30 * time.Second
)

// Health receives reachability hints from list refreshes.
type Health interface {
	ReportSuccess()
	ReportFailure(err error)
}

// Poller refreshes the notes page into a state.Store. It backs off while the
// service keeps failing and can be woken early with Trigger.
type Poller struct {
	store    *state.Store
	lister   notes.Lister
	interval time.Duration
	health   Health
	log      logrus.FieldLogger

	mu    sync.Mutex
	query notes.ListQuery

	wake chan struct{}
}

// NewPoller builds a Poller. health and logger may be nil.
func NewPoller(store *state.Store, lister notes.Lister, interval time.Duration, health Health, logger logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{
		store:    store,
		lister:   lister,
		interval: interval,
		health:   health,
		log:      logger,
		wake:     make(chan struct{}, 1),
	}
}

// SetQuery replaces the query used for refreshes and wakes the poller.
func (p *Poller) SetQuery(q notes.ListQuery) {
	p.mu.Lock()
	p.query = q
	p.mu.Unlock()
	p.Trigger()
}

// Query returns the current list query.
func (p *Poller) Query() notes.ListQuery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Trigger asks for a refresh as soon as possible. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run refreshes until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		p.Refresh(ctx)

		wait := calculateBackoff(p.store.Snapshot().ConsecutiveFailures, p.interval)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Refresh fetches one page and records the outcome.
func (p *Poller) Refresh(ctx context.Context) error {
	query := p.Query()
	page, err := p.lister.ListNotes(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.store.Update(nil, query, err)
		if p.health != nil && notes.IsConnectivity(err) {
			p.health.ReportFailure(err)
		}
		p.log.WithError(err).Warn("notes poll failed")
		return err
	}
	p.store.Update(&page, query, nil)
	if p.health != nil {
		p.health.ReportSuccess()
	}
	return nil
}

// calculateBackoff doubles base for each consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
