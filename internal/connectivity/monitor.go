// Package connectivity tracks whether the note service is reachable and
// signals the offline to online transition.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger probes the service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Source emits a signal each time the service becomes reachable again.
type Source interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Online              bool
	ConsecutiveFailures int
	LastChecked         time.Time
	LastError           error
}

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 3 * time.Second
	// offlineThreshold is the number of consecutive failures before the
	// service is considered offline.
	offlineThreshold = 2
)

// MonitorOptions tune a Monitor.
type MonitorOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   logrus.FieldLogger
}

// Monitor probes the service on an interval. It starts optimistic (online)
// and flips offline after repeated failures.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	status Status
	subs   map[int]func()
	nextID int
}

var _ Source = (*Monitor)(nil)

// NewMonitor builds a Monitor around pinger.
func NewMonitor(pinger Pinger, opts MonitorOptions) *Monitor {
	m := &Monitor{
		pinger:   pinger,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		status:   Status{Online: true},
		subs:     make(map[int]func()),
	}
	if m.interval <= 0 {
		m.interval = defaultProbeInterval
	}
	if m.timeout <= 0 {
		m.timeout = defaultProbeTimeout
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	return m
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check runs one probe and returns whether the service is considered online.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.pinger.Ping(probeCtx); err != nil {
		if ctx.Err() != nil {
			return m.Online()
		}
		m.ReportFailure(err)
	} else {
		m.ReportSuccess()
	}
	return m.Online()
}

// ReportSuccess records a successful round trip. If the service was offline
// subscribers are notified.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	wasOnline := m.status.Online
	m.status.Online = true
	m.status.ConsecutiveFailures = 0
	m.status.LastError = nil
	m.status.LastChecked = time.Now()
	var subs []func()
	if !wasOnline {
		subs = m.subscribersLocked()
	}
	m.mu.Unlock()

	if !wasOnline {
		m.log.WithField("subscribers", len(subs)).Info("service is reachable again")
		for _, fn := range subs {
			fn()
		}
	}
}

// ReportFailure records a failed round trip.
func (m *Monitor) ReportFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.ConsecutiveFailures++
	m.status.LastError = err
	m.status.LastChecked = time.Now()
	if m.status.Online && m.status.ConsecutiveFailures >= offlineThreshold {
		m.status.Online = false
		m.log.WithError(err).Warn("service is unreachable")
	}
}

// Online reports the current reachability verdict.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Online
}

// Status returns a copy of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers fn for "became online" signals. The returned function
// unregisters it and is safe to call more than once.
func (m *Monitor) Subscribe(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Monitor) subscribersLocked() []func() {
	subs := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return subs
}
