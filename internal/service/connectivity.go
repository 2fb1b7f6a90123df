package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/rs/zerolog/log"
)

const checkTimeout = 5 * time.Second

// ConnectivityMonitor tracks whether the remote API is reachable and notifies
// subscribers once per transition. Redundant signals are ignored.
type ConnectivityMonitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	subs      map[int]func(online bool)
	reconnect []func()
	changedAt time.Time

	pinger   Pinger
	interval time.Duration
	now      func() time.Time
}

// NewConnectivityMonitor creates a monitor in the given initial state.
// pinger may be nil when no active probing is wanted.
func NewConnectivityMonitor(initial bool, pinger Pinger, interval time.Duration) *ConnectivityMonitor {
	metrics.SetOnline(initial)
	return &ConnectivityMonitor{
		online:   initial,
		subs:     make(map[int]func(online bool)),
		pinger:   pinger,
		interval: interval,
		now:      time.Now,
	}
}

// Online reports the current state.
func (m *ConnectivityMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// ChangedAt returns when the state last changed, zero if it never did.
func (m *ConnectivityMonitor) ChangedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changedAt
}

// SetOnline records a connectivity signal and reports whether it changed the
// state. Callbacks run synchronously after the lock is released, so they may
// call back into the monitor.
func (m *ConnectivityMonitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.changedAt = m.now()

	subs := make([]func(bool), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	var reconnect []func()
	if online {
		reconnect = append(reconnect, m.reconnect...)
	}
	m.mu.Unlock()

	metrics.SetOnline(online)
	if online {
		log.Info().Msg("Remote API reachable, switching to online mode")
	} else {
		log.Warn().Msg("Remote API unreachable, switching to offline mode")
	}

	for _, fn := range subs {
		fn(online)
	}
	for _, fn := range reconnect {
		fn()
	}
	return true
}

// Subscribe registers fn for every transition. The returned function removes it.
func (m *ConnectivityMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// OnReconnect registers fn for offline → online transitions.
func (m *ConnectivityMonitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = append(m.reconnect, fn)
}

// Check pings the remote once and records the outcome. Any HTTP answer,
// even an error status, counts as reachable.
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	if m.pinger == nil {
		return m.Online()
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return m.Online()
	}
	var rej *remote.RemoteRejection
	reachable := err == nil || errors.As(err, &rej)
	if err != nil && !reachable {
		log.Debug().Err(err).Msg("Connectivity check failed")
	}
	m.SetOnline(reachable)
	return reachable
}

// Run checks immediately and then every interval until ctx is cancelled.
func (m *ConnectivityMonitor) Run(ctx context.Context) error {
	if m.pinger == nil || m.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
