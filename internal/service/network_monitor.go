package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"offline-sync-engine/internal/domain"

	"go.uber.org/zap"
)

const DefaultProbeTimeout = 3 * time.Second

// NetworkMonitor tracks reachability of the remote store by probing it.
// It fires the came-online callback only on an offline to online edge.
type NetworkMonitor struct {
	remote    Pinger
	timeout   time.Duration
	logger    *zap.Logger
	listeners Listeners
	online    atomic.Bool

	mu       sync.Mutex
	onOnline func()
	statusFn func() domain.StatusSnapshot
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewNetworkMonitor(remote Pinger, timeout time.Duration, logger *zap.Logger) *NetworkMonitor {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkMonitor{
		remote:  remote,
		timeout: timeout,
		logger:  logger,
	}
}

// OnOnline registers the callback run after an offline to online transition.
func (m *NetworkMonitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = fn
}

// SetStatusFunc replaces the source of snapshots delivered by Notify. The
// default only knows the online flag.
func (m *NetworkMonitor) SetStatusFunc(fn func() domain.StatusSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusFn = fn
}

func (m *NetworkMonitor) Online() bool {
	return m.online.Load()
}

// Probe checks liveness with a bounded timeout. It does not change state.
func (m *NetworkMonitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.remote.Ping(ctx); err != nil {
		m.logger.Debug("remote probe failed", zap.Error(err))
		return false
	}
	return true
}

// Check probes, records the new state, fires the came-online callback on
// a false to true edge and notifies listeners.
func (m *NetworkMonitor) Check(ctx context.Context) bool {
	online := m.Probe(ctx)
	if ctx.Err() != nil {
		// Stopped mid-probe; the result says nothing about the remote.
		return m.Online()
	}

	if was := m.record(online); !was && online {
		m.mu.Lock()
		cb := m.onOnline
		m.mu.Unlock()
		if cb != nil {
			cb()
		}
	}

	m.Notify()
	return online
}

// record stores a liveness result and returns the previous state. It
// neither fires the came-online callback nor notifies listeners.
func (m *NetworkMonitor) record(online bool) (was bool) {
	was = m.online.Swap(online)
	if was != online {
		m.logger.Info("network status changed", zap.Bool("online", online))
	}
	return was
}

// Start probes immediately and then every interval until Stop.
func (m *NetworkMonitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop cancels any in-flight probe and waits for the probe loop to exit.
func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *NetworkMonitor) AddListener(fn Listener) ListenerID {
	return m.listeners.Add(fn)
}

func (m *NetworkMonitor) RemoveListener(id ListenerID) bool {
	return m.listeners.Remove(id)
}

// Notify delivers the current status snapshot to every listener.
func (m *NetworkMonitor) Notify() {
	m.listeners.Notify(m.status())
}

func (m *NetworkMonitor) status() domain.StatusSnapshot {
	m.mu.Lock()
	fn := m.statusFn
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return domain.StatusSnapshot{IsOnline: m.Online()}
}
