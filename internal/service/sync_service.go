package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"offline-sync-engine/internal/domain"

	"go.uber.org/zap"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultSyncInterval  = 60 * time.Second
)

type SyncOptions struct {
	ProbeInterval time.Duration
	SyncInterval  time.Duration
	// Observer, when set, is told about every executed or dropped cycle.
	Observer CycleObserver
}

// CycleObserver receives cycle outcomes, typically for metrics.
type CycleObserver interface {
	CycleFinished(result CycleResult, elapsed time.Duration, err error)
	TriggerDropped()
}

type CycleResult struct {
	// Skipped is set when the remote was unreachable at cycle start.
	Skipped     bool       `json:"skipped"`
	Push        PushResult `json:"push"`
	Pull        PullResult `json:"pull"`
	CompletedAt time.Time  `json:"completedAt"`
}

// SyncService is the single-flight scheduler sequencing push then pull.
// Cycles are triggered by mutations, online transitions, a periodic timer
// or an explicit request; a trigger while a cycle runs is dropped.
type SyncService struct {
	monitor *NetworkMonitor
	push    *PushEngine
	pull    *PullEngine
	clock   Clock
	logger  *zap.Logger
	opts    SyncOptions

	running atomic.Bool

	statusMu     sync.RWMutex
	lastSyncTime *time.Time

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewSyncService(
	monitor *NetworkMonitor,
	push *PushEngine,
	pull *PullEngine,
	clock Clock,
	logger *zap.Logger,
	opts SyncOptions,
) *SyncService {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}

	s := &SyncService{
		monitor: monitor,
		push:    push,
		pull:    pull,
		clock:   clock,
		logger:  logger,
		opts:    opts,
	}

	monitor.SetStatusFunc(s.Status)
	monitor.OnOnline(func() {
		s.logger.Info("remote came online, starting sync")
		s.TriggerAsync()
	})

	return s
}

// Start begins network probing and the periodic sync timer.
func (s *SyncService) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.monitor.Start(s.opts.ProbeInterval)

	s.wg.Add(1)
	go s.runTimer(ctx)
}

// Stop halts both timers and waits for background cycles to finish. A
// running cycle is not interrupted.
func (s *SyncService) Stop() {
	s.lifecycleMu.Lock()
	if s.stopped {
		s.lifecycleMu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.monitor.Stop()
	s.wg.Wait()
}

func (s *SyncService) runTimer(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.monitor.Online() {
				s.TriggerAsync()
			}
		}
	}
}

// IsOnline reports the last probed reachability.
func (s *SyncService) IsOnline() bool {
	return s.monitor.Online()
}

// TriggerAsync starts a cycle in the background and returns immediately.
func (s *SyncService) TriggerAsync() {
	if s.running.Load() {
		s.triggerDropped()
		return
	}

	s.lifecycleMu.Lock()
	if s.stopped {
		s.lifecycleMu.Unlock()
		return
	}
	s.wg.Add(1)
	s.lifecycleMu.Unlock()

	go func() {
		defer s.wg.Done()
		if _, err := s.RunCycle(context.Background()); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
			s.logger.Error("sync cycle failed", zap.Error(err))
		}
	}()
}

// ManualSync runs one cycle and waits for it.
func (s *SyncService) ManualSync(ctx context.Context) (CycleResult, error) {
	s.logger.Info("manual sync triggered")
	return s.RunCycle(ctx)
}

// RunCycle executes one push-then-pull cycle. It returns ErrSyncInProgress
// without doing anything when another cycle holds the guard. Cancelling ctx
// after the cycle has started does not interrupt it.
func (s *SyncService) RunCycle(ctx context.Context) (result CycleResult, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.triggerDropped()
		return result, domain.ErrSyncInProgress
	}
	// A started cycle runs to completion; caller cancellation is ignored.
	ctx = context.WithoutCancel(ctx)
	started := s.clock.Now()
	defer func() {
		s.running.Store(false)
		if s.opts.Observer != nil {
			s.opts.Observer.CycleFinished(result, s.clock.Now().Sub(started), err)
		}
		s.monitor.Notify()
	}()

	s.monitor.Notify()
	s.logger.Info("starting sync cycle")

	reachable := s.monitor.Probe(ctx)
	s.monitor.record(reachable)
	if !reachable {
		s.logger.Info("remote not reachable, skipping sync")
		result.Skipped = true
		return result, nil
	}

	if result.Push, err = s.push.Push(ctx); err != nil {
		return result, fmt.Errorf("push: %w", err)
	}
	result.Pull = s.pull.Pull(ctx)

	now := s.clock.Now()
	result.CompletedAt = now
	s.statusMu.Lock()
	s.lastSyncTime = &now
	s.statusMu.Unlock()

	s.logger.Info("sync cycle completed",
		zap.Int("pushed", result.Push.Synced),
		zap.Int("push_conflicts", result.Push.Conflicts),
		zap.Int("push_failed", result.Push.Failed),
		zap.Int("pulled_inserted", result.Pull.Inserted),
		zap.Int("pulled_updated", result.Pull.Updated),
	)
	return result, nil
}

func (s *SyncService) triggerDropped() {
	s.logger.Debug("sync trigger dropped: cycle already running")
	if s.opts.Observer != nil {
		s.opts.Observer.TriggerDropped()
	}
}

// Status returns a point-in-time snapshot.
func (s *SyncService) Status() domain.StatusSnapshot {
	s.statusMu.RLock()
	var last *time.Time
	if s.lastSyncTime != nil {
		t := *s.lastSyncTime
		last = &t
	}
	s.statusMu.RUnlock()

	return domain.StatusSnapshot{
		IsOnline:       s.monitor.Online(),
		SyncInProgress: s.running.Load(),
		LastSyncTime:   last,
	}
}

func (s *SyncService) AddListener(fn Listener) ListenerID {
	return s.monitor.AddListener(fn)
}

func (s *SyncService) RemoveListener(id ListenerID) bool {
	return s.monitor.RemoveListener(id)
}
