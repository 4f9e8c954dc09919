package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"offline-sync-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncService_SkipsWhenUnreachable(t *testing.T) {
	h := newHarness(t)
	h.createBusiness("Offline Edit")
	h.srv.SetAvailable(false)

	result, err := h.sync.ManualSync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Len(t, h.pending(), 1)
	assert.Nil(t, h.sync.Status().LastSyncTime)
}

func TestSyncService_CyclePushesThenPulls(t *testing.T) {
	h := newHarness(t)
	biz := h.createBusiness("Local")
	h.srv.Seed("articles", map[string]any{
		"_id":           "a1",
		"name":          "Remote Article",
		"qty":           1,
		"selling_price": 9.99,
		"business_id":   biz.ID,
	})

	result, err := h.sync.ManualSync(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Push.Synced)
	assert.Equal(t, 1, result.Pull.Inserted)
	// The pushed business comes back with the revision already recorded.
	assert.Equal(t, 1, result.Pull.Unchanged)

	status := h.sync.Status()
	require.NotNil(t, status.LastSyncTime)
	assert.Equal(t, result.CompletedAt, *status.LastSyncTime)
	assert.False(t, status.SyncInProgress)
}

func TestSyncService_NotifiesAroundCycle(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var seen []domain.StatusSnapshot
	h.sync.AddListener(func(s domain.StatusSnapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_, err := h.sync.ManualSync(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].SyncInProgress)
	assert.False(t, seen[1].SyncInProgress)
	assert.NotNil(t, seen[1].LastSyncTime)
}

func TestSyncService_SingleFlight(t *testing.T) {
	h := newHarness(t)
	store := newBlockingStore(h.remote)
	h.build(store)
	h.createBusiness("Once")

	type outcome struct {
		result CycleResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		r, err := h.sync.ManualSync(context.Background())
		first <- outcome{r, err}
	}()
	<-store.entered

	assert.True(t, h.sync.Status().SyncInProgress)
	_, err := h.sync.ManualSync(context.Background())
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
	h.sync.TriggerAsync()

	close(store.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.result.Push.Synced)

	assert.False(t, h.sync.Status().SyncInProgress)
	assert.Empty(t, h.pending())
}

func TestSyncService_CycleOutlivesCallerCancel(t *testing.T) {
	h := newHarness(t)
	store := newBlockingStore(h.remote)
	h.build(store)
	biz := h.createBusiness("Unattended")

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		result CycleResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := h.sync.ManualSync(ctx)
		done <- outcome{r, err}
	}()
	<-store.entered

	// The client hangs up while the cycle is in flight.
	cancel()
	close(store.release)

	got := <-done
	require.NoError(t, got.err)
	assert.False(t, got.result.Skipped)
	assert.Equal(t, 1, got.result.Push.Synced)
	assert.Empty(t, h.pending())
	assert.NotNil(t, h.srv.Doc("businesses", biz.ID))
	assert.Equal(t, h.srv.Doc("businesses", biz.ID)["_rev"], h.local("businesses", biz.ID).RemoteRevision)
}

func TestSyncService_ManualSyncUpdatesOnlineState(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.sync.IsOnline())

	_, err := h.sync.ManualSync(context.Background())
	require.NoError(t, err)
	assert.True(t, h.sync.IsOnline())
	assert.True(t, h.sync.Status().IsOnline)

	h.srv.SetAvailable(false)
	result, err := h.sync.ManualSync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.False(t, h.sync.IsOnline())
}

func TestSyncService_GuardReleasedAfterPushError(t *testing.T) {
	h := newHarness(t)
	failing := &failingIntents{SyncIntentRepository: h.intents, failPending: true}
	h.intents = failing
	h.build(h.remote)

	_, err := h.sync.ManualSync(context.Background())
	require.ErrorIs(t, err, errInjected)
	assert.False(t, h.sync.Status().SyncInProgress)
	assert.Nil(t, h.sync.Status().LastSyncTime)

	failing.failPending = false
	_, err = h.sync.ManualSync(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h.sync.Status().LastSyncTime)
}

func TestSyncService_TriggerAsyncRunsInBackground(t *testing.T) {
	h := newHarness(t)
	biz := h.createBusiness("Background")

	h.sync.TriggerAsync()
	require.Eventually(t, func() bool {
		return h.srv.Doc("businesses", biz.ID) != nil && h.sync.Status().LastSyncTime != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncService_MutationTriggersSyncWhenOnline(t *testing.T) {
	h := newHarness(t)
	h.autoSync = true
	h.build(h.remote)
	require.True(t, h.monitor.Check(context.Background()))
	// The online edge starts a cycle of its own; let it finish so the
	// mutation's trigger is not dropped.
	require.Eventually(t, func() bool {
		s := h.sync.Status()
		return s.LastSyncTime != nil && !s.SyncInProgress
	}, 5*time.Second, 10*time.Millisecond)

	biz := h.createBusiness("Auto Synced")
	require.Eventually(t, func() bool {
		return len(h.pending()) == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotNil(t, h.srv.Doc("businesses", biz.ID))
}

func TestSyncService_StartSyncsOnOnlineTransition(t *testing.T) {
	h := newHarness(t)
	h.sync = NewSyncService(h.monitor, h.push, h.pull, h.clock, h.logger, SyncOptions{
		ProbeInterval: 20 * time.Millisecond,
		SyncInterval:  time.Hour,
	})
	t.Cleanup(h.sync.Stop)

	h.srv.SetAvailable(false)
	biz := h.createBusiness("Queued Offline")

	h.sync.Start()
	assert.Never(t, func() bool { return h.sync.IsOnline() }, 100*time.Millisecond, 10*time.Millisecond)

	h.srv.SetAvailable(true)
	require.Eventually(t, func() bool {
		return h.srv.Doc("businesses", biz.ID) != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, h.sync.IsOnline())
}

func TestSyncService_PeriodicTimerSyncsWhileOnline(t *testing.T) {
	h := newHarness(t)
	h.sync = NewSyncService(h.monitor, h.push, h.pull, h.clock, h.logger, SyncOptions{
		ProbeInterval: time.Hour,
		SyncInterval:  20 * time.Millisecond,
	})
	t.Cleanup(h.sync.Stop)

	h.sync.Start()
	require.Eventually(t, h.sync.IsOnline, 5*time.Second, 10*time.Millisecond)

	h.srv.Seed("businesses", map[string]any{"_id": "remote-only", "name": "Pulled By Timer"})
	require.Eventually(t, func() bool {
		_, err := h.docs.FindByID(context.Background(), "businesses", "remote-only")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncService_StopIsIdempotentAndFinal(t *testing.T) {
	h := newHarness(t)
	h.sync.Start()
	h.sync.Stop()
	h.sync.Stop()

	h.sync.Start()
	biz := h.createBusiness("After Stop")
	h.sync.TriggerAsync()

	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, h.srv.Doc("businesses", biz.ID))
	assert.Len(t, h.pending(), 1)
}

type recordingObserver struct {
	mu      sync.Mutex
	results []CycleResult
	errs    []error
	dropped int
}

func (o *recordingObserver) CycleFinished(result CycleResult, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) TriggerDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func TestSyncService_ReportsCyclesToObserver(t *testing.T) {
	h := newHarness(t)
	obs := &recordingObserver{}
	h.syncOpts = SyncOptions{Observer: obs}
	store := newBlockingStore(h.remote)
	h.build(store)
	h.createBusiness("Observed")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.sync.ManualSync(context.Background())
	}()
	<-store.entered

	_, err := h.sync.ManualSync(context.Background())
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
	h.sync.TriggerAsync()

	close(store.release)
	<-done

	h.srv.SetAvailable(false)
	_, err = h.sync.ManualSync(context.Background())
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 2, obs.dropped)
	require.Len(t, obs.results, 2)
	assert.Equal(t, 1, obs.results[0].Push.Synced)
	assert.NoError(t, obs.errs[0])
	assert.True(t, obs.results[1].Skipped)
}
