package metrics

import (
	"time"

	"offline-sync-engine/internal/domain"
	"offline-sync-engine/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "syncd"

// SyncMetrics records cycle outcomes and connectivity. It implements
// service.CycleObserver and its ObserveStatus method is a status listener.
type SyncMetrics struct {
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	droppedTrigger prometheus.Counter
	pushed         *prometheus.CounterVec
	pulled         *prometheus.CounterVec
	online         prometheus.Gauge
	inProgress     prometheus.Gauge
	lastSync       prometheus.Gauge
}

var _ service.CycleObserver = (*SyncMetrics)(nil)

func NewSyncMetrics(reg prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Wall time of sync cycles that reached the remote.",
			Buckets:   prometheus.DefBuckets,
		}),
		droppedTrigger: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_triggers_dropped_total",
			Help:      "Sync triggers dropped because a cycle was already running.",
		}),
		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_intents_total",
			Help:      "Pushed intents by result.",
		}, []string{"result"}),
		pulled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_documents_total",
			Help:      "Pulled remote documents by result.",
		}, []string{"result"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_online",
			Help:      "1 when the last probe reached the remote.",
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_in_progress",
			Help:      "1 while a sync cycle runs.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last completed sync cycle.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.cycles, m.cycleDuration, m.droppedTrigger, m.pushed, m.pulled,
		m.online, m.inProgress, m.lastSync,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *SyncMetrics) CycleFinished(result service.CycleResult, elapsed time.Duration, err error) {
	switch {
	case err != nil:
		m.cycles.WithLabelValues("error").Inc()
		return
	case result.Skipped:
		m.cycles.WithLabelValues("skipped").Inc()
		return
	}

	m.cycles.WithLabelValues("completed").Inc()
	m.cycleDuration.Observe(elapsed.Seconds())

	m.pushed.WithLabelValues("synced").Add(float64(result.Push.Synced))
	m.pushed.WithLabelValues("skipped").Add(float64(result.Push.Skipped))
	m.pushed.WithLabelValues("conflict").Add(float64(result.Push.Conflicts))
	m.pushed.WithLabelValues("failed").Add(float64(result.Push.Failed))

	m.pulled.WithLabelValues("inserted").Add(float64(result.Pull.Inserted))
	m.pulled.WithLabelValues("updated").Add(float64(result.Pull.Updated))
	m.pulled.WithLabelValues("unchanged").Add(float64(result.Pull.Unchanged))
	m.pulled.WithLabelValues("failed").Add(float64(result.Pull.Failed))
}

func (m *SyncMetrics) TriggerDropped() {
	m.droppedTrigger.Inc()
}

// ObserveStatus mirrors a status snapshot into gauges.
func (m *SyncMetrics) ObserveStatus(status domain.StatusSnapshot) {
	m.online.Set(boolToFloat(status.IsOnline))
	m.inProgress.Set(boolToFloat(status.SyncInProgress))
	if status.LastSyncTime != nil {
		m.lastSync.Set(float64(status.LastSyncTime.Unix()))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
