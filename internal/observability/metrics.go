package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "celebrator"

// Metrics exposes Prometheus collectors for the stream supervisor, the
// celebration policy and the ledger. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation in tests.
type Metrics struct {
	streamEvents       *prometheus.CounterVec
	staleEvents        prometheus.Counter
	subscriptions      *prometheus.CounterVec
	restarts           prometheus.Counter
	epoch              prometheus.Gauge
	celebrations       *prometheus.CounterVec
	ledgerEntries      prometheus.Gauge
	ledgerSaveFailures prometheus.Counter
}

// NewMetrics constructs and registers the collectors on reg. A nil reg uses
// the default Prometheus registerer. Registration errors other than
// duplicate registration are returned.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Stream events received, by event kind.",
		}, []string{"kind"}),
		staleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "stale_events_total",
			Help:      "Events dropped because they belonged to a superseded subscription epoch.",
		}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "subscriptions_total",
			Help:      "Subscribe attempts, by result.",
		}, []string{"result"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of times the supervisor entered the cooldown before reconnecting.",
		}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "supervisor",
			Name:      "epoch",
			Help:      "Current subscription epoch.",
		}),
		celebrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "policy",
			Name:      "celebrations_total",
			Help:      "Celebration attempts, by kind and result.",
		}, []string{"kind", "result"}),
		ledgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "entries",
			Help:      "Number of celebrations recorded in the ledger.",
		}),
		ledgerSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "save_failures_total",
			Help:      "Ledger persistence failures.",
		}),
	}

	collectors := []prometheus.Collector{
		m.streamEvents, m.staleEvents, m.subscriptions, m.restarts,
		m.epoch, m.celebrations, m.ledgerEntries, m.ledgerSaveFailures,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// ObserveEvent counts a received stream event of the given kind.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(kind).Inc()
}

// IncStaleEvent counts an event discarded by the epoch guard.
func (m *Metrics) IncStaleEvent() {
	if m == nil {
		return
	}
	m.staleEvents.Inc()
}

// ObserveSubscribe counts a subscribe attempt.
func (m *Metrics) ObserveSubscribe(err error) {
	if m == nil {
		return
	}
	result := "connected"
	if err != nil {
		result = "failed"
	}
	m.subscriptions.WithLabelValues(result).Inc()
}

// IncRestart counts a cooldown-and-reconnect cycle.
func (m *Metrics) IncRestart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

// SetEpoch publishes the current subscription epoch.
func (m *Metrics) SetEpoch(epoch uint64) {
	if m == nil {
		return
	}
	m.epoch.Set(float64(epoch))
}

// ObserveCelebration counts a celebration attempt.
func (m *Metrics) ObserveCelebration(kind string, err error) {
	if m == nil {
		return
	}
	result := "posted"
	if err != nil {
		result = "failed"
	}
	m.celebrations.WithLabelValues(kind, result).Inc()
}

// SetLedgerEntries publishes the ledger size.
func (m *Metrics) SetLedgerEntries(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}

// IncLedgerSaveFailure counts a failed ledger save.
func (m *Metrics) IncLedgerSaveFailure() {
	if m == nil {
		return
	}
	m.ledgerSaveFailures.Inc()
}
