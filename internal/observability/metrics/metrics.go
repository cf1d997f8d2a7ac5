package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for dispatch and reconciliation.
type EngineMetrics struct {
	cyclesTotal    *prometheus.CounterVec
	callsTotal     *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	reportsTotal   *prometheus.CounterVec
	followUpsTotal *prometheus.CounterVec
	replaysTotal   *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callflow",
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Total dispatch cycles run",
		}, []string{"trigger", "status"}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callflow",
			Subsystem: "dispatch",
			Name:      "calls_total",
			Help:      "Total outbound call initiations",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "callflow",
			Subsystem: "dispatch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of dispatch cycles",
			Buckets:   prometheus.DefBuckets,
		}),
		reportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callflow",
			Subsystem: "reconcile",
			Name:      "reports_total",
			Help:      "Total end-of-call reports processed",
		}, []string{"outcome"}),
		followUpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callflow",
			Subsystem: "reconcile",
			Name:      "follow_ups_total",
			Help:      "Total follow-up email attempts",
		}, []string{"status"}),
		replaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callflow",
			Subsystem: "reconcile",
			Name:      "replays_total",
			Help:      "Total replayed reports",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cyclesTotal, m.callsTotal, m.cycleDuration, m.reportsTotal, m.followUpsTotal, m.replaysTotal)
	return m
}

func (m *EngineMetrics) ObserveCycle(trigger, status string, seconds float64) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(trigger, status).Inc()
	m.cycleDuration.Observe(seconds)
}

func (m *EngineMetrics) ObserveCall(status string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveReport(outcome string) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveFollowUp(status string) {
	if m == nil {
		return
	}
	m.followUpsTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveReplay(status string) {
	if m == nil {
		return
	}
	m.replaysTotal.WithLabelValues(status).Inc()
}
