package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	AssessmentsTotal       *prometheus.CounterVec
	ProbesTotal            *prometheus.CounterVec
	ResolutionsTotal       *prometheus.CounterVec
	ReferenceQueriesTotal  *prometheus.CounterVec
	ReferenceQueryDuration *prometheus.HistogramVec
	NotificationsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AssessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_assessments_total",
			Help: "Total assessments by strategy source and triage level.",
		}, []string{"source", "level"}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_probes_total",
			Help: "Total flow probes by detected flow.",
		}, []string{"flow"}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_resolutions_total",
			Help: "Total reference resolutions by winning tier and outcome.",
		}, []string{"tier", "outcome"}),
		ReferenceQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_reference_queries_total",
			Help: "Total reference store queries by collection, tier and outcome.",
		}, []string{"collection", "tier", "outcome"}),
		ReferenceQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vettriage_reference_query_duration_seconds",
			Help:    "Duration of reference store queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"collection"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_notifications_total",
			Help: "Total emergency notifications by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.AssessmentsTotal,
		m.ProbesTotal,
		m.ResolutionsTotal,
		m.ReferenceQueriesTotal,
		m.ReferenceQueryDuration,
		m.NotificationsTotal,
	)

	return m
}

// Hooks returns ResolverHooks that update the corresponding metrics.
func (m *Metrics) Hooks() ResolverHooks {
	return ResolverHooks{
		OnQuery: func(collection string, tier Tier, duration float64, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.ReferenceQueriesTotal.WithLabelValues(collection, string(tier), outcome).Inc()
			m.ReferenceQueryDuration.WithLabelValues(collection).Observe(duration)
		},
		OnResolve: func(tier Tier, found bool) {
			if !found {
				m.ResolutionsTotal.WithLabelValues("none", "not_found").Inc()
				return
			}
			m.ResolutionsTotal.WithLabelValues(string(tier), "matched").Inc()
		},
	}
}
