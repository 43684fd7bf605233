package metrics

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const namespace = "yansimam"

// Metrics holds the application collectors. Create it once and share it.
type Metrics struct {
	registry    *prometheus.Registry
	Lookups     *prometheus.CounterVec
	Submissions *prometheus.CounterVec
	Identities  *prometheus.CounterVec
	Aggregates  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, so tests can build as many as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_lookups_total",
			Help:      "Share token lookups by outcome.",
		}, []string{"outcome"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_submissions_total",
			Help:      "Vote submissions by outcome code.",
		}, []string{"outcome"}),
		Identities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voter_identities_total",
			Help:      "Derived voter identities by kind.",
		}, []string{"kind"}),
		Aggregates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "aggregations_total",
			Help:      "Session aggregation jobs by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Lookups, m.Submissions, m.Identities, m.Aggregates,
	)
	return m
}

// RegisterRedis exposes the number of Redis connected clients as a gauge.
func (m *Metrics) RegisterRedis(client *redis.Client) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "connected_clients",
			Help:      "The number of clients currently connected to Redis",
		},
		func() float64 {
			raw := client.InfoMap(context.Background()).Item("Clients", "connected_clients")
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return math.NaN()
			}
			return n
		},
	))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Lookup counts one session lookup. Nil-safe.
func (m *Metrics) Lookup(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

// Submission counts one vote submission. Nil-safe.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

// Identity counts one derived identity. Nil-safe.
func (m *Metrics) Identity(kind string) {
	if m == nil {
		return
	}
	m.Identities.WithLabelValues(kind).Inc()
}

// Aggregate counts one aggregation job. Nil-safe.
func (m *Metrics) Aggregate(result string) {
	if m == nil {
		return
	}
	m.Aggregates.WithLabelValues(result).Inc()
}
