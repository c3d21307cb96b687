package cluster

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/replog"
)

const namespace = "replog"

// metrics is per node so several nodes can live in one process (tests, the
// harness) without colliding in the default registry.
type metrics struct {
	reg *prometheus.Registry

	writes        *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	sends         *prometheus.CounterVec
	health        *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	catchupPasses *prometheus.CounterVec
	catchupReplay *prometheus.CounterVec
	ingests       *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "writes_total",
			Help: "Client writes by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replication_attempts_total",
			Help: "Replication requests sent to secondaries by result: ok, failed or unreachable.",
		}, []string{"addr", "result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replication_sends_total",
			Help: "Terminal outcomes of per-secondary sends.",
		}, []string{"addr", "status"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "secondary_health",
			Help: "Secondary health: 0 healthy, 1 suspected, 2 unhealthy.",
		}, []string{"addr"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "health_transitions_total",
			Help: "Health state changes by target state.",
		}, []string{"addr", "to"}),
		catchupPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "catchup_passes_total",
			Help: "Catch-up passes run per secondary.",
		}, []string{"addr"}),
		catchupReplay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "catchup_replayed_total",
			Help: "Records replayed by catch-up.",
		}, []string{"addr"}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingests_total",
			Help: "Replicated writes received by a secondary, by outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(
		m.writes, m.attempts, m.sends, m.health, m.transitions,
		m.catchupPasses, m.catchupReplay, m.ingests,
	)
	return m
}

func (m *metrics) setHealth(addr string, h replog.Health) {
	m.health.WithLabelValues(addr).Set(float64(h))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
