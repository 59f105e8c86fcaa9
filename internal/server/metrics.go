package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry         *prometheus.Registry
	authTotal        *prometheus.CounterVec
	prepareTotal     *prometheus.CounterVec
	txLogTotal       *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
}

func newMetricsRegistry() *metricsRegistry {
	auth := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rnft_auth_validations_total",
		Help: "Init data validations by result",
	}, []string{"status"})

	prepare := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rnft_prepared_transactions_total",
		Help: "Prepared mint and claim transactions",
	}, []string{"action", "status"})

	txLog := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rnft_tx_log_total",
		Help: "Submitted transactions reported by the mini app",
	}, []string{"status"})

	limited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rnft_rate_limited_requests_total",
		Help: "Requests rejected by the per-client rate limit",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(auth, prepare, txLog, limited)

	return &metricsRegistry{
		registry:         r,
		authTotal:        auth,
		prepareTotal:     prepare,
		txLogTotal:       txLog,
		rateLimitedTotal: limited,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incAuth(status string) {
	m.authTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incPrepare(action, status string) {
	m.prepareTotal.WithLabelValues(action, status).Inc()
}

func (m *metricsRegistry) incTxLog(status string) {
	m.txLogTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incRateLimited() {
	m.rateLimitedTotal.Inc()
}
