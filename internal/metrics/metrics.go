package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects redemption metrics on a private registry. Runtime and
// database pool metrics live on the default registry; Gatherer serves both.
type Recorder struct {
	registry    *prometheus.Registry
	redemptions *prometheus.CounterVec
	upstream    *prometheus.HistogramVec
	ledgerFails prometheus.Counter
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activation",
			Name:      "redemptions_total",
			Help:      "Redemption attempts by terminal outcome.",
		}, []string{"outcome"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "activation",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of GetCID calls by classified result.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		ledgerFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activation",
			Name:      "ledger_write_failures_total",
			Help:      "Usage ledger inserts that failed and were dropped.",
		}),
	}

	registry.MustRegister(r.redemptions, r.upstream, r.ledgerFails)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{r.registry, prometheus.DefaultGatherer}
}

// Redemption counts one finished redemption attempt. A nil Recorder is a no-op.
func (r *Recorder) Redemption(outcome string) {
	if r == nil {
		return
	}
	r.redemptions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Upstream(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.upstream.WithLabelValues(result).Observe(d.Seconds())
}

func (r *Recorder) LedgerFailure() {
	if r == nil {
		return
	}
	r.ledgerFails.Inc()
}
