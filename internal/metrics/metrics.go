package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geminichat",
		Name:      "quota_decisions_total",
		Help:      "Quota checks by tier and outcome.",
	}, []string{"tier", "outcome"})

	DispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geminichat",
		Name:      "dispatch_results_total",
		Help:      "Generation task enqueue attempts by outcome.",
	}, []string{"outcome"})

	GenerationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geminichat",
		Name:      "generation_outcomes_total",
		Help:      "Generation tasks handled by the worker, by outcome.",
	}, []string{"outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geminichat",
		Name:      "provider_request_seconds",
		Help:      "Latency of AI provider attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"provider", "result"})

	ReclaimedTasks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geminichat",
		Name:      "reclaimed_tasks_total",
		Help:      "Pending stream entries claimed from idle consumers.",
	})
)

// Handler exposes the default registry for gin routers.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Serve runs a bare metrics endpoint for processes without a gin router.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
