package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drilarchive_api_requests_total",
		Help: "Total API requests by endpoint",
	}, []string{"endpoint"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drilarchive_api_retries_total",
		Help: "Total rate limit retries by endpoint",
	}, []string{"endpoint"})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drilarchive_cache_hits_total",
		Help: "Total API responses served from the response cache",
	})
	DroppedStubs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drilarchive_dropped_stubs_total",
		Help: "Total unresolved tweets dropped at finalize",
	})
	CompileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drilarchive_compile_duration_seconds",
		Help:    "Timeline compile duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(APIRequests, APIRetries, CacheHits, DroppedStubs, CompileDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g. ":9090").
// A compile is a batch run, so this is opt-in and best effort.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveCompileDuration records a compile run duration.
func ObserveCompileDuration(start time.Time) {
	CompileDuration.Observe(time.Since(start).Seconds())
}
