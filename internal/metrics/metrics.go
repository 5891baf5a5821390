// Package metrics exposes Prometheus counters for swaps, retries, and endpoint failover.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "swaps_total", Help: "Swaps attempted against the execution service"},
		[]string{"side", "outcome"},
	)
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "swap_retries_total", Help: "Backoff retries caused by rate limiting"},
		[]string{"op"},
	)
	RotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "endpoint_rotations_total", Help: "Endpoint switches after a failed cycle, by pool index switched to"},
		[]string{"index"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Trading cycles by outcome"},
		[]string{"outcome"},
	)
	BalanceFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "balance_fallbacks_total", Help: "Balance lookups replaced by the fallback value"},
	)
)

func init() {
	prometheus.MustRegister(SwapsTotal, RetriesTotal, RotationsTotal, CyclesTotal, BalanceFallbacksTotal)
}

// Serve exposes /metrics on addr in the background. An empty addr disables the listener.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	if addr == "" {
		return srv
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
