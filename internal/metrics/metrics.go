// Package metrics exposes Prometheus counters shared by the bot processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks received"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Trading cycles by outcome"},
		[]string{"outcome"},
	)
	WorkerLaunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_launches_total", Help: "Trading worker launches by result"},
		[]string{"result"},
	)
	IngestedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ingested_rows_total", Help: "Price rows written by the ingester"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, OrdersTotal, CyclesTotal, WorkerLaunchesTotal, IngestedRowsTotal)
}

// Serve exposes /metrics on addr in the background. An empty addr disables it.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
