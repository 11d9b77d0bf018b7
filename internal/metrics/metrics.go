// Package metrics registers the Prometheus collectors repmgrd exposes,
// using the promauto constructors with a consistent Namespace/Subsystem
// convention.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RoleGauge is 1 for the role the local node currently holds, 0 otherwise,
// labeled by role name ("primary"/"standby").
var RoleGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "repmgrd",
		Name:      "role",
		Help:      "1 for the role this daemon instance currently holds",
	},
	[]string{"role"},
)

// BytesBehindReceive tracks the most recently sampled receive lag.
var BytesBehindReceive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "repmgrd",
		Name:      "bytes_behind_receive",
		Help:      "Bytes the standby's received WAL position trails the primary's current position",
	},
)

// BytesBehindApply tracks the most recently sampled apply lag.
var BytesBehindApply = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "repmgrd",
		Name:      "bytes_behind_apply",
		Help:      "Bytes the standby's applied WAL position trails its received position",
	},
)

// ElectionOutcomes counts election results by outcome label ("promoted",
// "followed", "minority_partition").
var ElectionOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "repmgrd",
		Name:      "election_outcomes_total",
		Help:      "Count of election engine outcomes by result",
	},
	[]string{"outcome"},
)

// TicksTotal counts monitoring ticks, labeled by the tick's result ("ok",
// "skipped_transient", "promoted", "primary_lost").
var TicksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "repmgrd",
		Name:      "ticks_total",
		Help:      "Count of monitoring loop ticks by result",
	},
	[]string{"result"},
)

// Serve starts a best-effort Prometheus exporter on addr and runs until ctx
// is canceled. An empty addr disables the exporter. Serve does not block the
// caller; it logs nothing itself and leaves error handling to the returned
// channel so the daemon's own logger can report it.
func Serve(ctx context.Context, addr string) <-chan error {
	errCh := make(chan error, 1)
	if addr == "" {
		close(errCh)
		return errCh
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		errCh <- err
		close(errCh)
		return errCh
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return errCh
}
