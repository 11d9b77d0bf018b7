// Package monitor implements one iteration of the monitoring loop: primary
// liveness and bounded reconnect, role re-validation, the cancel-before-send
// discipline for the asynchronous sample insert, sampling local and primary
// positions, lag computation, and recording the sample.
package monitor

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/daemon"
	"gitlab.com/gitlab-org/repmgrd/internal/lsn"
	"gitlab.com/gitlab-org/repmgrd/internal/metrics"
	"gitlab.com/gitlab-org/repmgrd/internal/tracing"
)

// Result names why a tick ended the way it did, for logging and the
// ticks_total metric.
type Result string

const (
	ResultOK               Result = "ok"
	ResultSkippedTransient Result = "skipped_transient"
	ResultPromoted         Result = "promoted"
	ResultPrimaryLost      Result = "primary_lost"
)

// Sample is one row of repl_monitor, computed fresh each tick.
type Sample struct {
	SampledAt          time.Time
	PrimaryLSN         lsn.LSN
	StandbyReceivedLSN lsn.LSN
	StandbyAppliedLSN  lsn.LSN
	BytesBehindReceive int64
	BytesBehindApply   int64
}

// ComputeLag returns the receive and apply lag in bytes. Negative results
// are valid and must be recorded, not clamped: they reflect clock/position
// skew between samples rather than an error condition, and readers of
// repl_monitor are expected to filter them.
func ComputeLag(primary, receive, apply lsn.LSN) (bytesBehindReceive, bytesBehindApply int64) {
	bytesBehindReceive = int64(primary.Bytes()) - int64(receive.Bytes())
	bytesBehindApply = int64(receive.Bytes()) - int64(apply.Bytes())
	return
}

// Tick runs one iteration of the monitoring loop against d. It never
// returns an error for ordinary transient I/O failures — only a role
// change or primary-connection exhaustion is reported, via the returned
// Result, for the caller (the daemon's run loop) to act on.
func Tick(ctx context.Context, d *daemon.Daemon) (Result, error) {
	ctx, finish := tracing.StartSpan(ctx, "monitor.tick")
	defer finish()

	if !d.Primary.IsOK(ctx) {
		started := time.Now()
		attempts, ok := reconnectPrimary(ctx, d)
		if !ok {
			metrics.TicksTotal.WithLabelValues(string(ResultPrimaryLost)).Inc()
			return ResultPrimaryLost, nil
		}
		d.Log.WithField("attempts", attempts).WithField("elapsed", time.Since(started)).Info("primary connection resumed")
	}

	role, err := d.ValidateStandby(ctx)
	if err != nil {
		d.Log.WithError(err).Warn("failed to re-validate role; skipping tick")
		metrics.TicksTotal.WithLabelValues(string(ResultSkippedTransient)).Inc()
		return ResultSkippedTransient, nil
	}
	if role == daemon.RolePrimary {
		metrics.RoleGauge.WithLabelValues("primary").Set(1)
		metrics.RoleGauge.WithLabelValues("standby").Set(0)
		metrics.TicksTotal.WithLabelValues(string(ResultPromoted)).Inc()
		return ResultPromoted, nil
	}
	d.Role = role
	metrics.RoleGauge.WithLabelValues("standby").Set(1)
	metrics.RoleGauge.WithLabelValues("primary").Set(0)

	// Cancel before send: the previous tick's insert, if still in flight,
	// is canceled before this tick issues its own.
	d.CancelPendingInsert()

	receiveLSN, applyLSN, err := sampleLocal(ctx, d)
	if err != nil {
		d.Log.WithError(err).Warn("failed to sample local position; skipping tick")
		metrics.TicksTotal.WithLabelValues(string(ResultSkippedTransient)).Inc()
		return ResultSkippedTransient, nil
	}

	primaryLSN, err := samplePrimary(ctx, d)
	if err != nil {
		d.Log.WithError(err).Warn("failed to sample primary position; skipping tick")
		metrics.TicksTotal.WithLabelValues(string(ResultSkippedTransient)).Inc()
		return ResultSkippedTransient, nil
	}

	bytesBehindReceive, bytesBehindApply := ComputeLag(primaryLSN, receiveLSN, applyLSN)
	metrics.BytesBehindReceive.Set(float64(bytesBehindReceive))
	metrics.BytesBehindApply.Set(float64(bytesBehindApply))

	sample := Sample{
		SampledAt:          time.Now(),
		PrimaryLSN:         primaryLSN,
		StandbyReceivedLSN: receiveLSN,
		StandbyAppliedLSN:  applyLSN,
		BytesBehindReceive: bytesBehindReceive,
		BytesBehindApply:   bytesBehindApply,
	}

	d.StartAsyncInsert(ctx, func(ctx context.Context) error {
		return recordSample(ctx, d, sample)
	})

	metrics.TicksTotal.WithLabelValues(string(ResultOK)).Inc()
	return ResultOK, nil
}

// reconnectPrimary drives the bounded retry against the primary: up to
// config.ReconnectAttempts attempts, config.ReconnectSleep apart, calling
// Reset each time. It returns the number of attempts made and whether the
// primary is reachable again.
func reconnectPrimary(ctx context.Context, d *daemon.Daemon) (int, bool) {
	for attempt := 1; attempt <= config.ReconnectAttempts; attempt++ {
		if err := d.Primary.Reset(ctx); err == nil && d.Primary.IsOK(ctx) {
			return attempt, true
		}

		select {
		case <-ctx.Done():
			return attempt, false
		case <-time.After(config.ReconnectSleep):
		}
	}

	return config.ReconnectAttempts, false
}

func sampleLocal(ctx context.Context, d *daemon.Daemon) (receive, apply lsn.LSN, err error) {
	var receiveText, applyText string
	err = d.Local.DB().QueryRowContext(ctx,
		"SELECT pg_last_wal_receive_lsn()::text, pg_last_wal_replay_lsn()::text").
		Scan(&receiveText, &applyText)
	if err != nil {
		return lsn.Zero, lsn.Zero, fmt.Errorf("monitor: sample local position: %w", err)
	}

	receive, err = lsn.Parse(receiveText)
	if err != nil {
		d.Log.WithError(err).Warn("malformed receive LSN from local database; treating as 0/0")
		receive = lsn.Zero
	}

	apply, err = lsn.Parse(applyText)
	if err != nil {
		d.Log.WithError(err).Warn("malformed apply LSN from local database; treating as 0/0")
		apply = lsn.Zero
	}

	return receive, apply, nil
}

func samplePrimary(ctx context.Context, d *daemon.Daemon) (lsn.LSN, error) {
	var text string
	if err := d.Primary.DB().QueryRowContext(ctx, "SELECT pg_current_wal_lsn()::text").Scan(&text); err != nil {
		return lsn.Zero, fmt.Errorf("monitor: sample primary position: %w", err)
	}

	parsed, err := lsn.Parse(text)
	if err != nil {
		d.Log.WithError(err).Warn("malformed LSN from primary database; treating as 0/0")
		return lsn.Zero, nil
	}

	return parsed, nil
}

func recordSample(ctx context.Context, d *daemon.Daemon, s Sample) error {
	schema := d.SchemaName()
	_, err := d.Primary.DB().ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s.repl_monitor
			(primary_id, standby_id, sampled_at, primary_lsn, standby_received_lsn, bytes_behind_receive, bytes_behind_apply)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`, schema),
		d.PrimaryNodeID, d.Config.Node, s.SampledAt, s.PrimaryLSN.String(), s.StandbyReceivedLSN.String(),
		s.BytesBehindReceive, s.BytesBehindApply)
	if err != nil {
		return fmt.Errorf("monitor: record sample: %w", err)
	}
	return nil
}
