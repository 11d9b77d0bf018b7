// Package supervisor drives what happens once the monitoring loop reports
// the primary connection is gone: either the bounded MANUAL re-discovery
// poll, or handing off to the election engine under AUTOMATIC failover. The
// policy split happens up front, before either branch does anything else.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/daemon"
	"gitlab.com/gitlab-org/repmgrd/internal/election"
	"gitlab.com/gitlab-org/repmgrd/internal/registry"
)

// Outcome tells the caller what the supervisor accomplished and, when it
// didn't recover the primary, which exit code to use.
type Outcome struct {
	Recovered bool
	Promoted  bool
	ExitCode  daemon.ExitCode
}

// ErrNoReconnect is returned when the MANUAL policy exhausts its bounded
// re-discovery attempts without locating a primary.
var ErrNoReconnect = fmt.Errorf("supervisor: exhausted manual re-discovery attempts")

// Handle is invoked once the monitoring loop has confirmed the primary
// connection cannot be used. It returns once either a usable primary
// connection has been restored on d, or the configured policy has given up.
func Handle(ctx context.Context, d *daemon.Daemon) (Outcome, error) {
	log := d.Log.WithField("failover_policy", d.Config.Failover)

	switch d.Config.Failover {
	case config.FailoverManual:
		return handleManual(ctx, d, log)
	case config.FailoverAutomatic:
		return handleAutomatic(ctx, d)
	default:
		return Outcome{ExitCode: daemon.ErrBadConfig}, fmt.Errorf("supervisor: unknown failover policy %q", d.Config.Failover)
	}
}

// handleManual polls for a reachable primary config.ManualRediscoveryAttempts
// times, config.ManualRediscoverySleep apart, without ever dispatching the
// promote/follow commands itself: a human, or whatever out-of-band tooling
// performed the promotion, is expected to have already run them.
//
// A context cancellation mid-wait is a shutdown signal, not a failure: the
// zero-value Outcome it returns carries no exit code, leaving the caller's
// own ctx.Err() check to pick Success instead of this loop claiming a
// failover-engine error it never ran. Exhausting every attempt without a
// signal is a real connection failure and exits with ErrDBConn, matching the
// exit code used for every other connection-exhaustion path.
func handleManual(ctx context.Context, d *daemon.Daemon, log *logrus.Entry) (Outcome, error) {
	for attempt := 1; attempt <= config.ManualRediscoveryAttempts; attempt++ {
		conn, primaryID, err := registry.DiscoverPrimary(ctx, d.Local.DB(), d.Config.Node, d.Config.ClusterName)
		if err == nil {
			d.Primary = conn
			d.PrimaryNodeID = primaryID
			return Outcome{Recovered: true}, nil
		}

		log.WithError(err).WithField("attempt", attempt).Warn("no reachable primary yet")

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-time.After(config.ManualRediscoverySleep):
		}
	}

	return Outcome{ExitCode: daemon.ErrDBConn}, ErrNoReconnect
}

// handleAutomatic runs one election and translates its outcome into the
// daemon's exit-code scheme.
func handleAutomatic(ctx context.Context, d *daemon.Daemon) (Outcome, error) {
	outcome, err := election.Run(ctx, d)
	switch outcome {
	case election.Promoted:
		return Outcome{Promoted: true, ExitCode: daemon.ErrPromoted}, err
	case election.Followed:
		return reconnectAfterFollow(ctx, d)
	case election.MinorityPartition:
		return Outcome{ExitCode: daemon.ErrFailoverFail}, err
	default:
		return Outcome{ExitCode: daemon.ErrFailoverFail}, err
	}
}

// reconnectAfterFollow locates the new primary — whatever node the election
// decided should be followed — and opens a connection to it so the
// monitoring loop can resume.
func reconnectAfterFollow(ctx context.Context, d *daemon.Daemon) (Outcome, error) {
	conn, primaryID, err := registry.DiscoverPrimary(ctx, d.Local.DB(), d.Config.Node, d.Config.ClusterName)
	if err != nil {
		return Outcome{ExitCode: daemon.ErrFailoverFail}, fmt.Errorf("supervisor: locate new primary after follow: %w", err)
	}

	if d.Primary != nil {
		d.Primary.Close()
	}
	d.Primary = conn
	d.PrimaryNodeID = primaryID

	return Outcome{Recovered: true}, nil
}
