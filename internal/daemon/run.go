package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/registry"
)

// Hooks lets the run loop call into the monitor and supervisor packages
// without daemon importing them directly, since both of those packages
// import daemon themselves and a direct import back would cycle. cmd/repmgrd
// wires the real implementations; tests can substitute fakes.
type Hooks struct {
	Tick           func(ctx context.Context, d *Daemon) (TickResult, error)
	HandleFailover func(ctx context.Context, d *Daemon) (FailoverOutcome, error)
}

// TickResult mirrors monitor.Result without importing that package.
type TickResult string

const (
	TickOK               TickResult = "ok"
	TickSkippedTransient TickResult = "skipped_transient"
	TickPromoted         TickResult = "promoted"
	TickPrimaryLost      TickResult = "primary_lost"
)

// FailoverOutcome mirrors supervisor.Outcome without importing that package.
type FailoverOutcome struct {
	Recovered bool
	Promoted  bool
	ExitCode  ExitCode
}

// Run drives the daemon's main loop: validate the starting role, verify the
// cluster schema, discover and self-register against the primary, then tick the monitor on
// config.TickInterval until the primary is lost, at which point the
// configured failover hook takes over. Run returns the exit code the
// process should use and any error worth logging at the top level.
func (d *Daemon) Run(ctx context.Context, hooks Hooks) (ExitCode, error) {
	role, err := d.ValidateStandby(ctx)
	if err != nil {
		return ErrDBQuery, fmt.Errorf("daemon: validate starting role: %w", err)
	}
	if role == RolePrimary {
		return ErrBadConfig, errors.New("daemon: configured node is already a primary, repmgrd only monitors standbys")
	}
	d.Role = role

	if err := registry.EnsureSchema(ctx, d.Local.DB(), d.Config.ClusterName); err != nil {
		return ErrBadQuery, fmt.Errorf("daemon: verify cluster schema at startup: %w", err)
	}

	conn, primaryID, err := registry.DiscoverPrimary(ctx, d.Local.DB(), d.Config.Node, d.Config.ClusterName)
	if err != nil {
		return ErrDBConn, fmt.Errorf("daemon: discover primary at startup: %w", err)
	}
	d.Primary = conn
	d.PrimaryNodeID = primaryID

	if err := registry.EnsureSelfRegistered(ctx, d.Primary.DB(), d.Config.Node, d.Config.ClusterName, d.Config.Conninfo); err != nil {
		return ErrDBQuery, fmt.Errorf("daemon: self-register: %w", err)
	}

	ticker := time.NewTicker(config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Success, nil
		case <-ticker.C:
			result, err := hooks.Tick(ctx, d)
			if err != nil {
				d.Log.WithError(err).Warn("monitoring tick returned an error")
			}

			switch result {
			case TickPromoted:
				return ErrPromoted, errors.New("daemon: local node transitioned to primary outside an election")
			case TickPrimaryLost:
				outcome, err := hooks.HandleFailover(ctx, d)
				if ctx.Err() != nil {
					return Success, nil
				}
				if outcome.Promoted || !outcome.Recovered {
					if err != nil {
						d.Reporter.Capture(err, map[string]string{"kind": "failover"})
					}
					return outcome.ExitCode, err
				}
				d.Log.Info("failover handling recovered a usable primary connection")
			}
		}
	}
}
