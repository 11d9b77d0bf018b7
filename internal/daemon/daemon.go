// Package daemon holds the Daemon type: the single owning struct for a
// node's local connection, primary connection, and identity, so that the
// election engine and monitoring loop can be driven with injected fakes in
// tests.
package daemon

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/dbconn"
	"gitlab.com/gitlab-org/repmgrd/internal/errreport"
	"gitlab.com/gitlab-org/repmgrd/internal/registry"
)

// Role is the daemon's current understanding of the local node's position in
// the cluster.
type Role string

const (
	RolePrimary Role = "PRIMARY"
	RoleStandby Role = "STANDBY"
)

// PendingInsert tracks the asynchronous sample insert issued by the
// previous monitoring tick, so the next tick can cancel it before sending
// its own. It is supervised by an errgroup rather than a bespoke
// sync.WaitGroup so that both cancellation and the goroutine's error are
// observable from one Wait call.
type PendingInsert struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Daemon owns the connections, role state, and cluster identity of one
// daemon instance. Every component operation in this port takes a *Daemon
// explicitly instead of reaching for package-level state.
type Daemon struct {
	Config config.Config
	Log    *logrus.Entry

	Local   *dbconn.Conn
	Primary *dbconn.Conn

	PrimaryNodeID int
	Role          Role

	Reporter *errreport.Reporter

	pending *PendingInsert
}

// SchemaName is a convenience accessor for this daemon's derived cluster
// schema.
func (d *Daemon) SchemaName() string {
	return registry.SchemaName(d.Config.ClusterName)
}

// StartAsyncInsert launches fn in a goroutine against ctx and records it as
// the in-flight insert. Any previously pending insert must already have
// been canceled/awaited via CancelPendingInsert — StartAsyncInsert does not
// do that itself, since the monitoring loop's step ordering (cancel, then
// sample, then send) is the caller's responsibility to preserve.
func (d *Daemon) StartAsyncInsert(ctx context.Context, fn func(context.Context) error) {
	insertCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(insertCtx)
	g.Go(func() error { return fn(gctx) })
	d.pending = &PendingInsert{cancel: cancel, group: g}
}

// CancelPendingInsert cancels and waits for the previous tick's
// fire-and-forget insert, if any. It bounds pipeline
// depth against the primary at one outstanding insert.
func (d *Daemon) CancelPendingInsert() {
	if d.pending == nil {
		return
	}

	d.pending.cancel()
	if err := d.pending.group.Wait(); err != nil && d.Log != nil {
		d.Log.WithError(err).Debug("previous sample insert ended with an error (expected on cancel)")
	}
	d.pending = nil
}

// Cleanup cancels any in-flight primary query and closes the local and
// primary connections, deduplicating the case where they are the same
// object. It performs no logging and no allocation beyond what
// CancelPendingInsert already requires, so it is safe to invoke from a
// signal handler as well as every normal exit path.
func (d *Daemon) Cleanup() {
	d.CancelPendingInsert()

	if d.Primary != nil && d.Primary != d.Local {
		d.Primary.Close()
	}
	if d.Local != nil {
		d.Local.Close()
	}
}

// ValidateStandby confirms the local node is not itself a primary. A node
// that is already a primary at startup is a configuration error; a node
// observed transitioning to primary between ticks is a role change.
func (d *Daemon) ValidateStandby(ctx context.Context) (Role, error) {
	if d.Local == nil || d.Local.DB() == nil {
		return "", fmt.Errorf("daemon: local connection is not open")
	}

	var inRecovery bool
	if err := d.Local.DB().QueryRowContext(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return "", fmt.Errorf("daemon: check recovery status: %w", err)
	}

	if inRecovery {
		return RoleStandby, nil
	}
	return RolePrimary, nil
}
