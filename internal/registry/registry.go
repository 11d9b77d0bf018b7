// Package registry implements the cluster registry client: locating the
// current primary, verifying the schema, self-registration, and listing
// peer standbys. Table access sticks to plain
// QueryContext/QueryRowContext/ExecContext calls on the given connection
// (no transactions) and INSERT ... ON CONFLICT DO UPDATE
// for idempotent writes.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"gitlab.com/gitlab-org/repmgrd/internal/dbconn"
	"gitlab.com/gitlab-org/repmgrd/internal/registry/migrations"
)

// SchemaPrefix, concatenated with the cluster name, derives the Postgres
// schema each cluster's tables live under.
const SchemaPrefix = "repmgrd_"

// SchemaName returns the derived schema name for a cluster.
func SchemaName(clusterName string) string {
	return SchemaPrefix + clusterName
}

// NodeRecord is a row of <schema>.repl_nodes.
type NodeRecord struct {
	ID       int
	Cluster  string
	Conninfo string
}

// ErrNoPrimary is returned by DiscoverPrimary when no reachable primary can
// be located. This is fatal at startup.
var ErrNoPrimary = errors.New("registry: no reachable primary found")

// DiscoverPrimary locates the current primary by reading repl_nodes under
// the cluster's schema through localConn, then dials it. The local node's
// own id is excluded from consideration since a standby can't discover
// itself as primary.
func DiscoverPrimary(ctx context.Context, localConn *sql.DB, localNodeID int, clusterName string) (*dbconn.Conn, int, error) {
	schema := SchemaName(clusterName)

	rows, err := localConn.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, conninfo FROM %s.repl_nodes WHERE cluster = $1 AND id != $2 ORDER BY id`, schema),
		clusterName, localNodeID)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: list candidate nodes: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id       int
		conninfo string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.conninfo); err != nil {
			return nil, 0, fmt.Errorf("registry: scan candidate node: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, c := range candidates {
		conn, err := dbconn.Open(ctx, c.conninfo)
		if err != nil {
			continue
		}

		var inRecovery bool
		if err := conn.DB().QueryRowContext(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
			conn.Close()
			continue
		}
		if inRecovery {
			conn.Close()
			continue
		}

		return conn, c.id, nil
	}

	return nil, 0, ErrNoPrimary
}

// EnsureSchema verifies that the cluster's tables exist under its derived
// schema. Absence is fatal at startup.
func EnsureSchema(ctx context.Context, conn *sql.DB, clusterName string) error {
	schema := SchemaName(clusterName)

	for _, table := range []string{"repl_nodes", "repl_monitor", "repl_status"} {
		var exists bool
		err := conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
			schema, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("registry: check table %s.%s: %w", schema, table, err)
		}
		if !exists {
			return fmt.Errorf("registry: schema misconfigured: %s.%s is missing", schema, table)
		}
	}

	return nil
}

// EnsureSelfRegistered inserts the local node's row if absent. It is
// idempotent: running it twice against the same node id produces a single
// row.
func EnsureSelfRegistered(ctx context.Context, primaryConn *sql.DB, nodeID int, clusterName, conninfo string) error {
	schema := SchemaName(clusterName)

	_, err := primaryConn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s.repl_nodes (id, cluster, conninfo)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (cluster, id) DO UPDATE SET conninfo = EXCLUDED.conninfo`, schema),
		nodeID, clusterName, conninfo)
	if err != nil {
		return fmt.Errorf("registry: self-register node %d: %w", nodeID, err)
	}

	return nil
}

// ApplyMigrations brings the cluster's schema up to date using the
// migration set in internal/registry/migrations, the same mechanism the
// "repmgrd sql-migrate" subcommand exposes.
func ApplyMigrations(conn *sql.DB, clusterName string) (int, error) {
	schema := SchemaName(clusterName)

	// Applied-migration records live inside the cluster's own schema, so
	// each cluster (and a dropped and recreated schema) is tracked separately.
	if _, err := conn.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return 0, fmt.Errorf("registry: create schema %s: %w", schema, err)
	}
	set := migrate.MigrationSet{SchemaName: schema}
	n, err := set.Exec(conn, "postgres", migrations.Source(schema), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("registry: apply migrations for %s: %w", schema, err)
	}
	return n, nil
}

// ListPeerStandbys returns every registered node in the cluster other than
// excludingNodeID — the peer set an election probes.
func ListPeerStandbys(ctx context.Context, conn *sql.DB, excludingNodeID int, clusterName string) ([]NodeRecord, error) {
	schema := SchemaName(clusterName)

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, cluster, conninfo FROM %s.repl_nodes WHERE cluster = $1 AND id != $2 ORDER BY id`, schema),
		clusterName, excludingNodeID)
	if err != nil {
		return nil, fmt.Errorf("registry: list peer standbys: %w", err)
	}
	defer rows.Close()

	var peers []NodeRecord
	for rows.Next() {
		var n NodeRecord
		if err := rows.Scan(&n.ID, &n.Cluster, &n.Conninfo); err != nil {
			return nil, fmt.Errorf("registry: scan peer standby: %w", err)
		}
		peers = append(peers, n)
	}

	return peers, rows.Err()
}
