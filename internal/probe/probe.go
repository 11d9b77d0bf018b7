// Package probe implements the node probe: a short-lived connection to a
// peer standby that reads its last-applied position, and the companion
// publish call a node uses to make its own position visible to peers.
package probe

import (
	"context"
	"database/sql"
	"fmt"

	"gitlab.com/gitlab-org/repmgrd/internal/dbconn"
	"gitlab.com/gitlab-org/repmgrd/internal/lsn"
)

// Probe opens a short-lived connection to conninfo, reads its published
// last-applied LSN, and closes the connection. Any failure along the way —
// dial, query, or parse — maps to "unreachable" (ok == false), never an
// error returned to the caller: an unreachable peer simply doesn't count
// toward quorum or candidacy.
func Probe(ctx context.Context, schema string, nodeID int, conninfo string) (position lsn.LSN, ok bool) {
	conn, err := dbconn.Open(ctx, conninfo)
	if err != nil {
		return lsn.Zero, false
	}
	defer conn.Close()

	text, err := readLastStandbyLocation(ctx, conn.DB(), schema, nodeID)
	if err != nil {
		return lsn.Zero, false
	}

	parsed, err := lsn.Parse(text)
	if err != nil {
		return lsn.Zero, false
	}

	return parsed, true
}

// PublishLocalPosition upserts this node's last-applied LSN into its own
// repl_status row so that a peer's Probe can read it back. Call sites that
// fail to publish should fall back to publishing the sentinel 0/0 so this
// node cannot win an election it couldn't honestly report into.
func PublishLocalPosition(ctx context.Context, localConn *sql.DB, schema string, nodeID int, current lsn.LSN) error {
	_, err := localConn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s.repl_status (node_id, last_applied_lsn, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (node_id) DO UPDATE SET last_applied_lsn = EXCLUDED.last_applied_lsn, updated_at = NOW()`,
		schema), nodeID, current.String())
	if err != nil {
		return fmt.Errorf("probe: publish local position: %w", err)
	}
	return nil
}

func readLastStandbyLocation(ctx context.Context, conn *sql.DB, schema string, nodeID int) (string, error) {
	var text string
	err := conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT last_applied_lsn FROM %s.repl_status WHERE node_id = $1`, schema),
		nodeID).Scan(&text)
	if err != nil {
		return "", fmt.Errorf("probe: read last standby location: %w", err)
	}
	return text, nil
}
