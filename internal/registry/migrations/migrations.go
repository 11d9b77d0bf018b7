// Package migrations holds the versioned DDL for one cluster's schema
// (repl_nodes, repl_monitor, repl_status), applied with rubenv/sql-migrate.
package migrations

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

// Source returns the migration set for the given cluster's derived schema
// name. Each migration creates its table inside that schema, which must
// already exist (CREATE SCHEMA IF NOT EXISTS is included in the first
// migration).
func Source(schema string) migrate.MigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "0001_create_schema_and_repl_nodes",
				Up: []string{
					fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
					fmt.Sprintf(`CREATE TABLE %s.repl_nodes (
						id        INTEGER NOT NULL,
						cluster   TEXT    NOT NULL,
						conninfo  TEXT    NOT NULL,
						PRIMARY KEY (cluster, id)
					)`, schema),
				},
				Down: []string{
					fmt.Sprintf(`DROP TABLE %s.repl_nodes`, schema),
				},
			},
			{
				Id: "0002_create_repl_monitor",
				Up: []string{
					fmt.Sprintf(`CREATE TABLE %s.repl_monitor (
						primary_id               INTEGER     NOT NULL,
						standby_id               INTEGER     NOT NULL,
						sampled_at               TIMESTAMPTZ NOT NULL,
						primary_lsn              TEXT        NOT NULL,
						standby_received_lsn     TEXT        NOT NULL,
						bytes_behind_receive     BIGINT      NOT NULL,
						bytes_behind_apply       BIGINT      NOT NULL
					)`, schema),
					fmt.Sprintf(`CREATE INDEX repl_monitor_standby_sampled_at_idx
						ON %s.repl_monitor (standby_id, sampled_at DESC)`, schema),
				},
				Down: []string{
					fmt.Sprintf(`DROP TABLE %s.repl_monitor`, schema),
				},
			},
			{
				Id: "0003_create_repl_status",
				Up: []string{
					fmt.Sprintf(`CREATE TABLE %s.repl_status (
						node_id          INTEGER PRIMARY KEY,
						last_applied_lsn TEXT        NOT NULL,
						updated_at       TIMESTAMPTZ NOT NULL
					)`, schema),
				},
				Down: []string{
					fmt.Sprintf(`DROP TABLE %s.repl_status`, schema),
				},
			},
		},
	}
}
