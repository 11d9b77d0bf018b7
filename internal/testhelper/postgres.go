// Package testhelper provides shared test scaffolding for packages that
// need a live Postgres instance.
package testhelper

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// envTestDatabaseURL names the environment variable integration tests read
// their Postgres DSN from. Tests that need a live database skip instead of
// failing when it is unset, since the database is externally provisioned
// rather than started by the test itself.
const envTestDatabaseURL = "REPMGRD_TEST_DATABASE_URL"

// RequirePostgresDSN returns the DSN named by REPMGRD_TEST_DATABASE_URL,
// skipping the test if it isn't set. Tests that need to dial the same
// database multiple times under different roles (as DiscoverPrimary does)
// use this instead of RequirePostgres.
func RequirePostgresDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv(envTestDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set; skipping test requiring a live Postgres instance", envTestDatabaseURL)
	}
	return dsn
}

// RequirePostgres returns a connection to the DSN named by
// REPMGRD_TEST_DATABASE_URL, skipping the test if it isn't set.
func RequirePostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := RequirePostgresDSN(t)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	require.NoError(t, db.PingContext(context.Background()))

	t.Cleanup(func() { db.Close() })

	return db
}
