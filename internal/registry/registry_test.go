package registry

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/repmgrd/internal/testhelper"
)

func TestSchemaName(t *testing.T) {
	require.Equal(t, "repmgrd_prod", SchemaName("prod"))
	require.Equal(t, "repmgrd_", SchemaName(""))
}

func TestNoPrimaryIsDistinctError(t *testing.T) {
	require.ErrorIs(t, ErrNoPrimary, ErrNoPrimary)
	require.Contains(t, ErrNoPrimary.Error(), "no reachable primary")
}

// setUpCluster applies the cluster's migrations against the live test
// database and drops the schema again once the test finishes.
func setUpCluster(t *testing.T, db *sql.DB, clusterName string) {
	t.Helper()

	schema := SchemaName(clusterName)
	_, err := db.Exec(fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schema))
	require.NoError(t, err)

	_, err = ApplyMigrations(db, clusterName)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec(fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schema))
	})
}

func TestEnsureSchemaAfterMigrationsSucceeds(t *testing.T) {
	db := testhelper.RequirePostgres(t)
	setUpCluster(t, db, "ensureschema")

	require.NoError(t, EnsureSchema(context.Background(), db, "ensureschema"))
}

func TestEnsureSchemaBeforeMigrationsFails(t *testing.T) {
	db := testhelper.RequirePostgres(t)

	schema := SchemaName("neverapplied")
	_, err := db.Exec(fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schema))
	require.NoError(t, err)

	require.Error(t, EnsureSchema(context.Background(), db, "neverapplied"))
}

func TestEnsureSelfRegisteredIsIdempotent(t *testing.T) {
	db := testhelper.RequirePostgres(t)
	setUpCluster(t, db, "selfreg")

	require.NoError(t, EnsureSelfRegistered(context.Background(), db, 1, "selfreg", "host=localhost dbname=one"))
	require.NoError(t, EnsureSelfRegistered(context.Background(), db, 1, "selfreg", "host=localhost dbname=two"))

	var count int
	require.NoError(t, db.QueryRow(
		fmt.Sprintf(`SELECT count(*) FROM %s.repl_nodes WHERE id = $1`, SchemaName("selfreg")), 1,
	).Scan(&count))
	require.Equal(t, 1, count, "running EnsureSelfRegistered twice must not insert a second row")

	var conninfo string
	require.NoError(t, db.QueryRow(
		fmt.Sprintf(`SELECT conninfo FROM %s.repl_nodes WHERE id = $1`, SchemaName("selfreg")), 1,
	).Scan(&conninfo))
	require.Equal(t, "host=localhost dbname=two", conninfo, "the second call's conninfo must win")
}

func TestListPeerStandbysExcludesCallingNode(t *testing.T) {
	db := testhelper.RequirePostgres(t)
	setUpCluster(t, db, "peers")

	require.NoError(t, EnsureSelfRegistered(context.Background(), db, 1, "peers", "host=localhost dbname=one"))
	require.NoError(t, EnsureSelfRegistered(context.Background(), db, 2, "peers", "host=localhost dbname=two"))
	require.NoError(t, EnsureSelfRegistered(context.Background(), db, 3, "peers", "host=localhost dbname=three"))

	peers, err := ListPeerStandbys(context.Background(), db, 1, "peers")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	for _, p := range peers {
		require.NotEqual(t, 1, p.ID)
	}
}

func TestDiscoverPrimaryFindsReachableNode(t *testing.T) {
	dsn := testhelper.RequirePostgresDSN(t)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	setUpCluster(t, db, "discover")

	// Node 2's conninfo points back at the same live test database, which
	// isn't in recovery, so it is a reachable candidate for node 1 to find.
	require.NoError(t, EnsureSelfRegistered(context.Background(), db, 2, "discover", dsn))

	conn, primaryID, err := DiscoverPrimary(context.Background(), db, 1, "discover")
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, 2, primaryID)
}

func TestDiscoverPrimaryErrorsWithNoCandidates(t *testing.T) {
	db := testhelper.RequirePostgres(t)
	setUpCluster(t, db, "nocandidates")

	_, _, err := DiscoverPrimary(context.Background(), db, 1, "nocandidates")
	require.ErrorIs(t, err, ErrNoPrimary)
}
