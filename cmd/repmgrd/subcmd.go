package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/dbconn"
	"gitlab.com/gitlab-org/repmgrd/internal/probe"
	"gitlab.com/gitlab-org/repmgrd/internal/registry"
)

type subcmd interface {
	FlagSet() *flag.FlagSet
	Exec(ctx context.Context, flags *flag.FlagSet, cfg config.Config, log *logrus.Entry) error
}

var subcommands = map[string]subcmd{
	"cluster-show": &clusterShowSubcommand{},
	"sql-migrate":  &sqlMigrateSubcommand{},
}

// subCommand returns an exit code, to be fed into os.Exit.
func subCommand(cfg config.Config, log *logrus.Entry, arg0 string, argRest []string) int {
	cmd, ok := subcommands[arg0]
	if !ok {
		printfErr("%s: unknown subcommand: %q\n", progname, arg0)
		return 1
	}

	flags := cmd.FlagSet()
	if err := flags.Parse(argRest); err != nil {
		printfErr("%s\n", err)
		return 1
	}

	if err := cmd.Exec(context.Background(), flags, cfg, log); err != nil {
		printfErr("%s: %s: %s\n", progname, arg0, err)
		return 1
	}

	return 0
}

// clusterShowSubcommand renders the registered nodes for the configured
// cluster, along with each node's last known applied position, as a table.
type clusterShowSubcommand struct{}

func (s *clusterShowSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet("cluster-show", flag.ExitOnError)
}

func (s *clusterShowSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, cfg config.Config, log *logrus.Entry) error {
	conn, err := dbconn.Open(ctx, cfg.Conninfo)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer conn.Close()

	schema := registry.SchemaName(cfg.ClusterName)
	nodes, err := registry.ListPeerStandbys(ctx, conn.DB(), 0, cfg.ClusterName)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node ID", "Conninfo", "Last Applied LSN", "Reachable"})

	for _, n := range nodes {
		position, reachable := probe.Probe(ctx, schema, n.ID, n.Conninfo)
		status := "no"
		lsnText := "-"
		if reachable {
			status = "yes"
			lsnText = position.String()
		}
		table.Append([]string{fmt.Sprintf("%d", n.ID), n.Conninfo, lsnText, status})
	}

	table.Render()
	return nil
}

// sqlMigrateSubcommand brings the cluster's registry schema up to date.
type sqlMigrateSubcommand struct{}

func (s *sqlMigrateSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet("sql-migrate", flag.ExitOnError)
}

func (s *sqlMigrateSubcommand) Exec(ctx context.Context, flags *flag.FlagSet, cfg config.Config, log *logrus.Entry) error {
	db, err := sql.Open("postgres", cfg.Conninfo)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()

	applied, err := registry.ApplyMigrations(db, cfg.ClusterName)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	log.WithField("applied", applied).Info("migrations applied")
	fmt.Printf("%s: applied %d migration(s)\n", progname, applied)
	return nil
}
