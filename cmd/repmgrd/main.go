// Command repmgrd monitors a PostgreSQL standby's replication position
// against its primary and, when the primary becomes unreachable, either
// waits for an operator (MANUAL failover) or runs a quorum-gated election
// and dispatches the resulting promote/follow command (AUTOMATIC failover).
//
// repmgrd also exposes two diagnostic subcommands:
//
// cluster-show
//
// Prints every node registered for the configured cluster, alongside its
// last known position, as a table:
//
//	repmgrd -f PATH_TO_CONFIG cluster-show
//
// sql-migrate
//
// Brings the cluster's registry schema up to date:
//
//	repmgrd -f PATH_TO_CONFIG sql-migrate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/daemon"
	"gitlab.com/gitlab-org/repmgrd/internal/dbconn"
	"gitlab.com/gitlab-org/repmgrd/internal/errreport"
	"gitlab.com/gitlab-org/repmgrd/internal/metrics"
	"gitlab.com/gitlab-org/repmgrd/internal/monitor"
	"gitlab.com/gitlab-org/repmgrd/internal/supervisor"
	"gitlab.com/gitlab-org/repmgrd/internal/tracing"
)

const progname = "repmgrd"

var (
	flagConfig  = flag.String("f", "", "Location of the config.toml file")
	flagVerbose = flag.Bool("v", false, "Enable verbose (debug) logging")
	flagVersion = flag.Bool("V", false, "Print version and exit")

	version = "dev"

	errNoConfigFile = errors.New("the -f flag must be passed")
)

func main() {
	flag.StringVar(flagConfig, "config", "", "Location of the config.toml file (same as -f)")
	flag.BoolVar(flagVerbose, "verbose", false, "Enable verbose (debug) logging (same as -v)")
	flag.BoolVar(flagVersion, "version", false, "Print version and exit (same as -V)")
	flagHelp := flag.Bool("?", false, "Print usage and exit")

	flag.Usage = func() {
		cmds := make([]string, 0, len(subcommands))
		for name := range subcommands {
			cmds = append(cmds, name)
		}

		printfErr("Usage of %s:\n", progname)
		flag.PrintDefaults()
		printfErr("  subcommand (optional)\n")
		printfErr("\tOne of %s\n", strings.Join(cmds, ", "))
	}
	flag.Parse()

	if *flagHelp {
		flag.Usage()
		os.Exit(int(daemon.Success))
	}

	if *flagVersion {
		fmt.Printf("%s %s\n", progname, version)
		os.Exit(int(daemon.Success))
	}

	if *flagConfig == "" {
		printfErr("%s: %v\n", progname, errNoConfigFile)
		os.Exit(int(daemon.ErrBadConfig))
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		printfErr("%s: configuration error: %v\n", progname, err)
		os.Exit(int(daemon.ErrBadConfig))
	}

	log := cfg.ConfigureLogger()
	if *flagVerbose {
		log.Logger.SetLevel(logrus.DebugLevel)
	}

	if args := flag.Args(); len(args) > 0 {
		os.Exit(subCommand(cfg, log, args[0], args[1:]))
	}

	os.Exit(int(run(cfg, log)))
}

func run(cfg config.Config, log *logrus.Entry) daemon.ExitCode {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	closer, err := tracing.Init(cfg.JaegerServiceName)
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing; continuing without it")
	} else if closer != nil {
		defer closer.Close()
	}

	metricsErrCh := metrics.Serve(ctx, cfg.MetricsAddr)
	go func() {
		if err, ok := <-metricsErrCh; ok && err != nil {
			log.WithError(err).Warn("metrics exporter exited with an error")
		}
	}()

	reporter, err := errreport.New(cfg.SentryDSN)
	if err != nil {
		log.WithError(err).Warn("failed to initialize error reporting; continuing without it")
		reporter = &errreport.Reporter{}
	}

	local, err := dbconn.Open(ctx, cfg.Conninfo)
	if err != nil {
		log.WithError(err).Error("failed to open local connection")
		return daemon.ErrDBConn
	}

	d := &daemon.Daemon{
		Config:   cfg,
		Log:      log,
		Local:    local,
		Reporter: reporter,
	}
	defer d.Cleanup()

	hooks := daemon.Hooks{
		Tick: func(ctx context.Context, d *daemon.Daemon) (daemon.TickResult, error) {
			result, err := monitor.Tick(ctx, d)
			return daemon.TickResult(result), err
		},
		HandleFailover: func(ctx context.Context, d *daemon.Daemon) (daemon.FailoverOutcome, error) {
			outcome, err := supervisor.Handle(ctx, d)
			return daemon.FailoverOutcome{
				Recovered: outcome.Recovered,
				Promoted:  outcome.Promoted,
				ExitCode:  outcome.ExitCode,
			}, err
		},
	}

	exitCode, err := d.Run(ctx, hooks)
	if err != nil {
		reporter.Capture(err, map[string]string{"kind": "daemon_exit", "exit_code": exitCode.String()})
		log.WithError(err).WithField("exit_code", exitCode.String()).Error("repmgrd exiting")
	} else {
		log.WithField("exit_code", exitCode.String()).Info("repmgrd exiting")
	}

	return exitCode
}

func printfErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
}
