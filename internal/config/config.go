// Package config loads repmgrd's configuration: a TOML file overlaid with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
)

// FailoverPolicy selects how the supervisor reacts to a lost primary.
type FailoverPolicy string

const (
	// FailoverManual requires an operator (or re-discovery of an
	// out-of-band promotion) to restore a primary connection.
	FailoverManual FailoverPolicy = "MANUAL"
	// FailoverAutomatic runs the election engine when the primary is lost.
	FailoverAutomatic FailoverPolicy = "AUTOMATIC"
)

func (p FailoverPolicy) validate() error {
	switch p {
	case FailoverManual, FailoverAutomatic:
		return nil
	default:
		return fmt.Errorf("invalid failover policy: %q", p)
	}
}

// Config holds every field the daemon recognizes, plus the ambient and
// domain-stack additions this repo carries regardless of failover mode.
type Config struct {
	Node        int            `toml:"node" envconfig:"NODE"`
	ClusterName string         `toml:"cluster_name" envconfig:"CLUSTER_NAME"`
	Conninfo    string         `toml:"conninfo" envconfig:"CONNINFO"`
	Failover    FailoverPolicy `toml:"failover" envconfig:"FAILOVER"`

	PromoteCommand string `toml:"promote_command" envconfig:"PROMOTE_COMMAND"`
	FollowCommand  string `toml:"follow_command" envconfig:"FOLLOW_COMMAND"`

	LogLevel    string `toml:"loglevel" envconfig:"LOGLEVEL"`
	LogFacility string `toml:"logfacility" envconfig:"LOGFACILITY"`

	// Ambient/domain additions. All optional.
	MetricsAddr       string `toml:"metrics_addr" envconfig:"METRICS_ADDR"`
	SentryDSN         string `toml:"sentry_dsn" envconfig:"SENTRY_DSN"`
	JaegerServiceName string `toml:"jaeger_service_name" envconfig:"JAEGER_SERVICE_NAME"`

	// MaxPeers bounds the candidate set examined by an election. Defaults to 50 if
	// unset or non-positive.
	MaxPeers int `toml:"max_peers" envconfig:"MAX_PEERS"`
}

// defaultMaxPeers is the documented safety limit on candidates examined
// during a single election.
const defaultMaxPeers = 50

// Load reads and parses the TOML config file at path, then overlays any
// REPMGRD_* environment variables, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := envconfig.Process("REPMGRD", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: env overrides: %w", err)
	}

	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = defaultMaxPeers
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the mandatory fields and
// the failover policy enum.
func (c Config) Validate() error {
	if c.Node == 0 {
		return errors.New("config: node id is mandatory")
	}
	if c.ClusterName == "" {
		return errors.New("config: cluster_name is mandatory")
	}
	if c.Conninfo == "" {
		return errors.New("config: conninfo is mandatory")
	}
	return c.Failover.validate()
}

// ReconnectBound is the bounded retry applied to a lost primary connection
// before handing off to the supervisor.
const (
	ReconnectAttempts = 15
	ReconnectSleep    = 20 * time.Second
)

// ManualRediscoveryBound is the bounded retry applied by the MANUAL
// supervisor policy.
const (
	ManualRediscoveryAttempts = 6
	ManualRediscoverySleep    = 5 * time.Minute
)

// TickInterval is the monitoring loop's cadence.
const TickInterval = 3 * time.Second
