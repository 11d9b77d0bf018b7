package config

import (
	"github.com/sirupsen/logrus"
)

// LogTimestampFormat matches the timestamp precision repmgrd's log lines
// need to correlate against replication-sample timestamps.
const LogTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ConfigureLogger applies loglevel/logfacility from the config to the
// default logrus logger and returns an Entry callers can attach fields to.
func (c Config) ConfigureLogger() *logrus.Entry {
	logger := logrus.StandardLogger()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: LogTimestampFormat,
	})

	entry := logrus.NewEntry(logger).WithFields(logrus.Fields{
		"cluster_name": c.ClusterName,
		"node":         c.Node,
	})

	if c.LogFacility != "" {
		entry = entry.WithField("facility", c.LogFacility)
	}

	return entry
}
