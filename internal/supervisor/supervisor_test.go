package supervisor

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/repmgrd/internal/config"
	"gitlab.com/gitlab-org/repmgrd/internal/daemon"
)

func TestHandleRejectsUnknownFailoverPolicy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := &daemon.Daemon{
		Config: config.Config{Node: 1, ClusterName: "test", Failover: "BOGUS"},
		Log:    logrus.NewEntry(logger),
	}

	outcome, err := Handle(context.Background(), d)
	require.Error(t, err)
	require.Equal(t, daemon.ErrBadConfig, outcome.ExitCode)
}
