package daemon

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return &Daemon{Log: logrus.NewEntry(logger)}
}

func TestCancelPendingInsertIsANoOpWithNothingPending(t *testing.T) {
	d := newTestDaemon(t)
	require.NotPanics(t, d.CancelPendingInsert)
}

func TestStartAsyncInsertThenCancelWaitsForCompletion(t *testing.T) {
	d := newTestDaemon(t)

	started := make(chan struct{})
	finished := make(chan struct{})

	d.StartAsyncInsert(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(finished)
		return ctx.Err()
	})

	<-started
	d.CancelPendingInsert()

	select {
	case <-finished:
	default:
		t.Fatal("CancelPendingInsert returned before the in-flight insert observed cancellation")
	}
}

func TestStartAsyncInsertReplacesPreviousPending(t *testing.T) {
	d := newTestDaemon(t)

	d.StartAsyncInsert(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	first := d.pending

	d.StartAsyncInsert(context.Background(), func(ctx context.Context) error {
		return nil
	})

	require.NotSame(t, first, d.pending)

	d.CancelPendingInsert()
	require.Nil(t, d.pending)
}

func TestValidateStandbyErrorsWithoutLocalConnection(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.ValidateStandby(context.Background())
	require.Error(t, err)
}

func TestCleanupIsSafeWithNoConnections(t *testing.T) {
	d := newTestDaemon(t)
	require.NotPanics(t, d.Cleanup)
}
