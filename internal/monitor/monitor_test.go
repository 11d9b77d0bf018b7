package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gitlab.com/gitlab-org/repmgrd/internal/lsn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustParse(t *testing.T, text string) lsn.LSN {
	t.Helper()
	v, err := lsn.Parse(text)
	require.NoError(t, err)
	return v
}

func TestComputeLagAllCaughtUp(t *testing.T) {
	pos := mustParse(t, "1/0")
	receive, apply := ComputeLag(pos, pos, pos)
	require.Zero(t, receive)
	require.Zero(t, apply)
}

func TestComputeLagReceiveBehindPrimary(t *testing.T) {
	primary := mustParse(t, "1/100")
	receive := mustParse(t, "1/80")
	apply := mustParse(t, "1/80")

	behindReceive, behindApply := ComputeLag(primary, receive, apply)
	require.Equal(t, int64(0x80), behindReceive)
	require.Zero(t, behindApply)
}

func TestComputeLagApplyBehindReceive(t *testing.T) {
	primary := mustParse(t, "1/100")
	receive := mustParse(t, "1/100")
	apply := mustParse(t, "1/40")

	behindReceive, behindApply := ComputeLag(primary, receive, apply)
	require.Zero(t, behindReceive)
	require.Equal(t, int64(0xC0), behindApply)
}

// TestComputeLagCanBeNegative documents that a stale primary sample taken
// after the standby has already caught up produces a negative lag, which is
// recorded as-is rather than clamped to zero.
func TestComputeLagCanBeNegative(t *testing.T) {
	primary := mustParse(t, "1/40")
	receive := mustParse(t, "1/100")
	apply := mustParse(t, "1/100")

	behindReceive, _ := ComputeLag(primary, receive, apply)
	require.Negative(t, behindReceive)
}
