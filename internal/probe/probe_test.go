package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbeUnreachableOnMalformedConninfo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	position, ok := Probe(ctx, "repmgrd_test", 7, "this is not a valid conninfo string")
	require.False(t, ok)
	require.Equal(t, position.Bytes(), uint64(0))
}
