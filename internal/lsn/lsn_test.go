package lsn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, text := range []string{
		"1/A0B0C0D0",
		"0/0",
		"FFFFFFFF/FFFFFFFF",
		"2/00000100",
	} {
		parsed, err := Parse(text)
		require.NoError(t, err)
		require.Equal(t, normalizeHex(text), parsed.String())
	}
}

func TestParseConcreteScenario(t *testing.T) {
	got, err := Parse("1/A0B0C0D0")
	require.NoError(t, err)
	require.Equal(t, LSN{Segment: 1, Offset: 0xA0B0C0D0}, got)
	require.Equal(t, uint64(0x19FB0C0D0), got.Bytes())
	require.Equal(t, "1/A0B0C0D0", got.String())
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, text := range []string{
		"",
		"1",
		"1/2/3",
		"zz/zz",
		"1/",
		"/1",
	} {
		got, err := Parse(text)
		require.Error(t, err)
		require.Equal(t, Zero, got)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	low, err := Parse("1/0")
	require.NoError(t, err)
	high, err := Parse("1/100")
	require.NoError(t, err)
	higherSegment, err := Parse("2/0")
	require.NoError(t, err)

	require.Equal(t, -1, Compare(low, high))
	require.Equal(t, 1, Compare(high, low))
	require.Equal(t, 0, Compare(low, low))
	require.Equal(t, -1, Compare(high, higherSegment))

	// antisymmetry
	require.Equal(t, -Compare(low, high), Compare(high, low))
}

func TestCompareEqualImpliesEqualBytes(t *testing.T) {
	a, err := Parse("5/10")
	require.NoError(t, err)
	b, err := Parse("5/10")
	require.NoError(t, err)

	require.Equal(t, 0, Compare(a, b))
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestElectionWinnerByLSN(t *testing.T) {
	local, err := Parse("2/0")
	require.NoError(t, err)
	peer5, err := Parse("2/100")
	require.NoError(t, err)
	peer7, err := Parse("1/FFFFFFFF")
	require.NoError(t, err)

	require.Equal(t, 1, Compare(peer5, local))
	require.Equal(t, -1, Compare(peer7, local))
}

func normalizeHex(text string) string {
	parsed, err := Parse(text)
	if err != nil {
		return text
	}
	return parsed.String()
}
