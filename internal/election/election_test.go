package election

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/repmgrd/internal/lsn"
)

func mustParse(t *testing.T, text string) lsn.LSN {
	t.Helper()
	v, err := lsn.Parse(text)
	require.NoError(t, err)
	return v
}

// TestElectionWinnerByLSN covers a standard three-node election where the
// highest LSN wins regardless of node ordering.
func TestElectionWinnerByLSN(t *testing.T) {
	local := Candidate{NodeID: 1, LSN: mustParse(t, "2/00000000"), Reachable: true}
	peer5 := Candidate{NodeID: 5, LSN: mustParse(t, "2/00000100"), Reachable: true}
	peer7 := Candidate{NodeID: 7, LSN: mustParse(t, "1/FFFFFFFF"), Reachable: true}

	best := SelectBest(local, []Candidate{peer5, peer7})
	require.Equal(t, 5, best.NodeID)
}

// TestSelfWins covers the case where the local node holds the most
// advanced position of all candidates.
func TestSelfWins(t *testing.T) {
	local := Candidate{NodeID: 5, LSN: mustParse(t, "5/10"), Reachable: true}
	peerA := Candidate{NodeID: 1, LSN: mustParse(t, "5/08"), Reachable: true}
	peerB := Candidate{NodeID: 2, LSN: mustParse(t, "4/FF"), Reachable: true}

	best := SelectBest(local, []Candidate{peerA, peerB})
	require.Equal(t, 5, best.NodeID)
}

// TestTiesRetainCurrentBest documents that ties keep the existing best, so
// the outcome depends on iteration order.
func TestTiesRetainCurrentBest(t *testing.T) {
	local := Candidate{NodeID: 1, LSN: mustParse(t, "1/0"), Reachable: true}
	tie := Candidate{NodeID: 2, LSN: mustParse(t, "1/0"), Reachable: true}

	best := SelectBest(local, []Candidate{tie})
	require.Equal(t, 1, best.NodeID, "a tie must not displace the current best")
}

// TestUnreachablePeersAreIgnored ensures an unreachable peer never wins
// regardless of its recorded LSN.
func TestUnreachablePeersAreIgnored(t *testing.T) {
	local := Candidate{NodeID: 1, LSN: mustParse(t, "1/0"), Reachable: true}
	unreachable := Candidate{NodeID: 9, LSN: mustParse(t, "9/0"), Reachable: false}

	best := SelectBest(local, []Candidate{unreachable})
	require.Equal(t, 1, best.NodeID)
}

// TestQuorumGate covers concrete boundary scenarios for the quorum gate.
func TestQuorumGate(t *testing.T) {
	// Local reachable, 3 peers listed, all unreachable: visible=1, total=4.
	require.False(t, HasQuorum(4, 1))

	// Seeing at least total/2 nodes (integer division) holds quorum.
	require.True(t, HasQuorum(4, 2))
	require.True(t, HasQuorum(3, 2))
	require.True(t, HasQuorum(3, 1))

	// Single-node cluster always has quorum with itself.
	require.True(t, HasQuorum(1, 1))
}

// TestQuorumGateForAnyMinority is the generalized invariant: for any total
// N, if fewer than N/2 nodes (including self) are reachable, the gate must
// refuse.
func TestQuorumGateForAnyMinority(t *testing.T) {
	for total := 1; total <= 20; total++ {
		for visible := 0; visible <= total; visible++ {
			want := visible >= total/2
			require.Equal(t, want, HasQuorum(total, visible), "total=%d visible=%d", total, visible)
		}
	}
}
