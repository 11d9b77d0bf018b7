// Package election implements the failover election engine: gather peer
// positions, apply the quorum gate, select the best candidate by maximum
// applied LSN, and dispatch the promote or follow command. Candidates are
// gathered into a slice and the decision is structured-logged before the
// chosen command is dispatched.
package election

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/repmgrd/internal/daemon"
	"gitlab.com/gitlab-org/repmgrd/internal/dbconn"
	"gitlab.com/gitlab-org/repmgrd/internal/lsn"
	"gitlab.com/gitlab-org/repmgrd/internal/metrics"
	"gitlab.com/gitlab-org/repmgrd/internal/probe"
	"gitlab.com/gitlab-org/repmgrd/internal/registry"
	"gitlab.com/gitlab-org/repmgrd/internal/shellcmd"
	"gitlab.com/gitlab-org/repmgrd/internal/tracing"
)

// Outcome is the result an election hands back to the supervisor.
type Outcome int

const (
	// Promoted means the local node won and the promote command has been
	// dispatched; the caller should exit with ERR_PROMOTED.
	Promoted Outcome = iota
	// Followed means a peer won and the follow command has been
	// dispatched; the local connection has been reopened and the
	// monitoring loop may resume.
	Followed
	// MinorityPartition means the quorum gate failed; neither command was
	// dispatched and the caller should exit with ERR_FAILOVER_FAIL.
	MinorityPartition
)

// Candidate is the transient, election-only record of one node's state.
// The local node is represented the same way peers are, so selection
// treats them uniformly.
type Candidate struct {
	NodeID    int
	LSN       lsn.LSN
	Reachable bool
}

// ErrMinorityPartition is returned alongside MinorityPartition so callers
// that only check the error (rather than the Outcome) still fail closed.
var ErrMinorityPartition = fmt.Errorf("election: minority partition, refusing to promote")

// HasQuorum applies the visibility-quorum gate: at least totalNodes/2 known
// nodes (integer division) must be visible, or the election must not
// proceed.
func HasQuorum(totalNodes, visibleNodes int) bool {
	return visibleNodes >= totalNodes/2
}

// SelectBest starts from local as the current best candidate and replaces
// it with any reachable peer whose LSN compares strictly greater. Ties
// retain the current best, so iteration order over peers is observable
// whenever two candidates share an LSN — this is documented behavior, not
// a bug.
func SelectBest(local Candidate, peers []Candidate) Candidate {
	best := local
	for _, c := range peers {
		if !c.Reachable {
			continue
		}
		if lsn.Compare(c.LSN, best.LSN) > 0 {
			best = c
		}
	}
	return best
}

// Run executes one election against d. The local connection stays open
// through peer probing and the quorum gate; once a winner is chosen, Run
// closes it around dispatch of the promote or follow command and reopens it
// before returning. If reopening fails, Run returns that error and d.Local
// is left closed.
func Run(ctx context.Context, d *daemon.Daemon) (Outcome, error) {
	ctx, finish := tracing.StartSpan(ctx, "election.run")
	defer finish()

	electionID := uuid.New().String()
	log := d.Log.WithField("election_id", electionID)
	schema := d.SchemaName()

	localPosition, err := readLocalAppliedPosition(ctx, d)
	if err != nil {
		log.WithError(err).Warn("failed to read local applied position; publishing sentinel 0/0")
		localPosition = lsn.Zero
	}

	if err := probe.PublishLocalPosition(ctx, d.Local.DB(), schema, d.Config.Node, localPosition); err != nil {
		log.WithError(err).Warn("failed to publish local position; publishing sentinel 0/0 instead")
		localPosition = lsn.Zero
		if err := probe.PublishLocalPosition(ctx, d.Local.DB(), schema, d.Config.Node, localPosition); err != nil {
			log.WithError(err).Warn("failed to publish sentinel 0/0")
		}
	}

	peers, err := registry.ListPeerStandbys(ctx, d.Primary.DB(), d.Config.Node, d.Config.ClusterName)
	if err != nil {
		return MinorityPartition, fmt.Errorf("election: list peer standbys: %w", err)
	}

	maxPeers := d.Config.MaxPeers
	if len(peers) > maxPeers {
		log.WithFields(logrus.Fields{
			"peer_count": len(peers),
			"max_peers":  maxPeers,
		}).Warn("peer count exceeds the configured safety limit; extra peers are ignored")
		peers = peers[:maxPeers]
	}

	candidates := make([]Candidate, 0, len(peers))
	reachableCount := 0
	for _, peer := range peers {
		position, reachable := probe.Probe(ctx, schema, peer.ID, peer.Conninfo)
		if reachable {
			reachableCount++
		}
		candidates = append(candidates, Candidate{NodeID: peer.ID, LSN: position, Reachable: reachable})
	}

	totalNodes := 1 + len(peers)
	visibleNodes := 1 + reachableCount

	if !HasQuorum(totalNodes, visibleNodes) {
		log.WithFields(logrus.Fields{
			"visible_nodes": visibleNodes,
			"total_nodes":   totalNodes,
		}).Error("minority partition: fewer than half of known nodes are visible, refusing to promote")
		metrics.ElectionOutcomes.WithLabelValues("minority_partition").Inc()
		return MinorityPartition, ErrMinorityPartition
	}

	local := Candidate{NodeID: d.Config.Node, LSN: localPosition, Reachable: true}
	best := SelectBest(local, candidates)

	log.WithFields(logrus.Fields{
		"winner":     best.NodeID,
		"winner_lsn": best.LSN.String(),
		"local_node": d.Config.Node,
		"visible":    visibleNodes,
		"total":      totalNodes,
	}).Info("election decided")

	// The election owns the local connection during selection/dispatch;
	// close it now and reopen it before returning regardless of outcome.
	conninfo := d.Local.Conninfo()
	d.Local.Close()

	outcome := Followed
	if best.NodeID == d.Config.Node {
		outcome = Promoted
		metrics.ElectionOutcomes.WithLabelValues("promoted").Inc()
		shellcmd.Run(ctx, log, d.Config.PromoteCommand)
	} else {
		metrics.ElectionOutcomes.WithLabelValues("followed").Inc()
		shellcmd.Run(ctx, log, d.Config.FollowCommand)
	}

	reopened, err := dbconn.Open(ctx, conninfo)
	if err != nil {
		return outcome, fmt.Errorf("election: reopen local connection after dispatch: %w", err)
	}
	d.Local = reopened

	return outcome, nil
}

func readLocalAppliedPosition(ctx context.Context, d *daemon.Daemon) (lsn.LSN, error) {
	var text string
	if err := d.Local.DB().QueryRowContext(ctx, "SELECT pg_last_wal_replay_lsn()::text").Scan(&text); err != nil {
		return lsn.Zero, fmt.Errorf("election: read local applied position: %w", err)
	}
	return lsn.Parse(text)
}
