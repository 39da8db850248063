// Package clustering implements the Cluster Builder: unions MATCH
// decisions via union-find into clusters and applies the transitivity
// guard. CREATE/UPDATE/MERGE event classification happens downstream
// in the Pipeline Orchestrator's lineage commit, against the
// authoritative persisted xref state rather than this batch's
// in-memory prior-cluster seed.
package clustering

import (
	"fmt"
	"sort"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/model"
)

var log = logging.GetLogger("clustering")

// Cluster is a connected component of record ids sharing a root.
type Cluster struct {
	Root    string
	Members []string
}

// BuildResult is the outcome of a Build or BuildIncremental call.
type BuildResult struct {
	Clusters []Cluster
	// Demoted lists CandidatePairs whose MATCH decision was demoted to
	// REVIEW by the transitivity guard instead of being unioned.
	Demoted []model.CandidatePair
}

// Builder applies MATCH decisions to a union-find over record ids.
type Builder struct {
	transitivityGuard bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithTransitivityGuard enables a guard that refuses to merge two
// clusters if any cross-cluster pair has a recorded NO_MATCH, demoting
// the weaker edge to REVIEW instead.
func WithTransitivityGuard(enabled bool) Option {
	return func(b *Builder) { b.transitivityGuard = enabled }
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build computes clusters from scratch over decisions (a full rebuild):
// after the entire batch, the set of roots defines the clusters.
func (b *Builder) Build(decisions []model.MatchDecision) *BuildResult {
	uf := newUnionFind()
	noMatch := collectNoMatch(decisions)
	memberCache := make(map[string][]string)

	var demoted []model.CandidatePair
	for _, d := range sortedMatches(decisions) {
		b.applyDecision(uf, memberCache, noMatch, d, &demoted)
	}

	return &BuildResult{Clusters: snapshotClusters(uf), Demoted: demoted}
}

// BuildIncremental seeds the union-find with existing cluster
// membership and applies new decisions on top, so a new record that
// matches an existing member joins that member's cluster even when the
// new batch never observed the rest of the cluster directly.
func (b *Builder) BuildIncremental(priorClusters map[string][]string, decisions []model.MatchDecision) (*BuildResult, error) {
	uf := newUnionFind()

	priorIDs := make([]string, 0, len(priorClusters))
	for clusterID := range priorClusters {
		priorIDs = append(priorIDs, clusterID)
	}
	sort.Strings(priorIDs)

	for _, clusterID := range priorIDs {
		members := priorClusters[clusterID]
		if len(members) == 0 {
			return nil, fmt.Errorf("clustering: prior cluster %q has no members", clusterID)
		}
		sort.Strings(members)
		for _, m := range members {
			uf.add(m)
			uf.union(members[0], m)
		}
	}

	noMatch := collectNoMatch(decisions)
	memberCache := make(map[string][]string)
	var demoted []model.CandidatePair
	for _, d := range sortedMatches(decisions) {
		b.applyDecision(uf, memberCache, noMatch, d, &demoted)
	}

	clusters := snapshotClusters(uf)
	return &BuildResult{Clusters: clusters, Demoted: demoted}, nil
}

// applyDecision unions a MATCH decision's pair, applying the
// transitivity guard if enabled; REVIEW and NO_MATCH decisions never
// union.
func (b *Builder) applyDecision(uf *unionFind, memberCache map[string][]string, noMatch map[model.CandidatePair]model.MatchDecision, d model.MatchDecision, demoted *[]model.CandidatePair) {
	uf.add(d.Pair.A)
	uf.add(d.Pair.B)

	if d.Verdict != model.VerdictMatch {
		return
	}

	if b.transitivityGuard {
		ra, rb := uf.find(d.Pair.A), uf.find(d.Pair.B)
		if ra != rb {
			if conflict, ok := crossClusterNoMatch(uf, ra, rb, noMatch); ok {
				log.Warn("transitivity guard demoted match to review", "pair", d.Pair, "conflicting_pair", conflict.Pair)
				*demoted = append(*demoted, d.Pair)
				return
			}
		}
	}

	uf.union(d.Pair.A, d.Pair.B)
	// invalidate cached membership snapshot for roots involved
	delete(memberCache, uf.find(d.Pair.A))
}

// crossClusterNoMatch reports whether any recorded NO_MATCH pair spans
// the two clusters rooted at ra and rb.
func crossClusterNoMatch(uf *unionFind, ra, rb string, noMatch map[model.CandidatePair]model.MatchDecision) (model.MatchDecision, bool) {
	for pair, decision := range noMatch {
		aRoot, bRoot := uf.find(pair.A), uf.find(pair.B)
		if (aRoot == ra && bRoot == rb) || (aRoot == rb && bRoot == ra) {
			return decision, true
		}
	}
	return model.MatchDecision{}, false
}

func collectNoMatch(decisions []model.MatchDecision) map[model.CandidatePair]model.MatchDecision {
	out := make(map[model.CandidatePair]model.MatchDecision)
	for _, d := range decisions {
		if d.Verdict == model.VerdictNoMatch {
			out[d.Pair] = d
		}
	}
	return out
}

// sortedMatches returns decisions in a deterministic order (by
// OverallScore descending, then by pair ascending) so stronger edges are
// unioned first, the transitivity guard demotes the weaker of two
// conflicting edges, and cluster roots are reproducible across runs
// given the same input.
func sortedMatches(decisions []model.MatchDecision) []model.MatchDecision {
	out := make([]model.MatchDecision, len(decisions))
	copy(out, decisions)
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		if out[i].Pair.A != out[j].Pair.A {
			return out[i].Pair.A < out[j].Pair.A
		}
		return out[i].Pair.B < out[j].Pair.B
	})
	return out
}

func snapshotClusters(uf *unionFind) []Cluster {
	grouped := uf.members()
	roots := make([]string, 0, len(grouped))
	for root := range grouped {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	out := make([]Cluster, 0, len(roots))
	for _, root := range roots {
		members := grouped[root]
		sort.Strings(members)
		out = append(out, Cluster{Root: root, Members: members})
	}
	return out
}
