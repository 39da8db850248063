package clustering

import (
	"testing"

	"github.com/mdmcore/resolve/internal/model"
)

func decision(a, b string, verdict model.Verdict, score float64) model.MatchDecision {
	return model.MatchDecision{Pair: model.NewCandidatePair(a, b), Verdict: verdict, OverallScore: score}
}

func TestBuildTransitiveClosure(t *testing.T) {
	decisions := []model.MatchDecision{
		decision("a", "b", model.VerdictMatch, 0.95),
		decision("b", "c", model.VerdictMatch, 0.9),
	}
	result := NewBuilder().Build(decisions)
	if len(result.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d: %+v", len(result.Clusters), result.Clusters)
	}
	if len(result.Clusters[0].Members) != 3 {
		t.Errorf("expected 3 members, got %v", result.Clusters[0].Members)
	}
}

func TestReviewDecisionsNeverUnion(t *testing.T) {
	decisions := []model.MatchDecision{
		decision("a", "b", model.VerdictReview, 0.7),
	}
	result := NewBuilder().Build(decisions)
	if len(result.Clusters) != 2 {
		t.Fatalf("expected 2 separate clusters for a REVIEW pair, got %d", len(result.Clusters))
	}
}

func TestTransitivityGuardDemotesConflictingMerge(t *testing.T) {
	decisions := []model.MatchDecision{
		decision("a", "b", model.VerdictMatch, 0.95),
		decision("c", "d", model.VerdictMatch, 0.95),
		decision("a", "c", model.VerdictNoMatch, 0.1),
		decision("b", "d", model.VerdictMatch, 0.8),
	}
	result := NewBuilder(WithTransitivityGuard(true)).Build(decisions)

	if len(result.Clusters) != 2 {
		t.Fatalf("expected the guard to keep {a,b} and {c,d} separate, got %d clusters: %+v", len(result.Clusters), result.Clusters)
	}
	if len(result.Demoted) != 1 {
		t.Fatalf("expected 1 demoted pair, got %d", len(result.Demoted))
	}
}

func TestBuildIncrementalSeedsPriorClustersAndAddsNew(t *testing.T) {
	prior := map[string][]string{
		"cluster-1": {"a", "b"},
		"cluster-2": {"c"},
	}
	decisions := []model.MatchDecision{
		decision("c", "d", model.VerdictMatch, 0.9), // d joins cluster-2
		decision("e", "f", model.VerdictMatch, 0.9), // brand new cluster
	}
	result, err := NewBuilder().BuildIncremental(prior, decisions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byMember := clustersByMember(result.Clusters)
	if !sameMembers(byMember["a"], []string{"a", "b"}) {
		t.Errorf("expected cluster-1 to remain {a,b}, got %v", byMember["a"])
	}
	if !sameMembers(byMember["c"], []string{"c", "d"}) {
		t.Errorf("expected cluster-2 to grow to {c,d}, got %v", byMember["c"])
	}
	if !sameMembers(byMember["e"], []string{"e", "f"}) {
		t.Errorf("expected a new {e,f} cluster, got %v", byMember["e"])
	}
}

func TestBuildIncrementalMergesTwoPriorClusters(t *testing.T) {
	prior := map[string][]string{
		"cluster-1": {"a", "b"},
		"cluster-2": {"c", "d"},
	}
	decisions := []model.MatchDecision{
		decision("b", "c", model.VerdictMatch, 0.9),
	}
	result, err := NewBuilder().BuildIncremental(prior, decisions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected the two prior clusters to merge into one, got %d: %+v", len(result.Clusters), result.Clusters)
	}
	if len(result.Clusters[0].Members) != 4 {
		t.Errorf("expected 4 affected records, got %v", result.Clusters[0].Members)
	}
}

func clustersByMember(clusters []Cluster) map[string][]string {
	out := make(map[string][]string)
	for _, c := range clusters {
		for _, m := range c.Members {
			out[m] = c.Members
		}
	}
	return out
}

func sameMembers(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(got))
	for _, m := range got {
		seen[m] = true
	}
	for _, m := range want {
		if !seen[m] {
			return false
		}
	}
	return true
}
