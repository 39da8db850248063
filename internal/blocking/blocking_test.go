package blocking

import (
	"context"
	"testing"

	"github.com/mdmcore/resolve/internal/model"
	"github.com/mdmcore/resolve/internal/vectorindex"
)

func rec(id, surname string) *model.NormalizedRecord {
	return &model.NormalizedRecord{
		Record: model.Record{RecordID: id},
		Normalized: model.Attributes{
			"surname": model.StringValue(surname),
		},
	}
}

func TestBlockerGeneratesDedupedPairs(t *testing.T) {
	records := []*model.NormalizedRecord{
		rec("1", "smith"),
		rec("2", "smith"),
		rec("3", "jones"),
	}
	strat := NewStandardStrategy("surname_exact", []string{"surname"}, 0)
	b := New([]Strategy{strat})

	pairs, err := b.GeneratePairs(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d: %v", len(pairs), pairs)
	}
	if pairs[0].A != "1" || pairs[0].B != "2" {
		t.Errorf("unexpected pair: %+v", pairs[0])
	}
}

func TestBlockerHonorsMaxBlockSize(t *testing.T) {
	records := []*model.NormalizedRecord{rec("1", "x"), rec("2", "x"), rec("3", "x")}
	strat := NewStandardStrategy("surname_exact", []string{"surname"}, 0)
	b := New([]Strategy{strat}, WithMaxBlockSize(2))

	_, err := b.GeneratePairs(context.Background(), records)
	if err == nil {
		t.Fatal("expected ErrBlockExplosion")
	}
	var explosion *ErrBlockExplosion
	if !asExplosion(err, &explosion) {
		t.Fatalf("expected *ErrBlockExplosion, got %T: %v", err, err)
	}
}

func asExplosion(err error, target **ErrBlockExplosion) bool {
	e, ok := err.(*ErrBlockExplosion)
	if ok {
		*target = e
	}
	return ok
}

func TestSortedNeighborhoodWindow(t *testing.T) {
	records := []*model.NormalizedRecord{
		rec("a", "adams"),
		rec("b", "adamson"),
		rec("c", "zephyr"),
	}
	strat := NewSortedNeighborhoodStrategy("surname_sn", "surname", 2)
	pairs := strat.BuildPairs(context.Background(), records)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs from a 3-record window-2 slide, got %d: %v", len(pairs), pairs)
	}
}

func TestVectorStrategyFindsNeighbors(t *testing.T) {
	r1 := rec("1", "")
	r1.Embeddings = map[string][]float32{"name_vec": {1, 0, 0}}
	r2 := rec("2", "")
	r2.Embeddings = map[string][]float32{"name_vec": {0.99, 0.01, 0}}
	r3 := rec("3", "")
	r3.Embeddings = map[string][]float32{"name_vec": {0, 1, 0}}

	idx := vectorindex.NewMemoryIndex()
	strat := NewVectorStrategy("name_vec_lsh", "name_vec", idx, 10, 0.9)
	pairs, err := strat.BuildPairs(context.Background(), []*model.NormalizedRecord{r1, r2, r3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair above threshold, got %d: %v", len(pairs), pairs)
	}
	if pairs[0].A != "1" || pairs[0].B != "2" {
		t.Errorf("unexpected pair: %+v", pairs[0])
	}
}
