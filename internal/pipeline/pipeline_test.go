package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdmcore/resolve/internal/blocking"
	"github.com/mdmcore/resolve/internal/comparators"
	"github.com/mdmcore/resolve/internal/lineage"
	"github.com/mdmcore/resolve/internal/matching"
	"github.com/mdmcore/resolve/internal/model"
	"github.com/mdmcore/resolve/internal/survivorship"
	"github.com/mdmcore/resolve/internal/trust"
)

func openTestStore(t *testing.T) *lineage.Store {
	t.Helper()
	s, err := lineage.Open(filepath.Join(t.TempDir(), "lineage.db"))
	if err != nil {
		t.Fatalf("open lineage store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() Config {
	return Config{
		EntityName: "company",
		TrustConfig: trust.Config{
			SourceReliabilityWeight: 0.25,
			CompletenessWeight:      0.25,
			TimelinessWeight:        0.25,
			ValidityWeight:          0.25,
			SourceReliability:       map[string]float64{"CRM": 0.9, "ERP": 0.7},
			HalfLifeDays:            365,
		},
		BlockingStrategies: []blocking.Strategy{
			blocking.NewStandardStrategy("phone_block", []string{"phone"}, 0),
		},
		MaxBlockSize: 1000,
		MatchingConfig: matching.Config{
			Aggregation:     matching.AggWeightedAverage,
			MatchThreshold:  0.85,
			ReviewThreshold: 0.6,
			Fields: []matching.FieldRule{
				{Field: "name", ComparatorID: "fuzzy", Weight: 0.5, NullPolicy: matching.NullMismatch},
				{Field: "phone", ComparatorID: "exact", Weight: 0.5, NullPolicy: matching.NullMismatch},
			},
		},
		TransitivityGuard: true,
		SurvivorshipRules: []survivorship.FieldRule{
			{Field: "name", Strategy: survivorship.StrategyTrustedSourcePriority, SourcePriority: []string{"CRM", "ERP"}},
			{Field: "phone", Strategy: survivorship.StrategyMostTrusted},
		},
		CacheCapacity: 128,
		Workers:       2,
	}
}

var errMissingName = errors.New("name is required")

func rec(id, source, name, phone string, ts time.Time) model.Record {
	return model.Record{
		RecordID:        id,
		SourceID:        source,
		Attributes:      model.Attributes{"name": model.StringValue(name), "phone": model.StringValue(phone)},
		IngestTime:      ts,
		SourceTimestamp: ts,
	}
}

func TestProcessBatchExactDuplicateAcrossSourcesMerges(t *testing.T) {
	store := openTestStore(t)
	p, err := New(testConfig(), comparators.NewRegistry(), store)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	crmTime := time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC)
	erpTime := time.Date(2024, 2, 24, 0, 0, 0, 0, time.UTC)
	batch := []model.Record{
		rec("CRM_1", "CRM", "Acme Corp", "555-0101", crmTime),
		rec("ERP_1", "ERP", "ACME Corporation", "555-0101", erpTime),
	}

	result, err := p.ProcessBatch(context.Background(), batch, ModeFullRebuild, nil, "test-actor")
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if result.ClustersBuilt != 1 {
		t.Fatalf("expected 1 cluster, got %d", result.ClustersBuilt)
	}
	if result.EventsWritten != 1 {
		t.Fatalf("expected 1 merge event written, got %d", result.EventsWritten)
	}

	open, err := store.OpenXrefFor(context.Background(), "CRM_1", "CRM")
	if err != nil {
		t.Fatalf("open xref: %v", err)
	}
	if open == nil {
		t.Fatal("expected open xref for CRM_1")
	}

	golden, err := store.GetGoldenRecord(context.Background(), open.GoldenID)
	if err != nil {
		t.Fatalf("get golden record: %v", err)
	}
	if golden.Attributes["name"].Str != "Acme Corp" {
		t.Errorf("expected trusted_source_priority to pick CRM's name, got %q", golden.Attributes["name"].Str)
	}
}

func TestProcessBatchIncrementalAddsToExistingCluster(t *testing.T) {
	store := openTestStore(t)
	cfg := testConfig()
	p, err := New(cfg, comparators.NewRegistry(), store)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	ctx := context.Background()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := []model.Record{
		rec("A", "CRM", "Acme Corp", "555-0101", t0),
		rec("B", "ERP", "Acme Corp", "555-0101", t0),
	}
	if _, err := p.ProcessBatch(ctx, first, ModeFullRebuild, nil, "actor"); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	openB, err := store.OpenXrefFor(ctx, "B", "ERP")
	if err != nil || openB == nil {
		t.Fatalf("expected open xref for B: %v", err)
	}
	goldenID := openB.GoldenID

	t1 := t0.Add(time.Hour)
	second := []model.Record{
		rec("B", "ERP", "Acme Corp", "555-0101", t0),
		rec("C", "LEGACY", "Acme Corp", "555-0101", t1),
	}
	result, err := p.ProcessBatch(ctx, second, ModeIncremental, nil, "actor")
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if result.ClustersBuilt != 1 {
		t.Fatalf("expected 1 cluster in second batch, got %d", result.ClustersBuilt)
	}

	openC, err := store.OpenXrefFor(ctx, "C", "LEGACY")
	if err != nil || openC == nil {
		t.Fatalf("expected open xref for C: %v", err)
	}
	if openC.GoldenID != goldenID {
		t.Errorf("expected C to join existing golden id %s, got %s", goldenID, openC.GoldenID)
	}
}

func TestProcessBatchSkipsIdenticalBatchReplay(t *testing.T) {
	store := openTestStore(t)
	p, err := New(testConfig(), comparators.NewRegistry(), store)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := []model.Record{rec("A", "CRM", "Acme Corp", "555-0101", t0)}

	first, err := p.ProcessBatch(ctx, batch, ModeFullRebuild, nil, "actor")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.EventsWritten != 1 {
		t.Fatalf("expected 1 event on first run, got %d", first.EventsWritten)
	}

	replay, err := p.ProcessBatch(ctx, batch, ModeFullRebuild, nil, "actor")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.EventsWritten != 0 {
		t.Errorf("expected replay of identical batch to write 0 events, got %d", replay.EventsWritten)
	}
}

func TestProcessBatchRoutesInvalidRecordToDeadLetter(t *testing.T) {
	store := openTestStore(t)
	p, err := New(testConfig(), comparators.NewRegistry(), store)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := []model.Record{rec("A", "CRM", "", "555-0101", t0)}

	validator := func(r model.Record) error {
		if r.Attributes["name"].Str == "" {
			return errMissingName
		}
		return nil
	}

	result, err := p.ProcessBatch(context.Background(), batch, ModeFullRebuild, validator, "actor")
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if result.DeadLettered != 1 || result.ClustersBuilt != 0 {
		t.Errorf("expected the invalid record dead-lettered and no clusters built, got %+v", result)
	}
}
