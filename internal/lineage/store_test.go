package lineage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lineage.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteMergeEventCreatesGoldenRecordAndXref(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	golden := model.GoldenRecord{
		GoldenID:   "g1",
		Attributes: model.Attributes{"name": model.StringValue("Acme")},
		ClusterID:  "c1",
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	xref := model.Xref{SourceRecordID: "r1", SourceSystem: "crm", GoldenID: "g1", ValidFrom: now, Confidence: 0.95}

	_, err := s.WriteMergeEvent(ctx, MergeWriteRequest{
		EventType:         model.EventCreate,
		Actor:             "pipeline",
		Timestamp:         now,
		GoldenRecords:     []model.GoldenRecord{golden},
		XrefUpserts:       []model.Xref{xref},
		AffectedGoldenIDs: []string{"g1"},
		AffectedRecordIDs: []string{"r1"},
	})
	if err != nil {
		t.Fatalf("write merge event: %v", err)
	}

	got, err := s.GetGoldenRecord(ctx, "g1")
	if err != nil {
		t.Fatalf("get golden record: %v", err)
	}
	if got.Attributes["name"].Str != "Acme" {
		t.Errorf("expected persisted attribute, got %+v", got.Attributes)
	}

	openXref, err := s.OpenXrefFor(ctx, "r1", "crm")
	if err != nil {
		t.Fatalf("open xref lookup: %v", err)
	}
	if openXref == nil || openXref.GoldenID != "g1" {
		t.Fatalf("expected open xref pointing at g1, got %+v", openXref)
	}
}

func TestWriteMergeEventIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req := MergeWriteRequest{
		EventID:           "fixed-event-id",
		EventType:         model.EventCreate,
		Actor:             "pipeline",
		Timestamp:         now,
		GoldenRecords:     []model.GoldenRecord{{GoldenID: "g1", Attributes: model.Attributes{"name": model.StringValue("Acme")}, CreatedAt: now, UpdatedAt: now, Version: 1}},
		AffectedGoldenIDs: []string{"g1"},
	}

	if _, err := s.WriteMergeEvent(ctx, req); err != nil {
		t.Fatalf("first write: %v", err)
	}
	_, err := s.WriteMergeEvent(ctx, req)
	if err != ErrDuplicateEvent {
		t.Fatalf("expected ErrDuplicateEvent on replay, got %v", err)
	}
}

func TestRelatedEntitiesReturnsClusterSiblings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	golden := model.GoldenRecord{GoldenID: "g1", Attributes: model.Attributes{}, CreatedAt: now, UpdatedAt: now, Version: 1}
	_, err := s.WriteMergeEvent(ctx, MergeWriteRequest{
		EventType:     model.EventMerge,
		Actor:         "pipeline",
		Timestamp:     now,
		GoldenRecords: []model.GoldenRecord{golden},
		XrefUpserts: []model.Xref{
			{SourceRecordID: "r1", SourceSystem: "crm", GoldenID: "g1", ValidFrom: now, Confidence: 1},
			{SourceRecordID: "r2", SourceSystem: "legacy", GoldenID: "g1", ValidFrom: now, Confidence: 1},
		},
	})
	if err != nil {
		t.Fatalf("write merge event: %v", err)
	}

	related, err := s.RelatedEntities(ctx, "r1", time.Time{})
	if err != nil {
		t.Fatalf("related entities: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("expected 2 sibling xrefs (including r1 itself), got %d: %+v", len(related), related)
	}
}

func TestRollbackRestoresPriorGoldenRecordState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	golden := model.GoldenRecord{GoldenID: "g1", Attributes: model.Attributes{"name": model.StringValue("Original")}, CreatedAt: t0, UpdatedAt: t0, Version: 1}
	_, err := s.WriteMergeEvent(ctx, MergeWriteRequest{
		EventID:       "event-1",
		EventType:     model.EventCreate,
		Actor:         "pipeline",
		Timestamp:     t0,
		GoldenRecords: []model.GoldenRecord{golden},
	})
	if err != nil {
		t.Fatalf("write event 1: %v", err)
	}

	beforeSnapshot := rollbackSnapshot{GoldenRecords: []model.GoldenRecord{golden}}
	beforeJSON, _ := json.Marshal(beforeSnapshot)

	updated := golden
	updated.Attributes = model.Attributes{"name": model.StringValue("Updated")}
	updated.Version = 2
	t1 := t0.Add(time.Minute)
	_, err = s.WriteMergeEvent(ctx, MergeWriteRequest{
		EventID:       "event-2",
		EventType:     model.EventUpdate,
		Actor:         "pipeline",
		Timestamp:     t1,
		GoldenRecords: []model.GoldenRecord{updated},
		BeforeState:   beforeJSON,
	})
	if err != nil {
		t.Fatalf("write event 2: %v", err)
	}

	if err := s.Rollback(ctx, "event-2"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	got, err := s.GetGoldenRecord(ctx, "g1")
	if err != nil {
		t.Fatalf("get golden record after rollback: %v", err)
	}
	if got.Attributes["name"].Str != "Original" {
		t.Errorf("expected rollback to restore original attribute, got %q", got.Attributes["name"].Str)
	}
}
