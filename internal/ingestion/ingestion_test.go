package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mdmcore/resolve/internal/model"
)

func TestJSONLIteratorBatchesAndParses(t *testing.T) {
	input := strings.Join([]string{
		`{"record_id":"r1","source_id":"crm","attributes":{"name":"Acme","active":true},"source_timestamp":"2026-01-01T00:00:00Z"}`,
		`{"record_id":"r2","source_id":"crm","attributes":{"name":"Globex"}}`,
		`{"record_id":"r3","source_id":"crm","attributes":{"name":"Initech"}}`,
	}, "\n")

	it := NewJSONLIterator(strings.NewReader(input), 2, nil, nil)
	ctx := context.Background()

	first, err := it.NextBatch(ctx)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(first))
	}
	if first[0].RecordID != "r1" || first[0].Attributes["name"].Str != "Acme" {
		t.Errorf("unexpected first record: %+v", first[0])
	}
	if !first[0].Attributes["active"].Bool {
		t.Errorf("expected active=true, got %+v", first[0].Attributes["active"])
	}

	second, err := it.NextBatch(ctx)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(second) != 1 || second[0].RecordID != "r3" {
		t.Fatalf("expected final partial batch of [r3], got %+v", second)
	}

	_, err = it.NextBatch(ctx)
	if err != ErrEndOfInput {
		t.Fatalf("expected ErrEndOfInput, got %v", err)
	}
}

func TestJSONLIteratorSkipsUnparseableLines(t *testing.T) {
	input := strings.Join([]string{
		`not json`,
		`{"record_id":"r1","source_id":"crm","attributes":{}}`,
	}, "\n")

	it := NewJSONLIterator(strings.NewReader(input), 10, nil, nil)
	batch, err := it.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if len(batch) != 1 || batch[0].RecordID != "r1" {
		t.Fatalf("expected only r1 to survive, got %+v", batch)
	}
}

func TestJSONLIteratorRoutesValidationFailuresToDeadLetter(t *testing.T) {
	input := `{"record_id":"r1","source_id":"crm","attributes":{"name":"bad"}}`
	dl := &MemoryDeadLetterSink{}
	validator := func(r model.Record) error {
		if r.Attributes["name"].Str == "bad" {
			return errors.New("name must not be 'bad'")
		}
		return nil
	}

	it := NewJSONLIterator(strings.NewReader(input), 10, validator, dl)
	_, err := it.NextBatch(context.Background())
	if err != ErrEndOfInput {
		t.Fatalf("expected ErrEndOfInput when all records fail validation, got %v", err)
	}
	if len(dl.Items) != 1 || dl.Items[0].Reason != ValidationErrorReason {
		t.Fatalf("expected 1 dead letter with VALIDATION_ERROR, got %+v", dl.Items)
	}
}

func TestJSONLIteratorRejectsMissingRecordID(t *testing.T) {
	input := `{"source_id":"crm","attributes":{}}`
	dl := &MemoryDeadLetterSink{}
	it := NewJSONLIterator(strings.NewReader(input), 10, nil, dl)
	_, err := it.NextBatch(context.Background())
	if err != ErrEndOfInput {
		t.Fatalf("expected ErrEndOfInput, got %v", err)
	}
	if len(dl.Items) != 1 {
		t.Fatalf("expected missing record_id routed to dead letter, got %+v", dl.Items)
	}
}

func TestBatchHashStableUnderReordering(t *testing.T) {
	a := []model.Record{{RecordID: "r1"}, {RecordID: "r2"}}
	b := []model.Record{{RecordID: "r2"}, {RecordID: "r1"}}
	if BatchHash(a) != BatchHash(b) {
		t.Errorf("expected order-independent hash")
	}
}

func TestSeenBatchesDetectsDuplicate(t *testing.T) {
	seen := NewSeenBatches()
	hash := "abc123"
	if seen.CheckAndRecord(hash) {
		t.Fatalf("first sighting should not be marked as already seen")
	}
	if !seen.CheckAndRecord(hash) {
		t.Fatalf("second sighting should be marked as already seen")
	}
}
