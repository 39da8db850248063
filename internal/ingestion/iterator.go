// Package ingestion implements the external ingestion boundary: an
// abstract batch iterator, a dead-letter sink for records failing
// schema validation, and an idempotent-batch-hash guard against
// double-processing.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"

	"github.com/mdmcore/resolve/internal/model"
)

// ErrEndOfInput is returned by Iterator.NextBatch once the source is
// exhausted → sequence of Record | END").
var ErrEndOfInput = errors.New("ingestion: end of input")

// Iterator produces bounded batches of Records.
type Iterator interface {
	// NextBatch returns up to the iterator's configured batch size of
	// records, or ErrEndOfInput when exhausted.
	NextBatch(ctx context.Context) ([]model.Record, error)
}

// ValidationReason enumerates dead-letter routing causes.
type ValidationReason string

// ValidationError is a fatal-for-this-record-only failure.
const ValidationErrorReason ValidationReason = "VALIDATION_ERROR"

// DeadLetter is one record routed out of the main pipeline.
type DeadLetter struct {
	Record model.Record
	Reason ValidationReason
	Detail string
}

// DeadLetterSink receives records that fail schema or validity checks.
type DeadLetterSink interface {
	Route(ctx context.Context, dl DeadLetter) error
}

// MemoryDeadLetterSink accumulates dead letters in memory; used by
// tests and small deployments where durability is not required.
type MemoryDeadLetterSink struct {
	Items []DeadLetter
}

func (s *MemoryDeadLetterSink) Route(_ context.Context, dl DeadLetter) error {
	s.Items = append(s.Items, dl)
	return nil
}

// Validator checks a Record against schema/validity rules before it
// enters the pipeline. A non-nil error routes the record to the
// DeadLetterSink rather than aborting the batch.
type Validator func(model.Record) error

// BatchHash computes a stable content hash over a batch of records,
// used to detect and skip batches already processed (idempotent batch
// ingestion). Each record contributes its RecordID, SourceID and
// attribute values; records are sorted by RecordID before hashing so the
// hash is independent of arrival order.
func BatchHash(records []model.Record) string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.RecordID + "\x00" + r.SourceID
		keys := make([]string, 0, len(r.Attributes))
		for k := range r.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ids[i] += "\x00" + k + "=" + r.Attributes[k].AsString()
		}
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SeenBatches tracks BatchHash values already processed, guarding
// idempotent re-ingestion of an identical batch (e.g. a retried
// upstream delivery).
type SeenBatches struct {
	seen map[string]struct{}
}

// NewSeenBatches builds an empty tracker.
func NewSeenBatches() *SeenBatches {
	return &SeenBatches{seen: make(map[string]struct{})}
}

// CheckAndRecord reports whether hash has already been seen; if not,
// it records it and returns false.
func (s *SeenBatches) CheckAndRecord(hash string) (alreadySeen bool) {
	if _, ok := s.seen[hash]; ok {
		return true
	}
	s.seen[hash] = struct{}{}
	return false
}
