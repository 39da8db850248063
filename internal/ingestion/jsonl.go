package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/model"
)

var log = logging.GetLogger("ingestion")

// jsonlRecord is the on-disk shape one line of a JSONL source decodes
// into, read with a bufio scanner sized for long lines.
type jsonlRecord struct {
	RecordID        string                 `json:"record_id"`
	SourceID        string                 `json:"source_id"`
	Attributes      map[string]interface{} `json:"attributes"`
	SourceTimestamp string                 `json:"source_timestamp"`
}

// JSONLIterator reads newline-delimited JSON records from an
// io.Reader, yielding them in fixed-size batches.
type JSONLIterator struct {
	scanner   *bufio.Scanner
	batchSize int
	validator Validator
	deadLetter DeadLetterSink
	exhausted bool
}

// NewJSONLIterator wraps r as a batching Iterator. validator and
// deadLetter may be nil to skip validation.
func NewJSONLIterator(r io.Reader, batchSize int, validator Validator, deadLetter DeadLetterSink) *JSONLIterator {
	if batchSize <= 0 {
		batchSize = 500
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	return &JSONLIterator{scanner: scanner, batchSize: batchSize, validator: validator, deadLetter: deadLetter}
}

// NextBatch returns up to batchSize parsed records, or ErrEndOfInput
// once the source is drained.
func (it *JSONLIterator) NextBatch(ctx context.Context) ([]model.Record, error) {
	if it.exhausted {
		return nil, ErrEndOfInput
	}

	var batch []model.Record
	for len(batch) < it.batchSize && it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw jsonlRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			log.Warn("skipping unparseable ingestion line", "error", err)
			continue
		}

		rec, err := raw.toRecord()
		if err != nil {
			it.routeDeadLetter(ctx, model.Record{RecordID: raw.RecordID, SourceID: raw.SourceID}, err)
			continue
		}

		if it.validator != nil {
			if verr := it.validator(rec); verr != nil {
				it.routeDeadLetter(ctx, rec, verr)
				continue
			}
		}

		batch = append(batch, rec)
	}

	if err := it.scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingestion: scan error: %w", err)
	}

	if len(batch) < it.batchSize {
		it.exhausted = true
	}
	if len(batch) == 0 {
		return nil, ErrEndOfInput
	}
	return batch, nil
}

func (it *JSONLIterator) routeDeadLetter(ctx context.Context, rec model.Record, cause error) {
	log.Warn("routing record to dead letter", "record_id", rec.RecordID, "error", cause)
	if it.deadLetter == nil {
		return
	}
	if err := it.deadLetter.Route(ctx, DeadLetter{Record: rec, Reason: ValidationErrorReason, Detail: cause.Error()}); err != nil {
		log.Error("dead letter routing failed", "record_id", rec.RecordID, "error", err)
	}
}

func (raw jsonlRecord) toRecord() (model.Record, error) {
	if raw.RecordID == "" {
		return model.Record{}, fmt.Errorf("ingestion: missing record_id")
	}
	attrs := make(model.Attributes, len(raw.Attributes))
	for k, v := range raw.Attributes {
		attrs[k] = jsonAnyToValue(v)
	}

	var ts time.Time
	if raw.SourceTimestamp != "" {
		parsed, err := time.Parse(time.RFC3339, raw.SourceTimestamp)
		if err != nil {
			return model.Record{}, fmt.Errorf("ingestion: invalid source_timestamp: %w", err)
		}
		ts = parsed
	}

	return model.Record{
		RecordID:        raw.RecordID,
		SourceID:        raw.SourceID,
		Attributes:      attrs,
		IngestTime:      time.Now().UTC(),
		SourceTimestamp: ts,
	}, nil
}

func jsonAnyToValue(v interface{}) model.Value {
	switch t := v.(type) {
	case nil:
		return model.Null
	case string:
		return model.StringValue(t)
	case float64:
		return model.NumberValue(t)
	case bool:
		return model.BoolValue(t)
	case map[string]interface{}:
		out := make(map[string]model.Value, len(t))
		for k, mv := range t {
			out[k] = jsonAnyToValue(mv)
		}
		return model.MapValue(out)
	case []interface{}:
		out := make([]model.Value, len(t))
		for i, sv := range t {
			out[i] = jsonAnyToValue(sv)
		}
		return model.SliceValue(out)
	default:
		return model.Null
	}
}
