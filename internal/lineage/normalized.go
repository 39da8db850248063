package lineage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

// UpsertNormalizedRecords persists the normalized form of each record
// (raw attributes, preprocessed values, per-field embeddings, and
// trust score) so a later incremental batch can load it back in as a
// blocking/matching candidate even when the batch that originally
// ingested it is long gone.
func (s *Store) UpsertNormalizedRecords(ctx context.Context, records []*model.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return retryOnBusy(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("lineage: begin normalized_record transaction: %w", err)
		}
		defer tx.Rollback()

		for _, r := range records {
			attrs, err := marshalAttributes(r.Record.Attributes)
			if err != nil {
				return fmt.Errorf("lineage: marshal attributes for %s: %w", r.RecordID, err)
			}
			norm, err := marshalAttributes(r.Normalized)
			if err != nil {
				return fmt.Errorf("lineage: marshal normalized attributes for %s: %w", r.RecordID, err)
			}
			embeddings, err := json.Marshal(r.Embeddings)
			if err != nil {
				return fmt.Errorf("lineage: marshal embeddings for %s: %w", r.RecordID, err)
			}
			trust, err := json.Marshal(r.Trust)
			if err != nil {
				return fmt.Errorf("lineage: marshal trust for %s: %w", r.RecordID, err)
			}

			_, err = tx.Exec(`
				INSERT INTO normalized_record (record_id, source_id, attributes, normalized, embeddings, trust, ingest_time, source_timestamp, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(record_id) DO UPDATE SET
					source_id = excluded.source_id,
					attributes = excluded.attributes,
					normalized = excluded.normalized,
					embeddings = excluded.embeddings,
					trust = excluded.trust,
					ingest_time = excluded.ingest_time,
					source_timestamp = excluded.source_timestamp,
					updated_at = excluded.updated_at`,
				r.RecordID, r.SourceID, attrs, norm, string(embeddings), string(trust),
				r.IngestTime.Format(time.RFC3339), r.SourceTimestamp.Format(time.RFC3339), now)
			if err != nil {
				return fmt.Errorf("lineage: upsert normalized_record %s: %w", r.RecordID, err)
			}
		}
		return tx.Commit()
	})
}

// LoadNormalizedRecordsExcept returns the persisted normalized form of
// every record not in exclude. The Pipeline Orchestrator uses this to
// co-ingest already-known records into blocking and matching for an
// incremental batch, so a new record can be compared against an
// existing member the batch itself never re-ingested.
func (s *Store) LoadNormalizedRecordsExcept(ctx context.Context, exclude map[string]struct{}) ([]*model.NormalizedRecord, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, source_id, attributes, normalized, embeddings, trust, ingest_time, source_timestamp
		FROM normalized_record`)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("lineage: load normalized records: %w", err)
	}
	defer rows.Close()

	var out []*model.NormalizedRecord
	for rows.Next() {
		var recordID, sourceID, attrsRaw, normRaw, embeddingsRaw, trustRaw, ingestTime, sourceTimestamp string
		if err := rows.Scan(&recordID, &sourceID, &attrsRaw, &normRaw, &embeddingsRaw, &trustRaw, &ingestTime, &sourceTimestamp); err != nil {
			return nil, fmt.Errorf("lineage: scan normalized record: %w", err)
		}
		if _, skip := exclude[recordID]; skip {
			continue
		}

		attrs, err := unmarshalAttributes(attrsRaw)
		if err != nil {
			return nil, fmt.Errorf("lineage: unmarshal attributes for %s: %w", recordID, err)
		}
		norm, err := unmarshalAttributes(normRaw)
		if err != nil {
			return nil, fmt.Errorf("lineage: unmarshal normalized attributes for %s: %w", recordID, err)
		}
		var embeddings map[string][]float32
		if embeddingsRaw != "" && embeddingsRaw != "null" {
			if err := json.Unmarshal([]byte(embeddingsRaw), &embeddings); err != nil {
				return nil, fmt.Errorf("lineage: unmarshal embeddings for %s: %w", recordID, err)
			}
		}
		var trust model.TrustScore
		if trustRaw != "" {
			if err := json.Unmarshal([]byte(trustRaw), &trust); err != nil {
				return nil, fmt.Errorf("lineage: unmarshal trust for %s: %w", recordID, err)
			}
		}

		nr := &model.NormalizedRecord{
			Record: model.Record{
				RecordID:   recordID,
				SourceID:   sourceID,
				Attributes: attrs,
			},
			Normalized: norm,
			Embeddings: embeddings,
			Trust:      trust,
		}
		if t, err := time.Parse(time.RFC3339, ingestTime); err == nil {
			nr.IngestTime = t
		}
		if t, err := time.Parse(time.RFC3339, sourceTimestamp); err == nil {
			nr.SourceTimestamp = t
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}
