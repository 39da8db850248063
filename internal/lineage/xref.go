package lineage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

// GetGoldenRecord fetches a golden record by id.
func (s *Store) GetGoldenRecord(ctx context.Context, goldenID string) (*model.GoldenRecord, error) {
	s.mu.Lock()
	row := s.db.QueryRowContext(ctx, `
		SELECT golden_id, attributes, cluster_id, version, created_at, updated_at
		FROM golden_record WHERE golden_id = ?`, goldenID)
	var gr model.GoldenRecord
	var attrsRaw, createdAt, updatedAt string
	err := row.Scan(&gr.GoldenID, &attrsRaw, &gr.ClusterID, &gr.Version, &createdAt, &updatedAt)
	s.mu.Unlock()
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lineage: golden record %q not found", goldenID)
	}
	if err != nil {
		return nil, fmt.Errorf("lineage: get golden record: %w", err)
	}

	gr.Attributes, err = unmarshalAttributes(attrsRaw)
	if err != nil {
		return nil, fmt.Errorf("lineage: unmarshal attributes: %w", err)
	}
	gr.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	gr.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &gr, nil
}

// OpenXrefFor returns the currently-open xref for a source record, if
// any.
func (s *Store) OpenXrefFor(ctx context.Context, sourceRecordID, sourceSystem string) (*model.Xref, error) {
	s.mu.Lock()
	row := s.db.QueryRowContext(ctx, `
		SELECT source_record_id, source_system, golden_id, valid_from, confidence
		FROM xref
		WHERE source_record_id = ? AND source_system = ? AND valid_to IS NULL`,
		sourceRecordID, sourceSystem)
	var x model.Xref
	var validFrom string
	err := row.Scan(&x.SourceRecordID, &x.SourceSystem, &x.GoldenID, &validFrom, &x.Confidence)
	s.mu.Unlock()
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lineage: open xref lookup: %w", err)
	}
	x.ValidFrom, _ = time.Parse(time.RFC3339, validFrom)
	return &x, nil
}

// RelatedEntities traverses the xref table to find every source record
// currently mapped to the same golden record as sourceRecordID, as of
// atTime (zero means now). This is the related_entities(id, at_time)
// graph query over the xref relation; it takes no relation-type
// argument. An id with no xref valid at atTime yields nil, nil.
func (s *Store) RelatedEntities(ctx context.Context, sourceRecordID string, atTime time.Time) ([]model.Xref, error) {
	if atTime.IsZero() {
		atTime = time.Now().UTC()
	}
	asOf := atTime.Format(time.RFC3339)

	s.mu.Lock()
	var goldenID string
	err := s.db.QueryRowContext(ctx, `
		SELECT golden_id FROM xref
		WHERE source_record_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from DESC LIMIT 1`, sourceRecordID, asOf, asOf).Scan(&goldenID)
	if err == sql.ErrNoRows {
		s.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("lineage: related_entities: resolve golden id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_record_id, source_system, golden_id, valid_from, valid_to, confidence
		FROM xref
		WHERE golden_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`,
		goldenID, asOf, asOf)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("lineage: related_entities: query siblings: %w", err)
	}
	defer rows.Close()

	var out []model.Xref
	for rows.Next() {
		var x model.Xref
		var validFrom string
		var validTo sql.NullString
		if err := rows.Scan(&x.SourceRecordID, &x.SourceSystem, &x.GoldenID, &validFrom, &validTo, &x.Confidence); err != nil {
			return nil, fmt.Errorf("lineage: related_entities: scan: %w", err)
		}
		x.ValidFrom, _ = time.Parse(time.RFC3339, validFrom)
		if validTo.Valid {
			x.ValidTo, _ = time.Parse(time.RFC3339, validTo.String)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// eventsFrom returns the merge_event rows committed at or after
// fromEventID (by rowid), newest first, so Rollback can replay their
// before_states in reverse commit order.
func (s *Store) eventsFrom(ctx context.Context, fromEventID string) ([]storedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fromRowID int64
	err := s.db.QueryRowContext(ctx, `SELECT rowid FROM merge_event WHERE event_id = ?`, fromEventID).Scan(&fromRowID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lineage: event %q not found", fromEventID)
	}
	if err != nil {
		return nil, fmt.Errorf("lineage: rollback: locate event: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, event_id, before_state FROM merge_event WHERE rowid >= ? ORDER BY rowid DESC`, fromRowID)
	if err != nil {
		return nil, fmt.Errorf("lineage: rollback: list events: %w", err)
	}
	defer rows.Close()

	var out []storedEvent
	for rows.Next() {
		var e storedEvent
		if err := rows.Scan(&e.rowID, &e.eventID, &e.beforeState); err != nil {
			return nil, fmt.Errorf("lineage: rollback: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type storedEvent struct {
	rowID       int64
	eventID     string
	beforeState string
}

// rollbackSnapshot is the shape stored in merge_event.before_state,
// sufficient to restore the golden_record and xref rows it touched.
type rollbackSnapshot struct {
	GoldenRecords []model.GoldenRecord `json:"golden_records"`
	XrefRows      []model.Xref         `json:"xref_rows"`
}

// BuildBeforeState marshals the pre-change golden records and xref rows
// a caller is about to overwrite into the BeforeState payload
// WriteMergeEvent expects, so that a later Rollback can restore them.
// The orchestrator calls this before applying a merge, using whatever
// it read via GetGoldenRecord/OpenXrefFor moments earlier.
func BuildBeforeState(goldenRecords []model.GoldenRecord, xrefRows []model.Xref) ([]byte, error) {
	snap := rollbackSnapshot{GoldenRecords: goldenRecords, XrefRows: xrefRows}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("lineage: marshal before_state: %w", err)
	}
	return data, nil
}

// Rollback restores state to immediately before toEventID by replaying
// events in reverse commit order and applying each one's before_state:
// applying events E, E+1, ..., N in reverse restores the exact prior
// state. Rollback is idempotent: replaying an already-restored
// before_state is a pure overwrite.
func (s *Store) Rollback(ctx context.Context, toEventID string) error {
	events, err := s.eventsFrom(ctx, toEventID)
	if err != nil {
		return err
	}

	return retryOnBusy(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("lineage: rollback: begin transaction: %w", err)
		}
		defer tx.Rollback()

		for _, e := range events {
			if e.beforeState == "" {
				continue
			}
			var snap rollbackSnapshot
			if err := json.Unmarshal([]byte(e.beforeState), &snap); err != nil {
				return fmt.Errorf("lineage: rollback: decode before_state for %s: %w", e.eventID, err)
			}
			if err := applyGoldenRecords(tx, snap.GoldenRecords); err != nil {
				return err
			}
			if err := restoreXrefRows(tx, snap.XrefRows); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM merge_event WHERE rowid = ?`, e.rowID); err != nil {
				return fmt.Errorf("lineage: rollback: remove event %s: %w", e.eventID, err)
			}
		}

		return tx.Commit()
	})
}

func restoreXrefRows(tx *sql.Tx, rows []model.Xref) error {
	for _, x := range rows {
		var validTo any
		if !x.ValidTo.IsZero() {
			validTo = x.ValidTo.Format(time.RFC3339)
		}
		_, err := tx.Exec(`
			INSERT INTO xref (source_record_id, source_system, golden_id, valid_from, valid_to, confidence)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_record_id, source_system, valid_from) DO UPDATE SET
				golden_id = excluded.golden_id,
				valid_to = excluded.valid_to,
				confidence = excluded.confidence`,
			x.SourceRecordID, x.SourceSystem, x.GoldenID, x.ValidFrom.Format(time.RFC3339), validTo, x.Confidence)
		if err != nil {
			return fmt.Errorf("lineage: rollback: restore xref %s/%s: %w", x.SourceRecordID, x.SourceSystem, err)
		}
	}
	return nil
}

func unmarshalAttributes(raw string) (model.Attributes, error) {
	var plain map[string]any
	if err := json.Unmarshal([]byte(raw), &plain); err != nil {
		return nil, err
	}
	attrs := make(model.Attributes, len(plain))
	for k, v := range plain {
		attrs[k] = jsonToValue(v)
	}
	return attrs, nil
}

func jsonToValue(v any) model.Value {
	switch t := v.(type) {
	case nil:
		return model.Null
	case string:
		return model.StringValue(t)
	case float64:
		return model.NumberValue(t)
	case bool:
		return model.BoolValue(t)
	case map[string]any:
		out := make(map[string]model.Value, len(t))
		for k, mv := range t {
			out[k] = jsonToValue(mv)
		}
		return model.MapValue(out)
	case []any:
		out := make([]model.Value, len(t))
		for i, sv := range t {
			out[i] = jsonToValue(sv)
		}
		return model.SliceValue(out)
	default:
		return model.Null
	}
}
