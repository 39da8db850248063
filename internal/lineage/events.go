package lineage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mdmcore/resolve/internal/model"
)

// ErrDuplicateEvent is returned by WriteMergeEvent when the event's id
// has already been processed; the caller should treat this as a
// successful no-op.
var ErrDuplicateEvent = errors.New("lineage: event already processed")

// XrefClose identifies an open xref row to close.
type XrefClose struct {
	SourceRecordID string
	SourceSystem   string
}

// MergeWriteRequest bundles everything one atomic lineage write must
// apply together: writes of a single merge are atomic with respect to
// golden_record, xref, and merge_event.
type MergeWriteRequest struct {
	EventType         model.EventType
	Actor             string
	Timestamp         time.Time // zero means "now"
	GoldenRecords     []model.GoldenRecord
	XrefUpserts       []model.Xref
	XrefCloses        []XrefClose
	FieldHistory      []model.FieldHistoryEntry
	AffectedGoldenIDs []string
	AffectedRecordIDs []string
	BeforeState       []byte
	AfterState        []byte
	// EventID, if empty, is generated.
	EventID string
}

// WriteMergeEvent atomically applies req within a single transaction
// and returns the recorded MergeEvent. Retries on SQLite write
// conflicts via retryOnBusy.
func (s *Store) WriteMergeEvent(ctx context.Context, req MergeWriteRequest) (model.MergeEvent, error) {
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var result model.MergeEvent
	err := retryOnBusy(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("lineage: begin transaction: %w", err)
		}
		defer tx.Rollback()

		duplicate, err := alreadyProcessed(tx, req.EventID, ts)
		if err != nil {
			return err
		}
		if duplicate {
			return ErrDuplicateEvent
		}

		if err := applyGoldenRecords(tx, req.GoldenRecords); err != nil {
			return err
		}
		if err := applyXrefCloses(tx, req.XrefCloses, ts); err != nil {
			return err
		}
		if err := applyXrefUpserts(tx, req.XrefUpserts); err != nil {
			return err
		}
		if err := applyFieldHistory(tx, req.FieldHistory); err != nil {
			return err
		}

		affectedGolden, err := marshalRecordIDs(req.AffectedGoldenIDs)
		if err != nil {
			return fmt.Errorf("lineage: marshal affected golden ids: %w", err)
		}
		affectedRecords, err := marshalRecordIDs(req.AffectedRecordIDs)
		if err != nil {
			return fmt.Errorf("lineage: marshal affected record ids: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO merge_event (event_id, event_type, timestamp, actor, affected_golden_ids, affected_record_ids, before_state, after_state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			req.EventID, string(req.EventType), ts.Format(time.RFC3339), req.Actor,
			affectedGolden, affectedRecords, string(req.BeforeState), string(req.AfterState))
		if err != nil {
			return fmt.Errorf("lineage: insert merge_event: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("lineage: commit: %w", err)
		}

		result = model.MergeEvent{
			EventID:           req.EventID,
			EventType:         req.EventType,
			Timestamp:         ts,
			Actor:             req.Actor,
			AffectedGoldenIDs: req.AffectedGoldenIDs,
			AffectedRecordIDs: req.AffectedRecordIDs,
			BeforeState:       req.BeforeState,
			AfterState:        req.AfterState,
		}
		return nil
	})

	if err != nil {
		return model.MergeEvent{}, err
	}
	return result, nil
}

func applyGoldenRecords(tx *sql.Tx, records []model.GoldenRecord) error {
	for _, gr := range records {
		attrs, err := marshalAttributes(gr.Attributes)
		if err != nil {
			return fmt.Errorf("lineage: marshal golden record %s attributes: %w", gr.GoldenID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO golden_record (golden_id, attributes, cluster_id, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(golden_id) DO UPDATE SET
				attributes = excluded.attributes,
				cluster_id = excluded.cluster_id,
				version = excluded.version,
				updated_at = excluded.updated_at`,
			gr.GoldenID, attrs, gr.ClusterID, gr.Version,
			gr.CreatedAt.Format(time.RFC3339), gr.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("lineage: upsert golden_record %s: %w", gr.GoldenID, err)
		}
	}
	return nil
}

func applyXrefCloses(tx *sql.Tx, closes []XrefClose, ts time.Time) error {
	for _, c := range closes {
		_, err := tx.Exec(`
			UPDATE xref SET valid_to = ?
			WHERE source_record_id = ? AND source_system = ? AND valid_to IS NULL`,
			ts.Format(time.RFC3339), c.SourceRecordID, c.SourceSystem)
		if err != nil {
			return fmt.Errorf("lineage: close xref for %s/%s: %w", c.SourceRecordID, c.SourceSystem, err)
		}
	}
	return nil
}

func applyXrefUpserts(tx *sql.Tx, upserts []model.Xref) error {
	for _, x := range upserts {
		var validTo any
		if !x.ValidTo.IsZero() {
			validTo = x.ValidTo.Format(time.RFC3339)
		}
		// valid_from has one-second resolution: a row opened earlier in the
		// same second shares the primary key and is replaced.
		_, err := tx.Exec(`
			INSERT INTO xref (source_record_id, source_system, golden_id, valid_from, valid_to, confidence)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_record_id, source_system, valid_from) DO UPDATE SET
				golden_id = excluded.golden_id,
				valid_to = excluded.valid_to,
				confidence = excluded.confidence`,
			x.SourceRecordID, x.SourceSystem, x.GoldenID, x.ValidFrom.Format(time.RFC3339), validTo, x.Confidence)
		if err != nil {
			return fmt.Errorf("lineage: insert xref for %s/%s: %w", x.SourceRecordID, x.SourceSystem, err)
		}
	}
	return nil
}

func applyFieldHistory(tx *sql.Tx, entries []model.FieldHistoryEntry) error {
	for _, e := range entries {
		attrJSON, err := marshalAttributes(model.Attributes{e.Field: e.Value})
		if err != nil {
			return fmt.Errorf("lineage: marshal field history value: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO field_history (golden_id, field, value, source_record, source_system, observed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.GoldenID, e.Field, attrJSON, e.SourceRecord, e.SourceSystem, e.ObservedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("lineage: insert field_history: %w", err)
		}
	}
	return nil
}
