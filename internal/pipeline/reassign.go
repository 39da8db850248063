package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mdmcore/resolve/internal/lineage"
	"github.com/mdmcore/resolve/internal/model"
)

// Link manually moves a source record's current xref onto
// targetGoldenID, for a steward correcting a match the automated
// pipeline got wrong without waiting for the next batch to re-cluster
// it. It closes whatever xref is currently open for the record (if
// any) and opens a new one onto target, recorded as a single LINK
// event so Rollback can undo a bad manual correction the same way it
// undoes an automated MERGE.
func (p *Pipeline) Link(ctx context.Context, sourceRecordID, sourceSystem, targetGoldenID, actor string) error {
	if targetGoldenID == "" {
		return fmt.Errorf("pipeline: link requires a target golden id")
	}
	if _, err := p.store.GetGoldenRecord(ctx, targetGoldenID); err != nil {
		return fmt.Errorf("pipeline: lookup target golden record %s: %w", targetGoldenID, err)
	}

	prior, err := p.store.OpenXrefFor(ctx, sourceRecordID, sourceSystem)
	if err != nil {
		return fmt.Errorf("pipeline: lookup current xref: %w", err)
	}
	if prior != nil && prior.GoldenID == targetGoldenID {
		return nil
	}

	var priorXrefRows []model.Xref
	var closes []lineage.XrefClose
	if prior != nil {
		priorXrefRows = []model.Xref{*prior}
		closes = []lineage.XrefClose{{SourceRecordID: prior.SourceRecordID, SourceSystem: prior.SourceSystem}}
	}
	beforeState, err := lineage.BuildBeforeState(nil, priorXrefRows)
	if err != nil {
		return fmt.Errorf("pipeline: build before state: %w", err)
	}

	now := time.Now().UTC()
	affected := []string{targetGoldenID}
	if prior != nil && prior.GoldenID != targetGoldenID {
		affected = append(affected, prior.GoldenID)
	}

	_, err = p.store.WriteMergeEvent(ctx, lineage.MergeWriteRequest{
		EventType:  model.EventLink,
		Actor:      actor,
		Timestamp:  now,
		XrefCloses: closes,
		XrefUpserts: []model.Xref{{
			SourceRecordID: sourceRecordID,
			SourceSystem:   sourceSystem,
			GoldenID:       targetGoldenID,
			ValidFrom:      now,
			Confidence:     1.0,
		}},
		AffectedGoldenIDs: affected,
		AffectedRecordIDs: []string{sourceRecordID},
		BeforeState:       beforeState,
	})
	if err != nil {
		return fmt.Errorf("pipeline: write link event: %w", err)
	}
	return nil
}

// Unlink manually detaches a source record from whichever golden
// record it is currently open against, leaving it unmatched until the
// next batch re-clusters it. It is the inverse of Link: a pure close
// with no corresponding open, recorded as an UNLINK event.
func (p *Pipeline) Unlink(ctx context.Context, sourceRecordID, sourceSystem, actor string) error {
	prior, err := p.store.OpenXrefFor(ctx, sourceRecordID, sourceSystem)
	if err != nil {
		return fmt.Errorf("pipeline: lookup current xref: %w", err)
	}
	if prior == nil {
		return nil
	}

	beforeState, err := lineage.BuildBeforeState(nil, []model.Xref{*prior})
	if err != nil {
		return fmt.Errorf("pipeline: build before state: %w", err)
	}

	_, err = p.store.WriteMergeEvent(ctx, lineage.MergeWriteRequest{
		EventType: model.EventUnlink,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		XrefCloses: []lineage.XrefClose{
			{SourceRecordID: prior.SourceRecordID, SourceSystem: prior.SourceSystem},
		},
		AffectedGoldenIDs: []string{prior.GoldenID},
		AffectedRecordIDs: []string{sourceRecordID},
		BeforeState:       beforeState,
	})
	if err != nil {
		return fmt.Errorf("pipeline: write unlink event: %w", err)
	}
	return nil
}
