package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mdmcore/resolve/internal/clustering"
	"github.com/mdmcore/resolve/internal/lineage"
	"github.com/mdmcore/resolve/internal/model"
)

// commitClusters runs the Survivor over each cluster and atomically
// writes the resulting golden record, xrefs, and merge event to the
// Lineage Store. It decides CREATE/UPDATE/MERGE/SPLIT per cluster from
// the existing xref state rather than from in-memory prior membership,
// so the decision is correct for both full-rebuild and incremental
// modes. claimed tracks, across the whole batch, which prior golden
// ids have already been reused by an earlier cluster in this call: a
// full rebuild recomputes clusters from scratch, so a previously
// merged golden record's members can land in more than one new
// cluster — only the first cluster to reach a given prior golden id
// keeps it, every later one mints a fresh id and records a SPLIT.
// Incremental mode never triggers this, since BuildIncremental's
// union-find seeding keeps every prior cluster's members together.
func (p *Pipeline) commitClusters(ctx context.Context, clusters []clustering.Cluster, byID map[string]*model.NormalizedRecord, actor string, now time.Time) (int, error) {
	written := 0
	claimed := make(map[string]bool)
	for _, c := range clusters {
		members := make([]*model.NormalizedRecord, 0, len(c.Members))
		for _, id := range c.Members {
			if nr, ok := byID[id]; ok {
				members = append(members, nr)
			}
		}
		if len(members) == 0 {
			continue
		}

		if err := p.commitCluster(ctx, members, actor, now, claimed); err != nil {
			return written, fmt.Errorf("cluster rooted at %s: %w", c.Root, err)
		}
		written++
	}
	return written, nil
}

func (p *Pipeline) commitCluster(ctx context.Context, members []*model.NormalizedRecord, actor string, now time.Time, claimed map[string]bool) error {
	existingXrefByMember, err := p.existingState(ctx, members)
	if err != nil {
		return err
	}

	goldenID, survivorPrior, beforeState, closes, eventType, err := p.resolveGoldenID(ctx, existingXrefByMember, claimed)
	if err != nil {
		return err
	}
	claimed[goldenID] = true

	golden, err := p.stages.survivor.Survive(members, goldenID, clusterID(members), now)
	if err != nil {
		return fmt.Errorf("survivorship: %w", err)
	}
	if survivorPrior != nil {
		golden.Version = survivorPrior.Version + 1
		golden.CreatedAt = survivorPrior.CreatedAt
	}

	xrefUpserts := make([]model.Xref, 0, len(members))
	fieldHistory := make([]model.FieldHistoryEntry, 0, len(members)*len(golden.Attributes))
	affectedRecordIDs := make([]string, 0, len(members))
	for _, m := range members {
		xrefUpserts = append(xrefUpserts, model.Xref{
			SourceRecordID: m.RecordID,
			SourceSystem:   m.SourceID,
			GoldenID:       goldenID,
			ValidFrom:      now,
			Confidence:     m.Trust.Overall,
		})
		affectedRecordIDs = append(affectedRecordIDs, m.RecordID)
		for field, value := range golden.Attributes {
			fieldHistory = append(fieldHistory, model.FieldHistoryEntry{
				GoldenID:     goldenID,
				Field:        field,
				Value:        value,
				SourceRecord: m.RecordID,
				SourceSystem: m.SourceID,
				ObservedAt:   now,
			})
		}
	}

	_, err = p.store.WriteMergeEvent(ctx, lineage.MergeWriteRequest{
		EventType:         eventType,
		Actor:             actor,
		Timestamp:         now,
		GoldenRecords:     []model.GoldenRecord{*golden},
		XrefUpserts:       xrefUpserts,
		XrefCloses:        closes,
		FieldHistory:      fieldHistory,
		AffectedGoldenIDs: []string{goldenID},
		AffectedRecordIDs: affectedRecordIDs,
		BeforeState:       beforeState,
	})
	if err != nil {
		return fmt.Errorf("write merge event: %w", err)
	}
	return nil
}

// existingState looks up, for each member, any currently-open xref,
// returning the per-member xref rows found.
func (p *Pipeline) existingState(ctx context.Context, members []*model.NormalizedRecord) (map[string]model.Xref, error) {
	byMember := make(map[string]model.Xref)
	for _, m := range members {
		x, err := p.store.OpenXrefFor(ctx, m.RecordID, m.SourceID)
		if err != nil {
			return nil, fmt.Errorf("lookup existing xref for %s: %w", m.RecordID, err)
		}
		if x == nil {
			continue
		}
		byMember[m.RecordID] = *x
	}
	return byMember, nil
}

func distinctGoldenIDs(xrefByMember map[string]model.Xref) map[string]struct{} {
	out := make(map[string]struct{}, len(xrefByMember))
	for _, x := range xrefByMember {
		out[x.GoldenID] = struct{}{}
	}
	return out
}

// resolveGoldenID decides which golden id a cluster commits under and
// which event type that represents: a fresh id (CREATE) when there is
// none prior, the sole existing id (UPDATE) when exactly one prior
// golden record feeds the cluster, or the earliest-created survivor
// among several (MERGE) when two or more golden records merge.
//
// claimed records every prior golden id already reused by an earlier
// cluster this batch. When every prior golden id feeding this cluster
// is already claimed, none of them is available to reuse — this
// cluster is the remainder of a golden record that a rebuild split
// across multiple new clusters, so it mints a fresh id and records a
// SPLIT against the first-claimed origin's live state rather than
// reusing or double-claiming an id another cluster already committed
// under this batch.
//
// It also returns the surviving golden record's prior state (for
// Version/CreatedAt carry-forward), the BeforeState snapshot needed for
// rollback, and the XrefCloses for any losing golden ids.
func (p *Pipeline) resolveGoldenID(ctx context.Context, existingXrefByMember map[string]model.Xref, claimed map[string]bool) (string, *model.GoldenRecord, []byte, []lineage.XrefClose, model.EventType, error) {
	distinct := distinctGoldenIDs(existingXrefByMember)
	if len(distinct) == 0 {
		return uuid.NewString(), nil, nil, nil, model.EventCreate, nil
	}

	ids := make([]string, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Every member with an existing open xref gets it closed here,
	// including members already open on the chosen survivor:
	// commitCluster always inserts a fresh open xref per member below,
	// and xref's open-row index is not unique, so a member left
	// un-closed would end up with two current xrefs.
	priorXrefRows := make([]model.Xref, 0, len(existingXrefByMember))
	closes := make([]lineage.XrefClose, 0, len(existingXrefByMember))
	for _, x := range existingXrefByMember {
		priorXrefRows = append(priorXrefRows, x)
		closes = append(closes, lineage.XrefClose{SourceRecordID: x.SourceRecordID, SourceSystem: x.SourceSystem})
	}

	available := make([]string, 0, len(ids))
	for _, id := range ids {
		if !claimed[id] {
			available = append(available, id)
		}
	}

	if len(available) == 0 {
		origin, err := p.store.GetGoldenRecord(ctx, ids[0])
		if err != nil {
			return "", nil, nil, nil, "", err
		}
		beforeState, err := lineage.BuildBeforeState([]model.GoldenRecord{*origin}, priorXrefRows)
		if err != nil {
			return "", nil, nil, nil, "", err
		}
		return uuid.NewString(), nil, beforeState, closes, model.EventSplit, nil
	}

	priorGoldenRecords := make([]model.GoldenRecord, 0, len(available))
	for _, id := range available {
		gr, err := p.store.GetGoldenRecord(ctx, id)
		if err != nil {
			return "", nil, nil, nil, "", err
		}
		priorGoldenRecords = append(priorGoldenRecords, *gr)
	}
	sort.Slice(priorGoldenRecords, func(i, j int) bool {
		if !priorGoldenRecords[i].CreatedAt.Equal(priorGoldenRecords[j].CreatedAt) {
			return priorGoldenRecords[i].CreatedAt.Before(priorGoldenRecords[j].CreatedAt)
		}
		return priorGoldenRecords[i].GoldenID < priorGoldenRecords[j].GoldenID
	})
	survivor := priorGoldenRecords[0]

	eventType := model.EventUpdate
	if len(priorGoldenRecords) > 1 {
		eventType = model.EventMerge
	}

	beforeState, err := lineage.BuildBeforeState(priorGoldenRecords, priorXrefRows)
	if err != nil {
		return "", nil, nil, nil, "", err
	}
	return survivor.GoldenID, &survivor, beforeState, closes, eventType, nil
}

func clusterID(members []*model.NormalizedRecord) string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.RecordID
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return uuid.NewString()
	}
	return ids[0]
}
