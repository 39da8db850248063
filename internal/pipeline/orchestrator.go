// Package pipeline implements the Pipeline Orchestrator: it drives
// ingested records through preprocessing, trust scoring, blocking,
// matching, clustering, survivorship, and lineage commit, in both
// full-rebuild and incremental micro-batch modes with bounded
// single-process parallelism.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mdmcore/resolve/internal/clustering"
	"github.com/mdmcore/resolve/internal/comparators"
	"github.com/mdmcore/resolve/internal/ingestion"
	"github.com/mdmcore/resolve/internal/lineage"
	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/metrics"
	"github.com/mdmcore/resolve/internal/model"
	"github.com/mdmcore/resolve/internal/preprocess"
)

var log = logging.GetLogger("pipeline")

// Mode selects how the Pipeline reconciles a batch against existing
// lineage state.
type Mode string

const (
	// ModeFullRebuild recomputes clusters from scratch over the entire
	// input, without seeding prior cluster membership. The lineage commit
	// still reuses golden ids from members' open xrefs and records SPLIT
	// when a prior golden record's members land in several clusters.
	ModeFullRebuild Mode = "full_rebuild"
	// ModeIncremental folds a new batch into existing clusters,
	// producing CREATE/UPDATE/MERGE events.
	ModeIncremental Mode = "incremental"
)

// BatchResult summarizes one ProcessBatch call.
type BatchResult struct {
	RecordsIngested int
	DeadLettered    int
	PairsEvaluated  int
	ClustersBuilt   int
	EventsWritten   int
	Demoted         []model.CandidatePair
	Duration        time.Duration
}

// Pipeline orchestrates one entity type's full resolution flow.
type Pipeline struct {
	cfg    Config
	stages *stages
	store  *lineage.Store
	sink   metrics.Sink
	dead   ingestion.DeadLetterSink
	seen   *ingestion.SeenBatches
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetricsSink overrides the default no-op metrics sink.
func WithMetricsSink(sink metrics.Sink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithDeadLetterSink overrides the default in-memory dead-letter sink.
func WithDeadLetterSink(sink ingestion.DeadLetterSink) Option {
	return func(p *Pipeline) { p.dead = sink }
}

// New builds a Pipeline for one entity type. store is the Lineage
// Store the orchestrator commits merges to.
func New(cfg Config, cmpReg *comparators.Registry, store *lineage.Store, opts ...Option) (*Pipeline, error) {
	st, err := buildStages(cfg, cmpReg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		stages: st,
		store:  store,
		sink:   metrics.NoopSink{},
		dead:   &ingestion.MemoryDeadLetterSink{},
		seen:   ingestion.NewSeenBatches(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ProcessBatch runs one batch of raw records through the full
// resolution flow in the given Mode, committing the resulting golden
// records, xrefs, and merge events to the Lineage Store.
func (p *Pipeline) ProcessBatch(ctx context.Context, raw []model.Record, mode Mode, validator ingestion.Validator, actor string) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{RecordsIngested: len(raw)}

	hash := ingestion.BatchHash(raw)
	if p.seen.CheckAndRecord(hash) {
		log.Info("batch already processed, skipping", "hash", hash, "entity", p.cfg.EntityName)
		result.Duration = time.Since(start)
		return result, nil
	}

	valid := p.validate(ctx, raw, validator, result)
	p.sink.IncrCounter("pipeline.records_ingested", float64(len(raw)), map[string]string{"entity": p.cfg.EntityName})
	p.sink.IncrCounter("pipeline.records_dead_lettered", float64(result.DeadLettered), map[string]string{"entity": p.cfg.EntityName})

	normalized, err := p.preprocessAndScore(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("pipeline: preprocess stage: %w", err)
	}

	if err := p.store.UpsertNormalizedRecords(ctx, normalized); err != nil {
		return nil, fmt.Errorf("pipeline: persist normalized records: %w", err)
	}

	batchIDs := make(map[string]struct{}, len(normalized))
	for _, r := range normalized {
		batchIDs[r.RecordID] = struct{}{}
	}

	// blockingSet is what the Blocker and Match Engine see. In
	// incremental mode it is the new batch plus every previously
	// ingested record's persisted normalized form, so a brand-new
	// record can be compared against an existing member that this
	// batch never re-ingested — without this, cross-batch matches are
	// invisible to blocking no matter how the union-find is seeded.
	blockingSet := normalized
	if mode == ModeIncremental {
		existing, err := p.store.LoadNormalizedRecordsExcept(ctx, batchIDs)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load existing records for cross-batch blocking: %w", err)
		}
		blockingSet = make([]*model.NormalizedRecord, 0, len(normalized)+len(existing))
		blockingSet = append(blockingSet, normalized...)
		blockingSet = append(blockingSet, existing...)
	}

	pairs, err := p.stages.blocker.GeneratePairs(ctx, blockingSet)
	if err != nil {
		return nil, fmt.Errorf("pipeline: blocking stage: %w", err)
	}
	result.PairsEvaluated = len(pairs)
	p.sink.ObserveHistogram("pipeline.pairs_evaluated", float64(len(pairs)), map[string]string{"entity": p.cfg.EntityName})

	byID := make(map[string]*model.NormalizedRecord, len(blockingSet))
	for _, r := range blockingSet {
		byID[r.RecordID] = r
	}

	decisions, err := p.evaluatePairs(ctx, pairs, byID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: matching stage: %w", err)
	}

	now := time.Now().UTC()
	var buildResult *clustering.BuildResult
	switch mode {
	case ModeIncremental:
		prior, err := p.priorClusters(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load prior clusters: %w", err)
		}
		buildResult, err = p.stages.builder.BuildIncremental(prior, decisions)
		if err != nil {
			return nil, fmt.Errorf("pipeline: cluster build: %w", err)
		}
	default:
		buildResult = p.stages.builder.Build(decisions)
	}

	// Only clusters touching a record from this batch are committed;
	// blockingSet may carry in clusters made entirely of untouched
	// pre-existing records purely so they could be compared against,
	// and those must not be rewritten on every later batch.
	touched := filterClustersTouchingBatch(buildResult.Clusters, batchIDs)

	result.ClustersBuilt = len(touched)
	result.Demoted = buildResult.Demoted
	p.sink.SetGauge("pipeline.clusters_built", float64(len(touched)), map[string]string{"entity": p.cfg.EntityName})
	if len(buildResult.Demoted) > 0 {
		p.sink.IncrCounter("pipeline.transitivity_demotions", float64(len(buildResult.Demoted)), map[string]string{"entity": p.cfg.EntityName})
	}

	written, err := p.commitClusters(ctx, touched, byID, actor, now)
	if err != nil {
		return nil, fmt.Errorf("pipeline: lineage commit: %w", err)
	}
	result.EventsWritten = written

	result.Duration = time.Since(start)
	log.Info("batch processed", "entity", p.cfg.EntityName, "mode", mode, "records", result.RecordsIngested,
		"clusters", result.ClustersBuilt, "events", result.EventsWritten, "duration", result.Duration)
	return result, nil
}

// validate runs the configured Validator over raw records, routing
// failures to the dead-letter sink and aggregating validation errors
// via multierr without aborting the batch: a per-record failure is
// dead-lettered, never fatal to the batch.
func (p *Pipeline) validate(ctx context.Context, raw []model.Record, validator ingestion.Validator, result *BatchResult) []model.Record {
	if validator == nil {
		return raw
	}

	var errs error
	valid := make([]model.Record, 0, len(raw))
	for _, rec := range raw {
		if err := validator(rec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record %s: %w", rec.RecordID, err))
			result.DeadLettered++
			if routeErr := p.dead.Route(ctx, ingestion.DeadLetter{Record: rec, Reason: ingestion.ValidationErrorReason, Detail: err.Error()}); routeErr != nil {
				log.Error("dead letter routing failed", "record_id", rec.RecordID, "error", routeErr)
			}
			continue
		}
		valid = append(valid, rec)
	}
	if errs != nil {
		log.Warn("batch validation errors", "entity", p.cfg.EntityName, "count", result.DeadLettered, "errors", errs)
	}
	return valid
}

// preprocessAndScore normalizes every record's configured fields and
// attaches a trust score, in parallel across p.cfg.Workers goroutines.
func (p *Pipeline) preprocessAndScore(ctx context.Context, records []model.Record) ([]*model.NormalizedRecord, error) {
	out := make([]*model.NormalizedRecord, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerLimit())

	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			normAttrs, err := preprocess.Normalize(p.stages.preReg, rec.Attributes, p.cfg.PreprocessSteps)
			if err != nil {
				return fmt.Errorf("record %s: %w", rec.RecordID, err)
			}

			nr := &model.NormalizedRecord{Record: rec, Normalized: normAttrs}
			nr.Trust = p.stages.scorer.Score(nr, time.Now().UTC())
			out[i] = nr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// evaluatePairs runs the Match Engine over every candidate pair in
// parallel, collecting MatchDecisions. A per-pair comparator failure is
// logged and scored 0 by the Engine itself (never fatal); only a
// structural error aborts the stage.
func (p *Pipeline) evaluatePairs(ctx context.Context, pairs []model.CandidatePair, byID map[string]*model.NormalizedRecord) ([]model.MatchDecision, error) {
	decisions := make([]model.MatchDecision, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerLimit())

	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			left, lok := byID[pair.A]
			right, rok := byID[pair.B]
			if !lok || !rok {
				return fmt.Errorf("pipeline: pair references unknown record (%s, %s)", pair.A, pair.B)
			}
			decision, err := p.stages.engine.Decide(gctx, pair, left, right)
			if err != nil {
				return fmt.Errorf("pipeline: decide pair (%s, %s): %w", pair.A, pair.B, err)
			}
			decisions[i] = *decision
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func (p *Pipeline) workerLimit() int {
	if p.cfg.Workers > 0 {
		return p.cfg.Workers
	}
	return 1
}

// priorClusters loads the existing cluster membership (by golden id)
// for every record in the batch that already has an open xref, seeding
// BuildIncremental.
func (p *Pipeline) priorClusters(ctx context.Context, records []*model.NormalizedRecord) (map[string][]string, error) {
	prior := make(map[string][]string)
	for _, r := range records {
		related, err := p.store.RelatedEntities(ctx, r.RecordID, time.Time{})
		if err != nil {
			return nil, err
		}
		for _, x := range related {
			prior[x.GoldenID] = appendUnique(prior[x.GoldenID], x.SourceRecordID)
		}
	}
	return prior, nil
}

// filterClustersTouchingBatch keeps only clusters with at least one
// member in batchIDs, dropping pre-existing clusters that were only
// co-ingested for comparison and were not actually affected by this
// batch.
func filterClustersTouchingBatch(clusters []clustering.Cluster, batchIDs map[string]struct{}) []clustering.Cluster {
	out := make([]clustering.Cluster, 0, len(clusters))
	for _, c := range clusters {
		for _, m := range c.Members {
			if _, ok := batchIDs[m]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
