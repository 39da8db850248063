package model

import "time"

// Record is an immutable source record as ingested. RecordID is globally
// unique; SourceID identifies the originating system. Records are never
// mutated after creation.
type Record struct {
	RecordID        string
	SourceID        string
	Attributes      Attributes
	IngestTime      time.Time
	SourceTimestamp time.Time
}

// NormalizedRecord is a Record plus cached normalized values and optional
// per-field embedding vectors. Derived; never mutated after creation.
type NormalizedRecord struct {
	Record

	// Normalized holds the preprocessed value for every field that has a
	// configured preprocessing pipeline. Fields absent here fall back to
	// Record.Attributes at comparison time.
	Normalized Attributes

	// Embeddings holds a pre-computed vector per field that has an
	// embedding configured, keyed by field name. Absent entries mean no
	// embedding was available for that field on this record.
	Embeddings map[string][]float32

	// Trust is attached by the Trust Scorer before matching.
	// Zero value means not yet scored.
	Trust TrustScore
}

// Value returns the best available value for a field: the normalized
// value if one exists, otherwise the raw attribute.
func (n *NormalizedRecord) Value(field string) (Value, bool) {
	if v, ok := n.Normalized[field]; ok {
		return v, true
	}
	v, ok := n.Record.Attributes[field]
	return v, ok
}

// BlockKey is a canonical string a record occupies in the Blocker's index.
// A record may occupy many block keys simultaneously.
type BlockKey string

// CandidatePair is an unordered pair of record ids with a < b
// (lexicographic), generated once per unique pair regardless of how many
// blocks co-locate them.
type CandidatePair struct {
	A string
	B string
}

// NewCandidatePair builds a CandidatePair with canonical ordering.
func NewCandidatePair(x, y string) CandidatePair {
	if x <= y {
		return CandidatePair{A: x, B: y}
	}
	return CandidatePair{A: y, B: x}
}

// Verdict is the outcome of a MatchDecision.
type Verdict string

const (
	VerdictMatch    Verdict = "MATCH"
	VerdictReview   Verdict = "REVIEW"
	VerdictNoMatch  Verdict = "NO_MATCH"
)

// MatchDecision records the outcome of comparing a CandidatePair.
type MatchDecision struct {
	Pair          CandidatePair
	OverallScore  float64
	PerFieldScore map[string]float64
	Verdict       Verdict
	RuleID        string
}

// TrustScore summarizes a record's reliability. Each component is in
// [0,1].
type TrustScore struct {
	RecordID          string
	SourceReliability float64
	Completeness      float64
	Timeliness        float64
	Validity          float64
	Overall           float64
}

// Provenance names the record, source, and survivorship rule that
// produced a single golden-record attribute value.
type Provenance struct {
	RecordID string
	SourceID string
	Rule     string
}

// GoldenRecord is the merged representative for a Cluster.
type GoldenRecord struct {
	GoldenID   string
	Attributes Attributes
	Provenance map[string]Provenance
	ClusterID  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// Xref is a directed, bidirectional mapping between a source record and a
// golden record, valid over [ValidFrom, ValidTo). ValidTo.IsZero() means
// the xref is currently open (still current).
type Xref struct {
	SourceRecordID string
	SourceSystem   string
	GoldenID       string
	ValidFrom      time.Time
	ValidTo        time.Time
	Confidence     float64
}

// Open reports whether the xref is currently valid (no close time set).
func (x Xref) Open() bool { return x.ValidTo.IsZero() }

// EventType enumerates MergeEvent kinds.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventUpdate EventType = "UPDATE"
	EventMerge  EventType = "MERGE"
	EventSplit  EventType = "SPLIT"
	EventLink   EventType = "LINK"
	EventUnlink EventType = "UNLINK"
)

// MergeEvent is an append-only record of a state transition, carrying a
// reversible payload sufficient to undo it.
type MergeEvent struct {
	EventID           string
	EventType         EventType
	Timestamp         time.Time
	Actor             string
	AffectedGoldenIDs []string
	AffectedRecordIDs []string
	BeforeState       []byte // JSON snapshot sufficient to restore prior state
	AfterState        []byte // JSON snapshot of the resulting state
}

// FieldHistoryEntry records one observed value contributing to a golden
// record's field_history log.
type FieldHistoryEntry struct {
	GoldenID     string
	Field        string
	Value        Value
	SourceRecord string
	SourceSystem string
	ObservedAt   time.Time
}
