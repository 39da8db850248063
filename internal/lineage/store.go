// Package lineage implements the Lineage Store: the atomic,
// append-only record of golden records, cross-references, and merge
// events. Physical schema is SQLite (single-writer WAL connection,
// mutex-guarded), with idempotency-key deduplication and per-event
// atomic transactions grounded on
// other_examples/2bbecf5f_correlator..._lineage_store.go.
package lineage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/model"
)

var log = logging.GetLogger("lineage")

// cleanupBatchSize bounds how many expired idempotency keys are
// deleted per sweep, avoiding a long-running lock on a large backlog.
const cleanupBatchSize = 5000

// batchSleepDuration is the pause between cleanup batches.
const batchSleepDuration = 100 * time.Millisecond

// idempotencyTTL is how long an event id is remembered for dedup
// purposes before it is eligible for cleanup.
const idempotencyTTL = 24 * time.Hour

// Store is the SQLite-backed Lineage Store.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

// Open opens (creating if necessary) the lineage database at path and
// initializes its schema.
func Open(path string) (*Store, error) {
	log.Info("opening lineage store", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("lineage: create directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("lineage: open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("lineage: ping database: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("lineage: begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return fmt.Errorf("lineage: create schema: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("lineage: record schema version: %w", err)
	}
	return tx.Commit()
}

// Ping verifies the underlying database connection is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops any running cleanup goroutine and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.cleanupStop != nil {
			close(s.cleanupStop)
			<-s.cleanupDone
		}
	})
	return s.db.Close()
}

// StartCleanup launches a background goroutine that periodically
// deletes idempotency keys older than idempotencyTTL, batched to avoid
// holding long locks (grounded on the correlator lineage store's
// runCleanup/cleanupExpiredIdempotencyKeys pattern).
func (s *Store) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	s.cleanupInterval = interval
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})
	go s.runCleanup()
}

func (s *Store) runCleanup() {
	defer close(s.cleanupDone)
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.cleanupStop:
			return
		case <-ticker.C:
			if err := s.cleanupExpiredIdempotencyKeys(context.Background()); err != nil {
				log.Warn("idempotency cleanup failed", "error", err)
			}
		}
	}
}

func (s *Store) cleanupExpiredIdempotencyKeys(ctx context.Context) error {
	cutoff := time.Now().Add(-idempotencyTTL).UTC().Format(time.RFC3339)
	for {
		s.mu.Lock()
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM idempotency_key WHERE event_id IN (
				SELECT event_id FROM idempotency_key WHERE recorded_at < ? LIMIT ?
			)`, cutoff, cleanupBatchSize)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("lineage: cleanup sweep: %w", err)
		}
		n, _ := res.RowsAffected()
		if n < cleanupBatchSize {
			return nil
		}
		time.Sleep(batchSleepDuration)
	}
}

// alreadyProcessed reports whether eventID has already been recorded,
// and if not, reserves it within the same transaction (caller must be
// inside tx).
func alreadyProcessed(tx *sql.Tx, eventID string, now time.Time) (bool, error) {
	var existing string
	err := tx.QueryRow(`SELECT event_id FROM idempotency_key WHERE event_id = ?`, eventID).Scan(&existing)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("lineage: idempotency check: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO idempotency_key (event_id, recorded_at) VALUES (?, ?)`,
		eventID, now.UTC().Format(time.RFC3339)); err != nil {
		return false, fmt.Errorf("lineage: reserve idempotency key: %w", err)
	}
	return false, nil
}

func marshalRecordIDs(ids []string) (string, error) {
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalRecordIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func marshalAttributes(attrs model.Attributes) (string, error) {
	plain := make(map[string]any, len(attrs))
	for k, v := range attrs {
		plain[k] = valueToJSON(v)
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func valueToJSON(v model.Value) any {
	switch v.Kind {
	case model.KindNull:
		return nil
	case model.KindString:
		return v.Str
	case model.KindNumber:
		return v.Num
	case model.KindBool:
		return v.Bool
	case model.KindDate, model.KindTimestamp:
		return v.Time.Format(time.RFC3339)
	case model.KindMap:
		out := make(map[string]any, len(v.Map))
		for k, mv := range v.Map {
			out[k] = valueToJSON(mv)
		}
		return out
	case model.KindSlice:
		out := make([]any, len(v.Slice))
		for i, sv := range v.Slice {
			out[i] = valueToJSON(sv)
		}
		return out
	default:
		return nil
	}
}
