// Package sqlite provides a SQLite-backed persistent store that mirrors
// the in-memory semantics while snapshotting state after every successful
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"scancore/internal/infra/persistence/memory"
	"scancore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON
// blobs, one bucket per entity kind plus the id sequence.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "scancore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketCandidates         = "candidates"
	bucketScanners           = "scanners"
	bucketScanTypes          = "scan_types"
	bucketArchives           = "archives"
	bucketSessions           = "sessions"
	bucketRules              = "classification_rules"
	bucketChecks             = "validation_checks"
	bucketCheckViolations    = "check_violations"
	bucketProtocolViolations = "protocol_violations"
	bucketSequence           = "sequence"
)

var buckets = []string{
	bucketCandidates, bucketScanners, bucketScanTypes, bucketArchives,
	bucketSessions, bucketRules, bucketChecks, bucketCheckViolations,
	bucketProtocolViolations, bucketSequence,
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		loaded = true
		var dest any
		switch bucket {
		case bucketCandidates:
			dest = &snapshot.Candidates
		case bucketScanners:
			dest = &snapshot.Scanners
		case bucketScanTypes:
			dest = &snapshot.ScanTypes
		case bucketArchives:
			dest = &snapshot.Archives
		case bucketSessions:
			dest = &snapshot.Sessions
		case bucketRules:
			dest = &snapshot.Rules
		case bucketChecks:
			dest = &snapshot.Checks
		case bucketCheckViolations:
			dest = &snapshot.CheckViolations
		case bucketProtocolViolations:
			dest = &snapshot.ProtocolViolations
		case bucketSequence:
			dest = &snapshot.Sequence
		default:
			continue
		}
		if err := json.Unmarshal(payload, dest); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if loaded {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case bucketCandidates:
			data, err = json.Marshal(snapshot.Candidates)
		case bucketScanners:
			data, err = json.Marshal(snapshot.Scanners)
		case bucketScanTypes:
			data, err = json.Marshal(snapshot.ScanTypes)
		case bucketArchives:
			data, err = json.Marshal(snapshot.Archives)
		case bucketSessions:
			data, err = json.Marshal(snapshot.Sessions)
		case bucketRules:
			data, err = json.Marshal(snapshot.Rules)
		case bucketChecks:
			data, err = json.Marshal(snapshot.Checks)
		case bucketCheckViolations:
			data, err = json.Marshal(snapshot.CheckViolations)
		case bucketProtocolViolations:
			data, err = json.Marshal(snapshot.ProtocolViolations)
		case bucketSequence:
			data, err = json.Marshal(snapshot.Sequence)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction,
// then snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
