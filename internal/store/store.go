// Package store persists snapshots, fitness history and run results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"walkerevo/internal/ga"
	"walkerevo/internal/snapshot"
)

// ErrNotFound is returned when no record has the requested ID.
var ErrNotFound = errors.New("store: not found")

var errNotInitialized = errors.New("store: not initialized")

// SnapshotRecord is a stored population snapshot.
type SnapshotRecord struct {
	ID        string            `json:"id"`
	RunID     string            `json:"runId,omitempty"`
	CreatedAt time.Time         `json:"timestamp"`
	Snapshot  snapshot.Snapshot `json:"snapshot"`
}

// Result is a stored run outcome. Payload keeps whatever the producer sent
// beyond the fitness.
type Result struct {
	ID         string          `json:"id"`
	RunID      string          `json:"runId,omitempty"`
	CreatedAt  time.Time       `json:"timestamp"`
	Generation int             `json:"generation"`
	Fitness    float64         `json:"fitness"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Store defines persistence for snapshots, history rows and results.
// Saving a record with an existing ID replaces it.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, rec *SnapshotRecord) error
	GetSnapshot(ctx context.Context, id string) (SnapshotRecord, error)
	ListSnapshots(ctx context.Context) ([]SnapshotRecord, error)
	AppendHistory(ctx context.Context, runID string, recs ...ga.Record) error
	History(ctx context.Context, runID string) ([]ga.Record, error)
	SaveResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, id string) (Result, error)
	ListResults(ctx context.Context) ([]Result, error)
	Close() error
}

// NewStore opens the backend named by kind. dsn is a file path for sqlite
// and a connection string for postgres; memory ignores it.
func NewStore(kind, dsn string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn), nil
	case "postgres":
		return NewPostgresStore(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// Open creates and initializes a store.
func Open(ctx context.Context, kind, dsn string) (Store, error) {
	s, err := NewStore(kind, dsn)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("init %s store: %w", kind, err)
	}
	return s, nil
}

// stamp fills a missing ID and creation time.
func stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = time.Now().UTC()
	}
}
