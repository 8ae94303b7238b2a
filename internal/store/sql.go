package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"walkerevo/internal/ga"
	"walkerevo/internal/snapshot"
)

// dialect covers the differences between the SQL backends.
type dialect struct {
	driver string
	blob   string
	real   string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
}

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists records through database/sql. Snapshots are stored as
// their JSON encoding; history rows are stored column by column.
type SQLStore struct {
	dsn     string
	dialect dialect

	mu sync.RWMutex
	db *sql.DB
}

func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return fmt.Errorf("%s dsn is required", s.dialect.driver)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return err
	}
	if s.dialect.driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := s.createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *SQLStore) createTables(ctx context.Context, db *sql.DB) error {
	d := s.dialect
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			generation INTEGER NOT NULL,
			payload ` + d.blob + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			generation INTEGER NOT NULL,
			fitness ` + d.real + ` NOT NULL,
			payload ` + d.blob + `
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			best ` + d.real + ` NOT NULL,
			average ` + d.real + ` NOT NULL,
			worst ` + d.real + ` NOT NULL,
			std_dev ` + d.real + ` NOT NULL,
			PRIMARY KEY (run_id, generation)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) SaveSnapshot(ctx context.Context, rec *SnapshotRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if err := rec.Snapshot.Validate(); err != nil {
		return err
	}
	payload, err := snapshot.Encode(rec.Snapshot)
	if err != nil {
		return err
	}
	stamp(&rec.ID, &rec.CreatedAt)

	_, err = db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO snapshots (id, run_id, created_at, generation, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			run_id = excluded.run_id,
			created_at = excluded.created_at,
			generation = excluded.generation,
			payload = excluded.payload
	`), rec.ID, rec.RunID, rec.CreatedAt.UnixNano(), rec.Snapshot.Generation, payload)
	return err
}

func (s *SQLStore) GetSnapshot(ctx context.Context, id string) (SnapshotRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return SnapshotRecord{}, err
	}
	row := db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, run_id, created_at, payload FROM snapshots WHERE id = ?`), id)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLStore) ListSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, run_id, created_at, payload FROM snapshots ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SnapshotRecord{}
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (SnapshotRecord, error) {
	var (
		rec     SnapshotRecord
		at      int64
		payload []byte
	)
	if err := sc.Scan(&rec.ID, &rec.RunID, &at, &payload); err != nil {
		return SnapshotRecord{}, err
	}
	snap, err := snapshot.Decode(payload)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("decode snapshot %s: %w", rec.ID, err)
	}
	rec.CreatedAt = time.Unix(0, at).UTC()
	rec.Snapshot = snap
	return rec, nil
}

func (s *SQLStore) AppendHistory(ctx context.Context, runID string, recs ...ga.Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	query := s.dialect.rebind(`
		INSERT INTO history (run_id, generation, best, average, worst, std_dev)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, generation) DO UPDATE SET
			best = excluded.best,
			average = excluded.average,
			worst = excluded.worst,
			std_dev = excluded.std_dev
	`)
	for _, r := range recs {
		if _, err := tx.ExecContext(ctx, query, runID, r.Generation, r.Best, r.Average, r.Worst, r.StdDev); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("history generation %d: %w", r.Generation, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) History(ctx context.Context, runID string) ([]ga.Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, s.dialect.rebind(`
		SELECT generation, best, average, worst, std_dev
		FROM history WHERE run_id = ? ORDER BY generation`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ga.Record
	for rows.Next() {
		var r ga.Record
		if err := rows.Scan(&r.Generation, &r.Best, &r.Average, &r.Worst, &r.StdDev); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLStore) SaveResult(ctx context.Context, r *Result) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	stamp(&r.ID, &r.CreatedAt)

	_, err = db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO results (id, run_id, created_at, generation, fitness, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			run_id = excluded.run_id,
			created_at = excluded.created_at,
			generation = excluded.generation,
			fitness = excluded.fitness,
			payload = excluded.payload
	`), r.ID, r.RunID, r.CreatedAt.UnixNano(), r.Generation, r.Fitness, []byte(r.Payload))
	return err
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (Result, error) {
	db, err := s.getDB()
	if err != nil {
		return Result{}, err
	}
	row := db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, run_id, created_at, generation, fitness, payload FROM results WHERE id = ?`), id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context) ([]Result, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, run_id, created_at, generation, fitness, payload FROM results ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResult(sc scanner) (Result, error) {
	var (
		r       Result
		at      int64
		payload []byte
	)
	if err := sc.Scan(&r.ID, &r.RunID, &at, &r.Generation, &r.Fitness, &payload); err != nil {
		return Result{}, err
	}
	r.CreatedAt = time.Unix(0, at).UTC()
	if len(payload) > 0 {
		r.Payload = payload
	}
	return r, nil
}
