// Package runstore provides the sqlite-backed run store.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dispatchlab/fieldops/core/runstore"
)

// SQLiteStore persists run records in a SQLite database. The run summary
// fields used for filtering live in dedicated columns; the full record is
// a JSON blob.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS optimization_runs (
        id TEXT PRIMARY KEY,
        tenant TEXT,
        ts INTEGER,
        status TEXT,
        input_hash TEXT,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts the record, replacing any previous row of the same run id.
func (s *SQLiteStore) Save(ctx context.Context, rec runstore.Record) error {
	if rec.Run.ID == "" {
		return fmt.Errorf("save run: id is required")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimization_runs (id, tenant, ts, status, input_hash, record)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            tenant = excluded.tenant,
            ts = excluded.ts,
            status = excluded.status,
            input_hash = excluded.input_hash,
            record = excluded.record`,
		rec.Run.ID, rec.Run.TenantID, rec.Run.StartedAt.Unix(), string(rec.Run.Status), rec.Run.InputHash, string(b))
	return err
}

// Get returns the record of the given run id.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (runstore.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM optimization_runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return runstore.Record{}, fmt.Errorf("run %s: %w", runID, runstore.ErrNotFound)
	}
	if err != nil {
		return runstore.Record{}, err
	}
	var rec runstore.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return runstore.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// List returns matching records ordered by start time, then run id.
func (s *SQLiteStore) List(ctx context.Context, q runstore.Query) ([]runstore.Record, error) {
	var args []any
	query := `SELECT record FROM optimization_runs WHERE 1=1`
	if q.TenantID != "" {
		query += ` AND tenant = ?`
		args = append(args, q.TenantID)
	}
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.Unix())
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	query += ` ORDER BY ts, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []runstore.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec runstore.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// PurgeBefore deletes records of runs started before the cutoff.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM optimization_runs WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
