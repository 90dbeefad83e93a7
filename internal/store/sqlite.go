package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/neboloop/netcapture/internal/failure"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and filesystem in package state.
var migrateMu sync.Mutex

// SQLiteStore mirrors records into a SQLite database for querying.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; the run loop is sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger = logger.With("component", "sqlite-store")
	logger.Debug("sqlite store ready", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return failure.New(failure.Persistence, "encode headers", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (run_id, captured_at, account, url, method, headers) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Account, rec.URL, rec.Method, string(headers),
	)
	if err != nil {
		return failure.New(failure.Persistence, "insert record", err)
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Account string
	Limit   int
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT run_id, captured_at, account, url, method, headers FROM records`
	args := []any{}
	if opts.Account != "" {
		query += ` WHERE account = ?`
		args = append(args, opts.Account)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Latest returns the most recent record, optionally for one account.
func (s *SQLiteStore) Latest(ctx context.Context, account string) (*Record, error) {
	recs, err := s.List(ctx, ListOptions{Account: account, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec      Record
		captured string
		headers  string
	)
	if err := rows.Scan(&rec.RunID, &captured, &rec.Account, &rec.URL, &rec.Method, &headers); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, captured)
	if err != nil {
		return Record{}, fmt.Errorf("parse captured_at %q: %w", captured, err)
	}
	rec.Timestamp = ts.Local()

	rec.Headers = map[string]string{}
	if err := json.Unmarshal([]byte(headers), &rec.Headers); err != nil {
		return Record{}, fmt.Errorf("decode headers: %w", err)
	}
	return rec, nil
}
