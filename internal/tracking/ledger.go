//go:build cgo

package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lonelymovie/lonelymovie/internal/util"
)

// IsCgoEnabled indicates whether the SQLite ledger is available
const IsCgoEnabled = true

/*
────────────────────────────────────────────────────────────────────────────*
│  Connection settings                                                       │
*────────────────────────────────────────────────────────────────────────────
*/
const (
	defaultCacheSize  = -4000 // 4MB
	busyTimeout       = 5000  // ms
	walAutoCheckpoint = 1000  // pages
	maxOpenConns      = 4
	maxIdleConns      = 2
)

// Ledger stores per-source outcome counters
type Ledger struct {
	db       *sql.DB
	upsertPS *sql.Stmt
	getPS    *sql.Stmt
	allPS    *sql.Stmt
	resetPS  *sql.Stmt
}

// Open creates or opens the ledger database at dbPath
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	path := dbPath
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(dbPath, "\\", "/")
	}
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&_busy_timeout=%d&_cache_size=%d",
		path, walAutoCheckpoint, busyTimeout, defaultCacheSize,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	l := &Ledger{db: db}
	if err := l.prepare(); err != nil {
		_ = l.Close()
		return nil, err
	}
	util.Debug("Source health ledger opened", "path", dbPath)
	return l, nil
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Schema                                                                    │
*────────────────────────────────────────────────────────────────────────────
*/
func initializeDatabase(db *sql.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS source_health (
		source_id    TEXT    PRIMARY KEY,
		attempts     INTEGER NOT NULL DEFAULT 0 CHECK(attempts >= 0),
		successes    INTEGER NOT NULL DEFAULT 0,
		no_stream    INTEGER NOT NULL DEFAULT 0,
		failures     INTEGER NOT NULL DEFAULT 0,
		last_success INTEGER NOT NULL DEFAULT 0,
		last_failure TEXT    NOT NULL DEFAULT '',
		updated_at   INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	if _, err := db.Exec(`PRAGMA optimize`); err != nil {
		return fmt.Errorf("initial optimization failed: %w", err)
	}
	return nil
}

func (l *Ledger) prepare() error {
	var err error
	l.upsertPS, err = l.db.Prepare(`INSERT INTO source_health (
		source_id, attempts, successes, no_stream, failures, last_success, last_failure, updated_at
	) VALUES (?, 1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_id) DO UPDATE SET
		attempts     = attempts + 1,
		successes    = successes + excluded.successes,
		no_stream    = no_stream + excluded.no_stream,
		failures     = failures + excluded.failures,
		last_success = CASE WHEN excluded.last_success > 0 THEN excluded.last_success ELSE last_success END,
		last_failure = CASE WHEN excluded.last_failure <> '' THEN excluded.last_failure ELSE last_failure END,
		updated_at   = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("upsert preparation failed: %w", err)
	}

	const columns = `source_id, attempts, successes, no_stream, failures, last_success, last_failure, updated_at`
	l.getPS, err = l.db.Prepare(`SELECT ` + columns + ` FROM source_health WHERE source_id = ?`)
	if err != nil {
		return fmt.Errorf("get preparation failed: %w", err)
	}
	l.allPS, err = l.db.Prepare(`SELECT ` + columns + ` FROM source_health ORDER BY source_id`)
	if err != nil {
		return fmt.Errorf("all preparation failed: %w", err)
	}
	l.resetPS, err = l.db.Prepare(`DELETE FROM source_health WHERE source_id = ?`)
	if err != nil {
		return fmt.Errorf("reset preparation failed: %w", err)
	}
	return nil
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Operations                                                                │
*────────────────────────────────────────────────────────────────────────────
*/

// Record adds one outcome for source
func (l *Ledger) Record(ctx context.Context, source string, res Result, reason string, at time.Time) error {
	if l == nil || l.upsertPS == nil {
		return ErrLedgerNotOpened
	}
	var success, none, failure, lastSuccess int64
	switch res {
	case ResultSuccess:
		success, lastSuccess = 1, at.UnixMilli()
	case ResultNoStream:
		none = 1
	default:
		failure = 1
	}
	_, err := l.upsertPS.ExecContext(ctx, source, success, none, failure, lastSuccess, reason, at.UnixMilli())
	return err
}

// Get returns the record for source, or nil when none exists
func (l *Ledger) Get(ctx context.Context, source string) (*SourceHealth, error) {
	if l == nil || l.getPS == nil {
		return nil, ErrLedgerNotOpened
	}
	h, err := scanHealth(l.getPS.QueryRowContext(ctx, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return h, nil
}

// All returns every record ordered by source id
func (l *Ledger) All(ctx context.Context) ([]SourceHealth, error) {
	if l == nil || l.allPS == nil {
		return nil, ErrLedgerNotOpened
	}
	rows, err := l.allPS.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []SourceHealth
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		list = append(list, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return list, nil
}

// Reset forgets a source's history
func (l *Ledger) Reset(ctx context.Context, source string) error {
	if l == nil || l.resetPS == nil {
		return ErrLedgerNotOpened
	}
	_, err := l.resetPS.ExecContext(ctx, source)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHealth(s scanner) (*SourceHealth, error) {
	var h SourceHealth
	var lastSuccess, updated int64
	if err := s.Scan(&h.SourceID, &h.Attempts, &h.Successes, &h.NoStream, &h.Failures,
		&lastSuccess, &h.LastFailure, &updated); err != nil {
		return nil, err
	}
	if lastSuccess > 0 {
		h.LastSuccess = time.UnixMilli(lastSuccess)
	}
	h.UpdatedAt = time.UnixMilli(updated)
	return &h, nil
}

// Close releases the statements and the database
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	var finalErr error
	for name, stmt := range map[string]*sql.Stmt{
		"upsert": l.upsertPS, "get": l.getPS, "all": l.allPS, "reset": l.resetPS,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			finalErr = fmt.Errorf("%s statement close error: %w", name, err)
		}
	}
	if err := l.db.Close(); err != nil {
		finalErr = fmt.Errorf("database close error: %w", err)
	}
	return finalErr
}
