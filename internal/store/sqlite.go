package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"agentwatch/internal/types"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS test_reports (
	id          TEXT PRIMARY KEY,
	agent_id    TEXT NOT NULL,
	test_type   TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	success     INTEGER,
	details     TEXT
);
CREATE INDEX IF NOT EXISTS idx_test_reports_agent ON test_reports (agent_id, started_at DESC);
`

// SQLiteStore is a Store backed by a local SQLite file
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	closed atomic.Bool
}

// NewSQLiteStore opens or creates the database at path
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := ensureDBDir(path); err != nil {
			return nil, wrap("open", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", addSQLiteParams(path))
	if err != nil {
		return nil, wrap("open", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.Named("store"),
	}

	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, wrap("init", err)
	}

	return s, nil
}

// init applies pragmas and creates the schema
func (s *SQLiteStore) init(ctx context.Context) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"cache_size", "-2000"},
		{"temp_store", "MEMORY"},
		{"busy_timeout", "5000"},
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to set %s: %w", pragma.name, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveReport inserts or replaces a report
func (s *SQLiteStore) SaveReport(ctx context.Context, report *types.TestReport) error {
	if s.closed.Load() {
		return wrap("save", ErrClosed)
	}
	if report == nil || report.ID == "" {
		return wrap("save", fmt.Errorf("report id is required"))
	}

	details, err := json.Marshal(report.Details)
	if err != nil {
		return wrap("save", fmt.Errorf("failed to marshal details: %w", err))
	}

	var success sql.NullBool
	if report.Success != nil {
		success = sql.NullBool{Bool: *report.Success, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO test_reports
			(id, agent_id, test_type, started_at, duration_ms, success, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.AgentID, report.TestType,
		report.StartedAt.UnixMilli(), report.DurationMs, success, string(details))
	if err != nil {
		return wrap("save", err)
	}

	s.logger.Debug("Saved test report",
		zap.String("id", report.ID),
		zap.String("agent_id", report.AgentID),
		zap.String("test_type", report.TestType))
	return nil
}

// ListReports returns the newest reports for agentID first. Details are
// returned as raw JSON.
func (s *SQLiteStore) ListReports(ctx context.Context, agentID string, limit int) ([]*types.TestReport, error) {
	if s.closed.Load() {
		return nil, wrap("list", ErrClosed)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, test_type, started_at, duration_ms, success, details
		 FROM test_reports WHERE agent_id = ?
		 ORDER BY started_at DESC, id DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer func() { _ = rows.Close() }()

	reports := make([]*types.TestReport, 0)
	for rows.Next() {
		var (
			r         types.TestReport
			startedAt int64
			success   sql.NullBool
			details   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.AgentID, &r.TestType, &startedAt, &r.DurationMs, &success, &details); err != nil {
			return nil, wrap("list", err)
		}
		r.StartedAt = time.UnixMilli(startedAt)
		if success.Valid {
			v := success.Bool
			r.Success = &v
		}
		if details.Valid && details.String != "" && details.String != "null" {
			r.Details = json.RawMessage(details.String)
		}
		reports = append(reports, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list", err)
	}
	return reports, nil
}

// Prune deletes reports started before the given time
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, wrap("prune", ErrClosed)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM test_reports WHERE started_at < ?", before.UnixMilli())
	if err != nil {
		return 0, wrap("prune", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, wrap("prune", fmt.Errorf("failed to get affected rows: %w", err))
	}
	if affected > 0 {
		s.logger.Info("Pruned test reports", zap.Int64("deleted", affected))
	}
	return affected, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return wrap("close", s.db.Close())
}

// ensureDBDir ensures database directory exists
func ensureDBDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// addSQLiteParams adds SQLite specific connection parameters
func addSQLiteParams(dsn string) string {
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
		"_foreign_keys=1",
	}

	query := "?" + strings.Join(params, "&")
	if strings.Contains(dsn, "?") {
		query = "&" + strings.Join(params, "&")
	}

	return dsn + query
}
