// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/pulse/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is RFC 3339 with a fixed-width fraction so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for heart-rate history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS heart_rate_records (
			id TEXT PRIMARY KEY,
			bpm INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			mode TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_heart_rate_records_recorded_at ON heart_rate_records(recorded_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save stores a finalized record.
func (s *Store) Save(ctx context.Context, rec model.HeartRateRecord) error {
	if rec.ID == "" {
		return errors.New("record has no id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heart_rate_records (id, bpm, recorded_at, mode) VALUES (?, ?, ?, ?)`,
		rec.ID,
		rec.BPM,
		rec.RecordedAt.UTC().Format(timeLayout),
		string(rec.Mode),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func filterClauses(filter model.RecordFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Mode != "" {
		clauses = append(clauses, "mode = ?")
		args = append(args, string(filter.Mode))
	}
	if filter.Since != nil {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	return strings.Join(clauses, " AND "), args
}

// ListRecords returns records matching filter, oldest first. Last keeps only the
// most recent N.
func (s *Store) ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.HeartRateRecord, error) {
	where, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT id, bpm, recorded_at, mode
		FROM heart_rate_records
		WHERE %s
		ORDER BY recorded_at DESC`, where)
	if filter.Last > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Last)
	}
	query = fmt.Sprintf(`SELECT id, bpm, recorded_at, mode FROM (%s) ORDER BY recorded_at ASC`, query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.HeartRateRecord
	for rows.Next() {
		var rec model.HeartRateRecord
		var recordedAt, mode string
		if err := rows.Scan(&rec.ID, &rec.BPM, &recordedAt, &mode); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, err
		}
		rec.RecordedAt = parsed
		rec.Mode = model.Mode(mode)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Average returns the integer mean BPM and the record count over matching records.
func (s *Store) Average(ctx context.Context, filter model.RecordFilter) (avg, count int, err error) {
	where, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT COALESCE(SUM(bpm), 0), COUNT(*) FROM heart_rate_records WHERE %s`, where)
	var sum int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum, &count); err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	return sum / count, count, nil
}

// DeleteRecords removes records by id and reports how many were deleted.
func (s *Store) DeleteRecords(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM heart_rate_records WHERE id IN (%s)`, strings.Join(placeholders, ","))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	return res.RowsAffected()
}
