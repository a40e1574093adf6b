// Package storage persists reconciler state in SQLite: the Splitter expenses already
// considered and a journal of correlations between ledger rows and mirrors.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"splitsync/internal/log"

	_ "modernc.org/sqlite"
)

// Outcomes recorded for processed Splitter expenses.
const (
	OutcomeSeeded        = "seeded"
	OutcomeImported      = "imported"
	OutcomeOwnExpense    = "skipped_own"
	OutcomeReimbursement = "skipped_reimbursement"
	OutcomeNoShare       = "skipped_no_share"
	OutcomeFailed        = "failed"
)

// Correlation states.
const (
	StateDerived      = "derived"
	StateMirrored     = "mirrored"
	StateMirrorFailed = "mirror_failed"
	StateUpdated      = "updated"
	StateLocked       = "locked"
	StateDeleted      = "deleted"
)

// ProcessedExpense is one considered Splitter expense.
type ProcessedExpense struct {
	ExpenseID   string
	Outcome     string
	ProcessedAt time.Time
}

// Correlation is the journal row for one original transaction. Empty DerivedID or
// ExternalID values never overwrite known ones.
type Correlation struct {
	OriginalID string
	DerivedID  string
	ExternalID string
	State      string
	LastError  string
	UpdatedAt  time.Time
}

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer; the scheduler serializes cycles anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("State store ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, logger: logger, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MarkProcessed records expenseID. The first outcome recorded for an id is kept.
func (r *SQLiteRepository) MarkProcessed(ctx context.Context, expenseID, outcome string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_expenses (expense_id, outcome, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(expense_id) DO NOTHING
	`, expenseID, outcome, r.timestamp())
	if err != nil {
		return fmt.Errorf("mark expense %s processed: %w", expenseID, err)
	}
	return nil
}

// SetOutcome replaces the recorded outcome of an already processed expense.
func (r *SQLiteRepository) SetOutcome(ctx context.Context, expenseID, outcome string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE processed_expenses SET outcome = ? WHERE expense_id = ?
	`, outcome, expenseID)
	if err != nil {
		return fmt.Errorf("set outcome of expense %s: %w", expenseID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set outcome of expense %s: not processed", expenseID)
	}
	return nil
}

// ProcessedIDs returns every processed expense id.
func (r *SQLiteRepository) ProcessedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT expense_id FROM processed_expenses`)
	if err != nil {
		return nil, fmt.Errorf("list processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListProcessed returns the most recently processed expenses, newest first. A
// non-positive limit returns all of them.
func (r *SQLiteRepository) ListProcessed(ctx context.Context, limit int) ([]ProcessedExpense, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT expense_id, outcome, processed_at
		FROM processed_expenses
		ORDER BY processed_at DESC, expense_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list processed expenses: %w", err)
	}
	defer rows.Close()

	var out []ProcessedExpense
	for rows.Next() {
		var p ProcessedExpense
		var at string
		if err := rows.Scan(&p.ExpenseID, &p.Outcome, &at); err != nil {
			return nil, fmt.Errorf("scan processed expense: %w", err)
		}
		p.ProcessedAt = parseTimestamp(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProcessed returns the number of processed expenses.
func (r *SQLiteRepository) CountProcessed(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_expenses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count processed expenses: %w", err)
	}
	return n, nil
}

// RecordCorrelation upserts the journal row for c.OriginalID.
func (r *SQLiteRepository) RecordCorrelation(ctx context.Context, c Correlation) error {
	if c.OriginalID == "" {
		return errors.New("record correlation: empty original id")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO correlations (original_id, derived_id, external_id, state, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(original_id) DO UPDATE SET
			derived_id = COALESCE(NULLIF(excluded.derived_id, ''), correlations.derived_id),
			external_id = COALESCE(NULLIF(excluded.external_id, ''), correlations.external_id),
			state = excluded.state,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, c.OriginalID, c.DerivedID, c.ExternalID, c.State, c.LastError, r.timestamp())
	if err != nil {
		return fmt.Errorf("record correlation for %s: %w", c.OriginalID, err)
	}
	return nil
}

// Correlation returns the journal row for originalID, or nil.
func (r *SQLiteRepository) Correlation(ctx context.Context, originalID string) (*Correlation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT original_id, derived_id, external_id, state, last_error, updated_at
		FROM correlations
		WHERE original_id = ?
	`, originalID)
	c, err := scanCorrelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get correlation for %s: %w", originalID, err)
	}
	return &c, nil
}

// ListCorrelations returns journal rows in the given state, or all rows when state
// is empty, most recently updated first.
func (r *SQLiteRepository) ListCorrelations(ctx context.Context, state string) ([]Correlation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT original_id, derived_id, external_id, state, last_error, updated_at
		FROM correlations
		WHERE ? = '' OR state = ?
		ORDER BY updated_at DESC, original_id
	`, state, state)
	if err != nil {
		return nil, fmt.Errorf("list correlations: %w", err)
	}
	defer rows.Close()

	var out []Correlation
	for rows.Next() {
		c, err := scanCorrelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCorrelation(s scanner) (Correlation, error) {
	var c Correlation
	var at string
	if err := s.Scan(&c.OriginalID, &c.DerivedID, &c.ExternalID, &c.State, &c.LastError, &at); err != nil {
		return Correlation{}, err
	}
	c.UpdatedAt = parseTimestamp(at)
	return c, nil
}
