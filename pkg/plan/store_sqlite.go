package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists plans in SQLite. The action list, configs,
// previews and outcomes are kept as one structured JSON document per
// plan so the full audit history is reconstructable without
// recomputation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and runs its migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		proposed_by TEXT NOT NULL DEFAULT '',
		proposed_at DATETIME,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		doc JSON NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
	CREATE INDEX IF NOT EXISTS idx_plans_subject ON plans(subject_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, p *Plan) error {
	p.Version = 1
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, subject_id, status, version, proposed_by, proposed_at, cancellation_reason, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SubjectID, string(p.Status), p.Version, p.ProposedBy, p.ProposedAt,
		p.CancellationReason, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc, version FROM plans WHERE id = ?`, id)
	return scanPlan(row, id)
}

func (s *SQLiteStore) Update(ctx context.Context, p *Plan) error {
	expected := p.Version
	p.Version++
	doc, err := json.Marshal(p)
	if err != nil {
		p.Version = expected
		return fmt.Errorf("marshal plan: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET subject_id = ?, status = ?, version = ?, proposed_by = ?, proposed_at = ?,
		    cancellation_reason = ?, doc = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.SubjectID, string(p.Status), p.Version, p.ProposedBy, p.ProposedAt,
		p.CancellationReason, string(doc), time.Now().UTC(), p.ID, expected)
	if err != nil {
		p.Version = expected
		return fmt.Errorf("update plan %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		p.Version = expected
		return fmt.Errorf("update plan %s: %w", p.ID, err)
	}
	if n == 0 {
		p.Version = expected
		// Either the plan is gone or another transition won the race.
		if _, getErr := s.Get(ctx, p.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: plan %s version %d was stale", ErrConflict, p.ID, expected)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, status Status) ([]*Plan, error) {
	query := `SELECT doc, version FROM plans`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY proposed_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*Plan
	for rows.Next() {
		var doc string
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		var p Plan
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		p.Version = version
		out = append(out, &p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner, id string) (*Plan, error) {
	var doc string
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load plan %s: %w", id, err)
	}
	var p Plan
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	p.Version = version
	return &p, nil
}
