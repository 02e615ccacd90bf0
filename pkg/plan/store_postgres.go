package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore is the Postgres variant of the plan store, for
// multi-instance deployments. Register the driver in the binary:
//
//	import _ "github.com/lib/pq"
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and runs its migration.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version BIGINT NOT NULL,
		proposed_by TEXT NOT NULL DEFAULT '',
		proposed_at TIMESTAMPTZ,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
	CREATE INDEX IF NOT EXISTS idx_plans_subject ON plans(subject_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, p *Plan) error {
	p.Version = 1
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, subject_id, status, version, proposed_by, proposed_at, cancellation_reason, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SubjectID, string(p.Status), p.Version, p.ProposedBy, p.ProposedAt,
		p.CancellationReason, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc, version FROM plans WHERE id = $1`, id)
	return scanPlan(row, id)
}

func (s *PostgresStore) Update(ctx context.Context, p *Plan) error {
	expected := p.Version
	p.Version++
	doc, err := json.Marshal(p)
	if err != nil {
		p.Version = expected
		return fmt.Errorf("marshal plan: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET subject_id = $1, status = $2, version = $3, proposed_by = $4, proposed_at = $5,
		    cancellation_reason = $6, doc = $7, updated_at = $8
		WHERE id = $9 AND version = $10`,
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
		if _, getErr := s.Get(ctx, p.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: plan %s version %d was stale", ErrConflict, p.ID, expected)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, status Status) ([]*Plan, error) {
	query := `SELECT doc, version FROM plans`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
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
