package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"contact-automation/pkg/utils"
)

// Schema creates the ledger table. Applied by Migrate at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS outcome_ledger (
  id            UUID PRIMARY KEY,
  key           TEXT NOT NULL UNIQUE,
  kind          TEXT NOT NULL DEFAULT '',
  status        TEXT NOT NULL,
  source        TEXT NOT NULL DEFAULT '',
  caller_number TEXT NOT NULL DEFAULT '',
  external_id   TEXT NOT NULL DEFAULT '',
  input         TEXT NOT NULL DEFAULT '',
  outcome       TEXT NOT NULL DEFAULT '',
  attempts      INT  NOT NULL DEFAULT 0,
  last_error    TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS outcome_ledger_status_idx ON outcome_ledger (status, updated_at);
`

const entryColumns = `id, key, kind, status, source, caller_number, external_id, input, outcome, attempts, last_error, created_at, updated_at`

// PostgresRepo stores the ledger in Postgres through database/sql (pgx stdlib).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepo) Claim(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO outcome_ledger (
  id, key, kind, status, source, caller_number, external_id, input, outcome, attempts, last_error, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (key) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Key,
		e.Kind,
		e.Status,
		e.Source,
		e.CallerNumber,
		e.ExternalID,
		e.Input,
		e.Outcome,
		e.Attempts,
		e.LastError,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (r *PostgresRepo) Complete(ctx context.Context, key, kind, externalID, outcome string, now time.Time) error {
	const q = `
UPDATE outcome_ledger
SET status = $2, kind = $3, external_id = $4, outcome = $5, last_error = '', updated_at = $6
WHERE key = $1
`
	res, err := r.db.ExecContext(ctx, q, key, StatusPersisted, kind, externalID, outcome, now)
	if err != nil {
		return err
	}
	return requireOne(res)
}

func (r *PostgresRepo) Fail(ctx context.Context, key, kind, outcome, lastError string, now time.Time) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so concurrent retries count attempts correctly.
		const lock = `SELECT outcome FROM outcome_ledger WHERE key = $1 FOR UPDATE`
		var prev string
		if err := tx.QueryRowContext(ctx, lock, key).Scan(&prev); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if outcome == "" {
			outcome = prev
		}
		const q = `
UPDATE outcome_ledger
SET status = $2, kind = $3, outcome = $4, attempts = attempts + 1, last_error = $5, updated_at = $6
WHERE key = $1
`
		_, err := tx.ExecContext(ctx, q, key, StatusFailed, kind, outcome, lastError, now)
		return err
	})
}

func (r *PostgresRepo) Get(ctx context.Context, key string) (Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM outcome_ledger WHERE key = $1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, key))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *PostgresRepo) ListRetryable(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]Entry, error) {
	q := `
SELECT ` + entryColumns + `
FROM outcome_ledger
WHERE (status = 'failed' AND attempts < $1)
   OR (status = 'claimed' AND updated_at < $2)
ORDER BY created_at
LIMIT $3
`
	return r.query(ctx, q, maxAttempts, staleBefore, limitOrAll(limit))
}

func (r *PostgresRepo) ListFailed(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM outcome_ledger WHERE status = 'failed' ORDER BY created_at LIMIT $1`
	return r.query(ctx, q, limitOrAll(limit))
}

func (r *PostgresRepo) List(ctx context.Context, from, to time.Time) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM outcome_ledger WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`
	return r.query(ctx, q, from, to)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.Key,
		&e.Kind,
		&e.Status,
		&e.Source,
		&e.CallerNumber,
		&e.ExternalID,
		&e.Input,
		&e.Outcome,
		&e.Attempts,
		&e.LastError,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// limitOrAll maps a non-positive limit to Postgres' "no limit".
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
