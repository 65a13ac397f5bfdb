package audit

import (
	"context"
	"database/sql"
)

// Schema creates the audit table. Applied by Migrate at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS operator_audit (
  id          UUID PRIMARY KEY,
  type        TEXT NOT NULL,
  operator_id TEXT NOT NULL,
  role        TEXT NOT NULL DEFAULT '',
  ip_address  TEXT NOT NULL DEFAULT '',
  ledger_key  TEXT NOT NULL DEFAULT '',
  message     TEXT NOT NULL DEFAULT '',
  metadata    TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS operator_audit_created_idx ON operator_audit (created_at);
`

// PostgresRepo appends events to operator_audit. It has no update path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO operator_audit (id, type, operator_id, role, ip_address, ledger_key, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.Type), e.OperatorID, e.Role, e.IPAddress, e.LedgerKey, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
