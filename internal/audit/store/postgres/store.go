// Package postgres persists audit entries to PostgreSQL through database/sql
// and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"simrelease/internal/audit"
)

// Schema creates the audit table when it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS sim_liberation_audit (
	id           UUID PRIMARY KEY,
	action_type  TEXT        NOT NULL,
	status       SMALLINT    NOT NULL,
	outcome      TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	created_by   TEXT        NOT NULL,
	user_type    TEXT,
	num_sim      TEXT,
	sim_status   TEXT,
	dealer_id    BIGINT,
	message      TEXT,
	ip_address   TEXT,
	client_label TEXT,
	request_id   TEXT
);
CREATE INDEX IF NOT EXISTS sim_liberation_audit_num_sim_idx ON sim_liberation_audit (num_sim, created_at DESC);
`

// Store implements audit.Sink on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return New(db), nil
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one row.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}
	const query = `
		INSERT INTO sim_liberation_audit (
			id, action_type, status, outcome, created_at, created_by, user_type,
			num_sim, sim_status, dealer_id, message, ip_address, client_label, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		e.Action,
		e.Status,
		nullString(e.Outcome),
		e.Timestamp,
		e.Actor,
		nullString(e.Role),
		nullString(e.Serial),
		e.PriorStatus,
		e.PriorDealerID,
		e.Message,
		nullString(e.ClientIP),
		nullString(e.ClientLabel),
		nullString(e.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns matching rows, most recent first.
func (s *Store) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Serial != "" {
		args = append(args, f.Serial)
		where = append(where, fmt.Sprintf("num_sim = $%d", len(args)))
	}
	if f.Actor != "" {
		args = append(args, f.Actor)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	query := `
		SELECT id, action_type, status, COALESCE(outcome, ''), created_at, created_by,
			   COALESCE(user_type, ''), COALESCE(num_sim, ''), sim_status, dealer_id,
			   COALESCE(message, ''), COALESCE(ip_address, ''), COALESCE(client_label, ''),
			   COALESCE(request_id, '')
		FROM sim_liberation_audit`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			id     uuid.UUID
			status sql.NullString
			dealer sql.NullInt64
		)
		if err := rows.Scan(&id, &e.Action, &e.Status, &e.Outcome, &e.Timestamp, &e.Actor,
			&e.Role, &e.Serial, &status, &dealer, &e.Message, &e.ClientIP, &e.ClientLabel, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.String()
		if status.Valid {
			e.PriorStatus = &status.String
		}
		if dealer.Valid {
			e.PriorDealerID = &dealer.Int64
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
