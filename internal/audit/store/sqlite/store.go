// Package sqlite keeps the audit trail in a local SQLite file. It backs dev
// mode and single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"simrelease/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS sim_liberation_audit (
	id           TEXT PRIMARY KEY,
	action_type  TEXT    NOT NULL,
	status       INTEGER NOT NULL,
	outcome      TEXT,
	created_at   TEXT    NOT NULL,
	created_by   TEXT    NOT NULL,
	user_type    TEXT,
	num_sim      TEXT,
	sim_status   TEXT,
	dealer_id    INTEGER,
	message      TEXT,
	ip_address   TEXT,
	client_label TEXT,
	request_id   TEXT
);
CREATE INDEX IF NOT EXISTS sim_liberation_audit_num_sim_idx ON sim_liberation_audit (num_sim, created_at);
`

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements audit.Sink on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema. Use
// "file::memory:?cache=shared" for a throwaway database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	const query = `
		INSERT INTO sim_liberation_audit (
			id, action_type, status, outcome, created_at, created_by, user_type,
			num_sim, sim_status, dealer_id, message, ip_address, client_label, request_id
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Action,
		e.Status,
		nullString(e.Outcome),
		e.Timestamp.UTC().Format(timeLayout),
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
		where = append(where, "num_sim = ?")
		args = append(args, f.Serial)
	}
	if f.Actor != "" {
		where = append(where, "created_by = ?")
		args = append(args, f.Actor)
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
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
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
			ts     string
			status sql.NullString
			dealer sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Status, &e.Outcome, &ts, &e.Actor,
			&e.Role, &e.Serial, &status, &dealer, &e.Message, &e.ClientIP, &e.ClientLabel, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
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
