package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"vouch/internal/audit"
	id "vouch/pkg/domain"
)

// Schema is the DDL for the audit trail. Applied by deployment tooling and
// by the integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS status_audits (
    id         UUID PRIMARY KEY,
    category   TEXT NOT NULL,
    timestamp  TIMESTAMPTZ NOT NULL,
    user_id    UUID,
    provider   TEXT NOT NULL DEFAULT '',
    action     TEXT NOT NULL,
    decision   TEXT NOT NULL DEFAULT '',
    reason     TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    ip         TEXT NOT NULL DEFAULT '',
    device     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS status_audits_user_idx ON status_audits (user_id, timestamp DESC)`

// Store persists audit events in postgres.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var userID *uuid.UUID
	if !event.UserID.IsNil() {
		uid := uuid.UUID(event.UserID)
		userID = &uid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_audits (id, category, timestamp, user_id, provider, action, decision, reason, request_id, ip, device)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		userID,
		event.Provider,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.IP,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, user_id, provider, action, decision, reason, request_id, ip, device
		FROM status_audits
		WHERE user_id = $1
		ORDER BY timestamp DESC`,
		uuid.UUID(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, user_id, provider, action, decision, reason, request_id, ip, device
		FROM status_audits
		ORDER BY timestamp DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category string
			event    audit.Event
			userID   *uuid.UUID
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&userID,
			&event.Provider,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.IP,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if userID != nil {
			event.UserID = id.UserID(*userID)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
