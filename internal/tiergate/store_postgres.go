package tiergate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "vouch/pkg/domain"
)

// Schema is the DDL for submission allowances. Applied by deployment tooling
// and by the integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS submission_consumptions (
    user_id     UUID PRIMARY KEY,
    consumed_at TIMESTAMPTZ NOT NULL
)`

// PostgresConsumptionStore persists submission allowances in postgres. The
// primary key makes TryConsume atomic across instances.
type PostgresConsumptionStore struct {
	db *sql.DB
}

func NewPostgresConsumptionStore(db *sql.DB) *PostgresConsumptionStore {
	return &PostgresConsumptionStore{db: db}
}

func (s *PostgresConsumptionStore) TryConsume(ctx context.Context, userID id.UserID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_consumptions (user_id, consumed_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.UUID(userID), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert submission consumption: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresConsumptionStore) Consumed(ctx context.Context, userID id.UserID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM submission_consumptions WHERE user_id = $1)`,
		uuid.UUID(userID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query submission consumption: %w", err)
	}
	return exists, nil
}
