package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vouch/internal/verification"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// Schema is the DDL for the durable trust records. Applied by deployment
// tooling and by the integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS user_verification_status (
    user_id         UUID PRIMARY KEY,
    tier            TEXT NOT NULL,
    attestation_ref TEXT,
    verified_at     TIMESTAMPTZ,
    last_reasons    TEXT[] NOT NULL DEFAULT '{}',
    score_bin       TEXT NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists trust records in postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID) (*verification.StatusRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tier, COALESCE(attestation_ref, ''), verified_at, last_reasons, score_bin, updated_at
		FROM user_verification_status
		WHERE user_id = $1`,
		userID.String(),
	)

	record := &verification.StatusRecord{UserID: userID}
	var tier string
	var verifiedAt sql.NullTime
	if err := row.Scan(&tier, &record.AttestationRef, &verifiedAt, pq.Array(&record.LastReasons), &record.ScoreBin, &record.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification status not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("query verification status: %w", err)
	}
	record.Tier = verification.Tier(tier)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		record.VerifiedAt = &t
	}
	return record, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, record *verification.StatusRecord) error {
	var verifiedAt sql.NullTime
	if record.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *record.VerifiedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_verification_status (user_id, tier, attestation_ref, verified_at, last_reasons, score_bin, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			attestation_ref = COALESCE(EXCLUDED.attestation_ref, user_verification_status.attestation_ref),
			verified_at = COALESCE(EXCLUDED.verified_at, user_verification_status.verified_at),
			last_reasons = EXCLUDED.last_reasons,
			score_bin = EXCLUDED.score_bin,
			updated_at = EXCLUDED.updated_at`,
		record.UserID.String(),
		string(record.Tier),
		record.AttestationRef,
		verifiedAt,
		pq.Array(record.LastReasons),
		record.ScoreBin,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verification status: %w", err)
	}
	return nil
}
