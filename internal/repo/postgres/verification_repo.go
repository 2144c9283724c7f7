package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VerificationRepo struct {
	pool *pgxpool.Pool
}

type VerificationRecord struct {
	ChatID     int64
	UserID     int64
	Verified   bool
	VerifiedAt *time.Time
}

func NewVerificationRepo(pool *pgxpool.Pool) *VerificationRepo {
	return &VerificationRepo{pool: pool}
}

// Get reports whether the user passed the force-join gate for this chat.
// A missing row is a valid "not verified yet" state, not an error.
func (r *VerificationRepo) Get(ctx context.Context, chatID, userID int64) (VerificationRecord, error) {
	if r.pool == nil {
		return VerificationRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if chatID == 0 || userID <= 0 {
		return VerificationRecord{}, fmt.Errorf("invalid verification key")
	}

	rec := VerificationRecord{ChatID: chatID, UserID: userID}
	err := r.pool.QueryRow(ctx, `
SELECT verified, verified_at
FROM verifications
WHERE chat_id = $1 AND user_id = $2
`, chatID, userID).Scan(&rec.Verified, &rec.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, nil
		}
		return VerificationRecord{}, fmt.Errorf("get verification: %w", err)
	}

	return rec, nil
}

// Set marks the gate outcome. Verified never reverts to false automatically,
// so verified_at is only stamped on the false->true transition.
func (r *VerificationRepo) Set(ctx context.Context, chatID, userID int64, verified bool) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if chatID == 0 || userID <= 0 {
		return fmt.Errorf("invalid verification key")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO verifications (chat_id, user_id, verified, verified_at, created_at)
VALUES ($1, $2, $3, CASE WHEN $3 THEN NOW() ELSE NULL END, NOW())
ON CONFLICT (chat_id, user_id) DO UPDATE SET
	verified = verifications.verified OR EXCLUDED.verified,
	verified_at = COALESCE(verifications.verified_at, EXCLUDED.verified_at)
`, chatID, userID, verified); err != nil {
		return fmt.Errorf("set verification: %w", err)
	}

	return nil
}

// PurgeStaleUnverified removes unverified rows created before the cutoff.
// Such rows are abandoned gate prompts; the next gated message recreates one.
// Verified rows are never purged, a granted verification does not expire.
func (r *VerificationRepo) PurgeStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM verifications
WHERE verified = FALSE AND created_at < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge verifications: %w", err)
	}

	return tag.RowsAffected(), nil
}
