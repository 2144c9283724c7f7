package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPolicyNotFound = errors.New("chat policy not found")

type PolicyRepo struct {
	pool *pgxpool.Pool
}

// PolicyRecord is the raw per-chat row; defaults for absent chats are applied
// by the policy service, not here.
type PolicyRecord struct {
	ChatID               int64
	BioProtectionEnabled bool
	WarningLimit         int
	MuteDurationSec      int
	RequiredChannels     []string
	RequiredInviteCount  int
	AutoDeleteEnabled    bool
	AutoDeleteSec        int
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

func (r *PolicyRepo) Get(ctx context.Context, chatID int64) (PolicyRecord, error) {
	if r.pool == nil {
		return PolicyRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if chatID == 0 {
		return PolicyRecord{}, fmt.Errorf("invalid chat id")
	}

	var rec PolicyRecord
	err := r.pool.QueryRow(ctx, `
SELECT
	chat_id,
	bio_protection_enabled,
	warning_limit,
	mute_duration_sec,
	required_channels,
	required_invite_count,
	auto_delete_enabled,
	auto_delete_sec
FROM chat_policies
WHERE chat_id = $1
`, chatID).Scan(
		&rec.ChatID,
		&rec.BioProtectionEnabled,
		&rec.WarningLimit,
		&rec.MuteDurationSec,
		&rec.RequiredChannels,
		&rec.RequiredInviteCount,
		&rec.AutoDeleteEnabled,
		&rec.AutoDeleteSec,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PolicyRecord{}, ErrPolicyNotFound
		}
		return PolicyRecord{}, fmt.Errorf("get chat policy: %w", err)
	}

	return rec, nil
}

func (r *PolicyRepo) Upsert(ctx context.Context, rec PolicyRecord) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if rec.ChatID == 0 {
		return fmt.Errorf("invalid chat id")
	}
	if rec.WarningLimit < 0 || rec.MuteDurationSec < 0 || rec.RequiredInviteCount < 0 || rec.AutoDeleteSec < 0 {
		return fmt.Errorf("invalid policy payload")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO chat_policies (
	chat_id,
	bio_protection_enabled,
	warning_limit,
	mute_duration_sec,
	required_channels,
	required_invite_count,
	auto_delete_enabled,
	auto_delete_sec,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (chat_id) DO UPDATE SET
	bio_protection_enabled = EXCLUDED.bio_protection_enabled,
	warning_limit = EXCLUDED.warning_limit,
	mute_duration_sec = EXCLUDED.mute_duration_sec,
	required_channels = EXCLUDED.required_channels,
	required_invite_count = EXCLUDED.required_invite_count,
	auto_delete_enabled = EXCLUDED.auto_delete_enabled,
	auto_delete_sec = EXCLUDED.auto_delete_sec,
	updated_at = NOW()
`,
		rec.ChatID,
		rec.BioProtectionEnabled,
		rec.WarningLimit,
		rec.MuteDurationSec,
		rec.RequiredChannels,
		rec.RequiredInviteCount,
		rec.AutoDeleteEnabled,
		rec.AutoDeleteSec,
	); err != nil {
		return fmt.Errorf("upsert chat policy: %w", err)
	}

	return nil
}
