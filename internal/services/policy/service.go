package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/pkg/validate"
	pgrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

// Repo is the persistence the service reads through. The engine itself only
// consumes ChatPolicy; mutation is reserved for the admin surfaces.
type Repo interface {
	Get(ctx context.Context, chatID int64) (pgrepo.PolicyRecord, error)
	Upsert(ctx context.Context, rec pgrepo.PolicyRecord) error
}

// ChatPolicy is the effective per-chat configuration with defaults applied.
type ChatPolicy struct {
	ChatID               int64
	BioProtectionEnabled bool
	WarningLimit         int
	MuteDuration         time.Duration
	RequiredChannels     []string
	RequiredInviteCount  int
	AutoDeleteEnabled    bool
	AutoDelete           time.Duration
}

// SubscriptionGateActive reports whether the force-subscribe gate applies.
func (p ChatPolicy) SubscriptionGateActive() bool {
	return len(p.RequiredChannels) > 0
}

// VerificationGateActive reports whether the force-join gate applies.
func (p ChatPolicy) VerificationGateActive() bool {
	return p.RequiredInviteCount > 0
}

type Defaults struct {
	WarningLimit int
	MuteDuration time.Duration
}

type Service struct {
	repo     Repo
	defaults Defaults
}

func NewService(repo Repo, defaults Defaults) *Service {
	if defaults.WarningLimit <= 0 {
		defaults.WarningLimit = 3
	}
	if defaults.MuteDuration <= 0 {
		defaults.MuteDuration = 24 * time.Hour
	}

	return &Service{repo: repo, defaults: defaults}
}

// Get returns the effective policy for a chat. Chats with no stored row get
// an all-gates-off policy with default limits, so a missing row never errors
// the event path.
func (s *Service) Get(ctx context.Context, chatID int64) (ChatPolicy, error) {
	if chatID == 0 {
		return ChatPolicy{}, ErrValidation
	}
	if s.repo == nil {
		return ChatPolicy{}, fmt.Errorf("policy repo is nil")
	}

	rec, err := s.repo.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPolicyNotFound) {
			return ChatPolicy{
				ChatID:       chatID,
				WarningLimit: s.defaults.WarningLimit,
				MuteDuration: s.defaults.MuteDuration,
			}, nil
		}
		return ChatPolicy{}, err
	}

	return s.effective(rec), nil
}

func (s *Service) SetBioProtection(ctx context.Context, chatID int64, enabled bool) error {
	return s.mutate(ctx, chatID, func(rec *pgrepo.PolicyRecord) {
		rec.BioProtectionEnabled = enabled
	})
}

func (s *Service) SetWarningLimit(ctx context.Context, chatID int64, limit int) error {
	if limit <= 0 || limit > 100 {
		return ErrValidation
	}
	return s.mutate(ctx, chatID, func(rec *pgrepo.PolicyRecord) {
		rec.WarningLimit = limit
	})
}

func (s *Service) SetRequiredChannels(ctx context.Context, chatID int64, channels []string) error {
	for _, channel := range channels {
		if !validate.ChannelRef(channel) {
			return ErrValidation
		}
	}
	return s.mutate(ctx, chatID, func(rec *pgrepo.PolicyRecord) {
		rec.RequiredChannels = channels
	})
}

func (s *Service) SetRequiredInviteCount(ctx context.Context, chatID int64, count int) error {
	if count < 0 {
		return ErrValidation
	}
	return s.mutate(ctx, chatID, func(rec *pgrepo.PolicyRecord) {
		rec.RequiredInviteCount = count
	})
}

func (s *Service) SetAutoDelete(ctx context.Context, chatID int64, enabled bool, interval time.Duration) error {
	if enabled && interval <= 0 {
		return ErrValidation
	}
	return s.mutate(ctx, chatID, func(rec *pgrepo.PolicyRecord) {
		rec.AutoDeleteEnabled = enabled
		rec.AutoDeleteSec = int(interval / time.Second)
	})
}

// Update replaces the whole policy row, used by the ops API.
func (s *Service) Update(ctx context.Context, p ChatPolicy) error {
	if p.ChatID == 0 {
		return ErrValidation
	}
	if p.WarningLimit <= 0 || p.MuteDuration <= 0 || p.RequiredInviteCount < 0 {
		return ErrValidation
	}
	for _, channel := range p.RequiredChannels {
		if !validate.ChannelRef(channel) {
			return ErrValidation
		}
	}
	if s.repo == nil {
		return fmt.Errorf("policy repo is nil")
	}

	return s.repo.Upsert(ctx, pgrepo.PolicyRecord{
		ChatID:               p.ChatID,
		BioProtectionEnabled: p.BioProtectionEnabled,
		WarningLimit:         p.WarningLimit,
		MuteDurationSec:      int(p.MuteDuration / time.Second),
		RequiredChannels:     p.RequiredChannels,
		RequiredInviteCount:  p.RequiredInviteCount,
		AutoDeleteEnabled:    p.AutoDeleteEnabled,
		AutoDeleteSec:        int(p.AutoDelete / time.Second),
	})
}

func (s *Service) mutate(ctx context.Context, chatID int64, apply func(*pgrepo.PolicyRecord)) error {
	if chatID == 0 {
		return ErrValidation
	}
	if s.repo == nil {
		return fmt.Errorf("policy repo is nil")
	}

	rec, err := s.repo.Get(ctx, chatID)
	if err != nil {
		if !errors.Is(err, pgrepo.ErrPolicyNotFound) {
			return err
		}
		rec = pgrepo.PolicyRecord{
			ChatID:          chatID,
			WarningLimit:    s.defaults.WarningLimit,
			MuteDurationSec: int(s.defaults.MuteDuration / time.Second),
		}
	}

	apply(&rec)
	return s.repo.Upsert(ctx, rec)
}

func (s *Service) effective(rec pgrepo.PolicyRecord) ChatPolicy {
	p := ChatPolicy{
		ChatID:               rec.ChatID,
		BioProtectionEnabled: rec.BioProtectionEnabled,
		WarningLimit:         rec.WarningLimit,
		MuteDuration:         time.Duration(rec.MuteDurationSec) * time.Second,
		RequiredChannels:     rec.RequiredChannels,
		RequiredInviteCount:  rec.RequiredInviteCount,
		AutoDeleteEnabled:    rec.AutoDeleteEnabled,
		AutoDelete:           time.Duration(rec.AutoDeleteSec) * time.Second,
	}
	if p.WarningLimit <= 0 {
		p.WarningLimit = s.defaults.WarningLimit
	}
	if p.MuteDuration <= 0 {
		p.MuteDuration = s.defaults.MuteDuration
	}
	return p
}
