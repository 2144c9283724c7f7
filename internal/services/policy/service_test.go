package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	pgrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/postgres"
)

type repoStub struct {
	records map[int64]pgrepo.PolicyRecord
	getErr  error
}

func newRepoStub() *repoStub {
	return &repoStub{records: make(map[int64]pgrepo.PolicyRecord)}
}

func (r *repoStub) Get(_ context.Context, chatID int64) (pgrepo.PolicyRecord, error) {
	if r.getErr != nil {
		return pgrepo.PolicyRecord{}, r.getErr
	}
	rec, ok := r.records[chatID]
	if !ok {
		return pgrepo.PolicyRecord{}, pgrepo.ErrPolicyNotFound
	}
	return rec, nil
}

func (r *repoStub) Upsert(_ context.Context, rec pgrepo.PolicyRecord) error {
	r.records[rec.ChatID] = rec
	return nil
}

func TestGetMissingRowGivesDefaultsWithGatesOff(t *testing.T) {
	svc := NewService(newRepoStub(), Defaults{WarningLimit: 3, MuteDuration: 24 * time.Hour})

	p, err := svc.Get(context.Background(), -500)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.BioProtectionEnabled {
		t.Fatalf("bio protection should default off")
	}
	if p.WarningLimit != 3 {
		t.Fatalf("unexpected warning limit: %d", p.WarningLimit)
	}
	if p.MuteDuration != 24*time.Hour {
		t.Fatalf("unexpected mute duration: %s", p.MuteDuration)
	}
	if p.SubscriptionGateActive() || p.VerificationGateActive() {
		t.Fatalf("gates should be inactive by default")
	}
}

func TestGetAppliesStoredRowAndFallbacks(t *testing.T) {
	repo := newRepoStub()
	repo.records[-500] = pgrepo.PolicyRecord{
		ChatID:               -500,
		BioProtectionEnabled: true,
		WarningLimit:         0, // bad row, fallback applies
		MuteDurationSec:      3600,
		RequiredChannels:     []string{"@news"},
		RequiredInviteCount:  2,
	}
	svc := NewService(repo, Defaults{WarningLimit: 3, MuteDuration: 24 * time.Hour})

	p, err := svc.Get(context.Background(), -500)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.BioProtectionEnabled {
		t.Fatalf("bio protection should be on")
	}
	if p.WarningLimit != 3 {
		t.Fatalf("zero warning limit should fall back to default, got %d", p.WarningLimit)
	}
	if p.MuteDuration != time.Hour {
		t.Fatalf("unexpected mute duration: %s", p.MuteDuration)
	}
	if !p.SubscriptionGateActive() {
		t.Fatalf("subscription gate should be active")
	}
	if !p.VerificationGateActive() {
		t.Fatalf("verification gate should be active")
	}
}

func TestMutatorsCreateRowOnFirstWrite(t *testing.T) {
	repo := newRepoStub()
	svc := NewService(repo, Defaults{WarningLimit: 3, MuteDuration: 24 * time.Hour})
	ctx := context.Background()

	if err := svc.SetBioProtection(ctx, -500, true); err != nil {
		t.Fatalf("set bio protection: %v", err)
	}
	if err := svc.SetWarningLimit(ctx, -500, 5); err != nil {
		t.Fatalf("set warning limit: %v", err)
	}

	p, err := svc.Get(ctx, -500)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.BioProtectionEnabled || p.WarningLimit != 5 {
		t.Fatalf("unexpected policy after mutation: %+v", p)
	}
	if p.MuteDuration != 24*time.Hour {
		t.Fatalf("mute duration default should have been seeded: %s", p.MuteDuration)
	}
}

func TestSetWarningLimitValidates(t *testing.T) {
	svc := NewService(newRepoStub(), Defaults{})

	if err := svc.SetWarningLimit(context.Background(), -500, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.SetWarningLimit(context.Background(), -500, 101); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetRequiredChannelsValidatesRefs(t *testing.T) {
	repo := newRepoStub()
	svc := NewService(repo, Defaults{})
	ctx := context.Background()

	if err := svc.SetRequiredChannels(ctx, -500, []string{"not a channel"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.SetRequiredChannels(ctx, -500, []string{"@abc"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("short username should be rejected, got %v", err)
	}
	if err := svc.SetRequiredChannels(ctx, -500, []string{"@updates", "-100123456"}); err != nil {
		t.Fatalf("set required channels: %v", err)
	}

	p, err := svc.Get(ctx, -500)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(p.RequiredChannels) != 2 {
		t.Fatalf("unexpected channels: %v", p.RequiredChannels)
	}
}

func TestGetPropagatesStoreErrors(t *testing.T) {
	repo := newRepoStub()
	repo.getErr = errors.New("connection refused")
	svc := NewService(repo, Defaults{})

	if _, err := svc.Get(context.Background(), -500); err == nil {
		t.Fatalf("expected store error")
	}
}
