package enforce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/enums"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/markup"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/scheduler"
)

type sentNotice struct {
	chatID  int64
	text    string
	buttons []markup.Button
}

type platformFake struct {
	notices       []sentNotice
	nextNoticeID  int
	sendErr       error
	deleted       [][2]int64 // chatID, messageID
	deleteErr     error
	muted         map[int64]time.Time
	muteErr       error
	restricted    []int64
	restrictErr   error
	lifted        []int64
	liftErr       error
	inviteLink    string
	inviteLinkErr error
}

func newPlatformFake() *platformFake {
	return &platformFake{nextNoticeID: 1000, muted: make(map[int64]time.Time), inviteLink: "https://t.me/+abcdef"}
}

func (p *platformFake) SendNotice(_ context.Context, chatID int64, text string, buttons []markup.Button) (int, error) {
	if p.sendErr != nil {
		return 0, p.sendErr
	}
	p.nextNoticeID++
	p.notices = append(p.notices, sentNotice{chatID: chatID, text: text, buttons: buttons})
	return p.nextNoticeID, nil
}

func (p *platformFake) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, [2]int64{chatID, int64(messageID)})
	return nil
}

func (p *platformFake) MuteMember(_ context.Context, _, userID int64, until time.Time) error {
	if p.muteErr != nil {
		return p.muteErr
	}
	p.muted[userID] = until
	return nil
}

func (p *platformFake) RestrictSending(_ context.Context, _, userID int64) error {
	if p.restrictErr != nil {
		return p.restrictErr
	}
	p.restricted = append(p.restricted, userID)
	return nil
}

func (p *platformFake) LiftRestrictions(_ context.Context, _, userID int64) error {
	if p.liftErr != nil {
		return p.liftErr
	}
	p.lifted = append(p.lifted, userID)
	return nil
}

func (p *platformFake) CreateInviteLink(_ context.Context, _ int64, _ int) (string, error) {
	if p.inviteLinkErr != nil {
		return "", p.inviteLinkErr
	}
	return p.inviteLink, nil
}

type ledgerFake struct {
	count    int
	incrErr  error
	resetErr error
	resets   int
}

func (l *ledgerFake) RecordViolation(context.Context, int64, int64) (int, error) {
	if l.incrErr != nil {
		return 0, l.incrErr
	}
	l.count++
	return l.count, nil
}

func (l *ledgerFake) ResetWarnings(context.Context, int64, int64) error {
	if l.resetErr != nil {
		return l.resetErr
	}
	l.resets++
	l.count = 0
	return nil
}

type verifsFake struct {
	set map[int64]bool
	err error
}

func (v *verifsFake) Set(_ context.Context, _, userID int64, verified bool) error {
	if v.err != nil {
		return v.err
	}
	if v.set == nil {
		v.set = make(map[int64]bool)
	}
	v.set[userID] = verified
	return nil
}

type schedulerSpy struct {
	delays  []time.Duration
	kinds   []string
	actions []scheduler.Action
}

func (s *schedulerSpy) Schedule(delay time.Duration, kind string, action scheduler.Action) (scheduler.Handle, error) {
	s.delays = append(s.delays, delay)
	s.kinds = append(s.kinds, kind)
	s.actions = append(s.actions, action)
	return scheduler.Handle(fmt.Sprintf("task-%d", len(s.actions))), nil
}

func testPolicy() policy.ChatPolicy {
	return policy.ChatPolicy{
		ChatID:               -42,
		BioProtectionEnabled: true,
		WarningLimit:         3,
		MuteDuration:         24 * time.Hour,
	}
}

func TestBioViolationBelowLimitWarns(t *testing.T) {
	platform := newPlatformFake()
	ledger := &ledgerFake{}
	spy := &schedulerSpy{}
	act := NewActuator(platform, ledger, nil, spy, nil)

	out, err := act.EnforceBioViolation(context.Background(), testPolicy(), 7, 555, "Alice", "http://spam.example")
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}

	if out.Count != 1 {
		t.Fatalf("count = %d, want 1", out.Count)
	}
	if out.Escalated {
		t.Fatalf("first violation must not escalate")
	}
	if len(platform.deleted) != 1 || platform.deleted[0] != [2]int64{-42, 555} {
		t.Fatalf("offending message not deleted: %v", platform.deleted)
	}
	if len(platform.muted) != 0 {
		t.Fatalf("no mute expected below the limit")
	}
	if len(platform.notices) != 1 {
		t.Fatalf("expected one warning notice, got %d", len(platform.notices))
	}
	notice := platform.notices[0].text
	if want := "Warning 1/3"; !contains(notice, want) {
		t.Fatalf("notice should carry the count: %q", notice)
	}
	if !contains(notice, "Alice") {
		t.Fatalf("notice should name the user: %q", notice)
	}
	if len(spy.actions) != 1 || spy.delays[0] != 10*time.Second {
		t.Fatalf("expected one 10s cleanup task, got %v", spy.delays)
	}

	// The cleanup task deletes exactly the notice it belongs to.
	if err := spy.actions[0](context.Background()); err != nil {
		t.Fatalf("cleanup task: %v", err)
	}
	last := platform.deleted[len(platform.deleted)-1]
	if int(last[1]) != out.NoticeID {
		t.Fatalf("cleanup deleted message %d, want notice %d", last[1], out.NoticeID)
	}
}

func TestBioViolationAtLimitMutesAndResets(t *testing.T) {
	platform := newPlatformFake()
	ledger := &ledgerFake{count: 2} // two prior warnings
	spy := &schedulerSpy{}
	act := NewActuator(platform, ledger, nil, spy, nil)
	act.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	out, err := act.EnforceBioViolation(context.Background(), testPolicy(), 7, 556, "Alice", "http://spam.example")
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}

	if !out.Escalated {
		t.Fatalf("third violation must escalate")
	}
	until, ok := platform.muted[7]
	if !ok {
		t.Fatalf("user should be muted")
	}
	wantUntil := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !until.Equal(wantUntil) {
		t.Fatalf("mute until = %v, want %v", until, wantUntil)
	}
	if ledger.resets != 1 {
		t.Fatalf("ledger resets = %d, want 1", ledger.resets)
	}
	if out.Count != 0 {
		t.Fatalf("count after escalation = %d, want 0", out.Count)
	}
	if len(platform.notices) != 1 {
		t.Fatalf("expected escalation notice")
	}
	if !contains(platform.notices[0].text, "muted for 1d") {
		t.Fatalf("notice should state the mute duration: %q", platform.notices[0].text)
	}

	// A fourth violation starts a fresh count at 1.
	next, err := act.EnforceBioViolation(context.Background(), testPolicy(), 7, 557, "Alice", "http://spam.example")
	if err != nil {
		t.Fatalf("enforce after reset: %v", err)
	}
	if next.Count != 1 || next.Escalated {
		t.Fatalf("post-escalation violation should warn at count 1: %+v", next)
	}
}

func TestMuteFailureStillResetsLedger(t *testing.T) {
	platform := newPlatformFake()
	platform.muteErr = errors.New("not enough rights")
	ledger := &ledgerFake{count: 2}
	act := NewActuator(platform, ledger, nil, &schedulerSpy{}, nil)

	out, err := act.EnforceBioViolation(context.Background(), testPolicy(), 7, 558, "Alice", "http://x.y")
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}

	if !out.Escalated {
		t.Fatalf("escalation should be recorded even on mute failure")
	}
	if ledger.resets != 1 {
		t.Fatalf("ledger must reset once escalation is attempted, resets = %d", ledger.resets)
	}
	if len(platform.notices) != 0 {
		t.Fatalf("no escalation notice on failed mute, got %d", len(platform.notices))
	}
}

func TestStoreErrorOnIncrementAbortsActuation(t *testing.T) {
	platform := newPlatformFake()
	ledger := &ledgerFake{incrErr: errors.New("redis down")}
	act := NewActuator(platform, ledger, nil, &schedulerSpy{}, nil)

	_, err := act.EnforceBioViolation(context.Background(), testPolicy(), 7, 559, "Alice", "http://x.y")
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(platform.deleted) != 0 || len(platform.notices) != 0 || len(platform.muted) != 0 {
		t.Fatalf("no platform mutation allowed when the store is down")
	}
}

func TestWarnNoticeFailureIsSwallowed(t *testing.T) {
	platform := newPlatformFake()
	platform.sendErr = errors.New("flood limit")
	ledger := &ledgerFake{}
	act := NewActuator(platform, ledger, nil, &schedulerSpy{}, nil)

	out, err := act.EnforceBioViolation(context.Background(), testPolicy(), 7, 560, "Alice", "http://x.y")
	if err != nil {
		t.Fatalf("warn-level notice failure must not error the event: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("count = %d, want 1", out.Count)
	}
}

func TestEnforceGateSubscription(t *testing.T) {
	platform := newPlatformFake()
	spy := &schedulerSpy{}
	act := NewActuator(platform, &ledgerFake{}, nil, spy, nil)

	pol := testPolicy()
	pol.RequiredChannels = []string{"@updates"}

	out, err := act.EnforceGate(context.Background(), pol, 7, 600, "Bob", enums.ViolationReasonNotSubscribed, "@updates")
	if err != nil {
		t.Fatalf("enforce gate: %v", err)
	}

	if len(platform.deleted) != 1 {
		t.Fatalf("offending message should be deleted")
	}
	if len(platform.restricted) != 1 || platform.restricted[0] != 7 {
		t.Fatalf("user should be restricted from sending: %v", platform.restricted)
	}
	if len(platform.notices) != 1 {
		t.Fatalf("expected gating notice")
	}
	notice := platform.notices[0]
	if !contains(notice.text, "@updates") {
		t.Fatalf("notice should name the channel: %q", notice.text)
	}
	if len(notice.buttons) != 2 {
		t.Fatalf("expected join + verify buttons, got %+v", notice.buttons)
	}
	if notice.buttons[0].URL != "https://t.me/updates" {
		t.Fatalf("unexpected join url: %q", notice.buttons[0].URL)
	}
	if notice.buttons[1].Data != "gate:verify:-42" {
		t.Fatalf("unexpected verify callback: %q", notice.buttons[1].Data)
	}
	if out.NoticeID == 0 {
		t.Fatalf("outcome should carry the notice id")
	}
	if len(spy.kinds) != 1 || spy.kinds[0] != "delete_notice" {
		t.Fatalf("gating notice should schedule its own cleanup: %v", spy.kinds)
	}
}

func TestEnforceGateVerificationUsesInviteLink(t *testing.T) {
	platform := newPlatformFake()
	act := NewActuator(platform, &ledgerFake{}, nil, &schedulerSpy{}, nil)

	pol := testPolicy()
	pol.RequiredInviteCount = 2

	if _, err := act.EnforceGate(context.Background(), pol, 7, 601, "Bob", enums.ViolationReasonNotVerified, ""); err != nil {
		t.Fatalf("enforce gate: %v", err)
	}

	notice := platform.notices[0]
	if !contains(notice.text, "invite 2 member(s)") {
		t.Fatalf("notice should state the invite requirement: %q", notice.text)
	}
	if notice.buttons[0].URL != platform.inviteLink {
		t.Fatalf("expected invite-link button, got %+v", notice.buttons)
	}
}

func TestEnforceGateDeleteFailureIsBestEffort(t *testing.T) {
	platform := newPlatformFake()
	platform.deleteErr = errors.New("already deleted by admin")
	act := NewActuator(platform, &ledgerFake{}, nil, &schedulerSpy{}, nil)

	pol := testPolicy()
	pol.RequiredChannels = []string{"@updates"}

	if _, err := act.EnforceGate(context.Background(), pol, 7, 602, "Bob", enums.ViolationReasonNotSubscribed, "@updates"); err != nil {
		t.Fatalf("gate delete failure must be ignored: %v", err)
	}
	if len(platform.restricted) != 1 {
		t.Fatalf("restriction should still apply")
	}
}

func TestLiftGatePersistsVerification(t *testing.T) {
	platform := newPlatformFake()
	verifs := &verifsFake{}
	act := NewActuator(platform, &ledgerFake{}, verifs, &schedulerSpy{}, nil)

	if err := act.LiftGate(context.Background(), -42, 7, true); err != nil {
		t.Fatalf("lift gate: %v", err)
	}
	if len(platform.lifted) != 1 || platform.lifted[0] != 7 {
		t.Fatalf("restrictions should be lifted: %v", platform.lifted)
	}
	if !verifs.set[7] {
		t.Fatalf("verification flag should be persisted")
	}
}

func TestLiftGateForceSubscribeDoesNotPersist(t *testing.T) {
	platform := newPlatformFake()
	verifs := &verifsFake{}
	act := NewActuator(platform, &ledgerFake{}, verifs, &schedulerSpy{}, nil)

	if err := act.LiftGate(context.Background(), -42, 7, false); err != nil {
		t.Fatalf("lift gate: %v", err)
	}
	if len(verifs.set) != 0 {
		t.Fatalf("force-subscribe must not persist a verified flag")
	}
}

func TestLiftGateSurfacesActuationError(t *testing.T) {
	platform := newPlatformFake()
	platform.liftErr = errors.New("not enough rights")
	act := NewActuator(platform, &ledgerFake{}, &verifsFake{}, &schedulerSpy{}, nil)

	err := act.LiftGate(context.Background(), -42, 7, true)
	if !errors.Is(err, ErrActuation) {
		t.Fatalf("expected ErrActuation, got %v", err)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
