package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/enums"
	pgrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/postgres"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/detect"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/enforce"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
)

const eventTimeout = 30 * time.Second

// Directory is the read side of the platform client the router classifies
// against.
type Directory interface {
	UserBio(ctx context.Context, userID int64) (string, error)
	ChannelMemberStatus(ctx context.Context, channel string, userID int64) (enums.MemberStatus, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Policies interface {
	Get(ctx context.Context, chatID int64) (policy.ChatPolicy, error)
}

type Enforcer interface {
	EnforceBioViolation(ctx context.Context, pol policy.ChatPolicy, userID int64, messageID int, displayName, evidence string) (enforce.Outcome, error)
	EnforceGate(ctx context.Context, pol policy.ChatPolicy, userID int64, messageID int, displayName string, reason enums.ViolationReason, channel string) (enforce.Outcome, error)
	LiftGate(ctx context.Context, chatID, userID int64, persistVerified bool) error
	ScheduleAutoDelete(chatID int64, messageID int, after time.Duration)
}

type Verifications interface {
	Get(ctx context.Context, chatID, userID int64) (pgrepo.VerificationRecord, error)
}

type InviteCounter interface {
	Increment(ctx context.Context, chatID, referrerID int64) (int, error)
	Get(ctx context.Context, chatID, userID int64) (int, error)
}

type MessageEvent struct {
	ChatID      int64
	UserID      int64
	MessageID   int
	DisplayName string
	IsGroup     bool
}

type MembershipEvent struct {
	ChatID     int64
	UserID     int64
	ReferrerID int64
	NewStatus  enums.MemberStatus
}

type CallbackEvent struct {
	CallbackID  string
	ChatID      int64
	UserID      int64
	Data        string
	DisplayName string
}

type Config struct {
	MembershipCacheTTL  time.Duration
	MembershipCacheSize int
}

// Router dispatches each inbound event through policy lookup, detection,
// actuation and scheduling. Every event runs in its own goroutine; the only
// cross-event serialization is the ledger's atomic increment down in redis.
type Router struct {
	directory Directory
	policies  Policies
	enforcer  Enforcer
	verifs    Verifications
	invites   InviteCounter
	logger    *zap.Logger

	// memberCache is a pure optimization: entries expire on TTL and a miss
	// always falls back to a live platform query. Never authoritative.
	memberCache *expirable.LRU[string, enums.MemberStatus]

	wg sync.WaitGroup
}

func New(directory Directory, policies Policies, enforcer Enforcer, verifs Verifications, invites InviteCounter, cfg Config, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MembershipCacheTTL <= 0 {
		cfg.MembershipCacheTTL = 30 * time.Second
	}
	if cfg.MembershipCacheSize <= 0 {
		cfg.MembershipCacheSize = 4096
	}

	return &Router{
		directory:   directory,
		policies:    policies,
		enforcer:    enforcer,
		verifs:      verifs,
		invites:     invites,
		logger:      logger,
		memberCache: expirable.NewLRU[string, enums.MemberStatus](cfg.MembershipCacheSize, nil, cfg.MembershipCacheTTL),
	}
}

// OnMessage is the host entry point for group messages. It returns
// immediately; the pipeline runs in its own goroutine.
func (r *Router) OnMessage(ctx context.Context, ev MessageEvent) {
	if !ev.IsGroup || ev.ChatID == 0 || ev.UserID <= 0 {
		return
	}

	r.spawn(ctx, func(evCtx context.Context) {
		if err := r.handleMessage(evCtx, ev); err != nil {
			r.logger.Warn("message pipeline failed",
				zap.Int64("chat_id", ev.ChatID),
				zap.Int64("user_id", ev.UserID),
				zap.Error(err))
		}
	})
}

// OnMembershipChange is the host entry point for member-status updates.
func (r *Router) OnMembershipChange(ctx context.Context, ev MembershipEvent) {
	if ev.ChatID == 0 || ev.UserID <= 0 {
		return
	}

	r.spawn(ctx, func(evCtx context.Context) {
		if err := r.handleMembershipChange(evCtx, ev); err != nil {
			r.logger.Warn("membership pipeline failed",
				zap.Int64("chat_id", ev.ChatID),
				zap.Int64("user_id", ev.UserID),
				zap.Error(err))
		}
	})
}

// OnCallback handles gate verify button presses.
func (r *Router) OnCallback(ctx context.Context, ev CallbackEvent) {
	if ev.ChatID == 0 || ev.UserID <= 0 {
		return
	}

	r.spawn(ctx, func(evCtx context.Context) {
		if err := r.handleCallback(evCtx, ev); err != nil {
			r.logger.Warn("callback pipeline failed",
				zap.Int64("chat_id", ev.ChatID),
				zap.Int64("user_id", ev.UserID),
				zap.Error(err))
		}
	})
}

// Wait blocks until all in-flight event pipelines finish. Used on shutdown.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) spawn(ctx context.Context, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		evCtx, cancel := context.WithTimeout(ctx, eventTimeout)
		defer cancel()
		fn(evCtx)
	}()
}

func (r *Router) handleMessage(ctx context.Context, ev MessageEvent) error {
	pol, err := r.policies.Get(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("policy lookup: %w", err)
	}

	// Gates come first: a gated user's message never reaches bio checks.
	if pol.SubscriptionGateActive() {
		if channel, gapped := r.subscriptionGap(ctx, pol, ev.UserID); gapped {
			_, err := r.enforcer.EnforceGate(ctx, pol, ev.UserID, ev.MessageID, ev.DisplayName, enums.ViolationReasonNotSubscribed, channel)
			return err
		}
	}

	if pol.VerificationGateActive() {
		gapped, err := r.verificationGap(ctx, pol, ev.UserID)
		if err != nil {
			return err
		}
		if gapped {
			_, err := r.enforcer.EnforceGate(ctx, pol, ev.UserID, ev.MessageID, ev.DisplayName, enums.ViolationReasonNotVerified, "")
			return err
		}
	}

	if pol.BioProtectionEnabled {
		bio, err := r.directory.UserBio(ctx, ev.UserID)
		if err != nil {
			// Absent bio is compliant; so is an unreadable one.
			r.logger.Debug("bio lookup failed",
				zap.Int64("user_id", ev.UserID),
				zap.Error(err))
		} else if verdict := detect.BioLink(bio); verdict.Violated {
			_, err := r.enforcer.EnforceBioViolation(ctx, pol, ev.UserID, ev.MessageID, ev.DisplayName, verdict.Evidence)
			return err
		}
	}

	if pol.AutoDeleteEnabled && pol.AutoDelete > 0 {
		r.enforcer.ScheduleAutoDelete(ev.ChatID, ev.MessageID, pol.AutoDelete)
	}

	return nil
}

func (r *Router) handleMembershipChange(ctx context.Context, ev MembershipEvent) error {
	if ev.NewStatus != enums.MemberStatusMember {
		return nil
	}
	if ev.ReferrerID <= 0 || ev.ReferrerID == ev.UserID {
		return nil
	}
	if r.invites == nil {
		return nil
	}

	count, err := r.invites.Increment(ctx, ev.ChatID, ev.ReferrerID)
	if err != nil {
		return fmt.Errorf("credit invite: %w", err)
	}

	r.logger.Info("invite credited",
		zap.Int64("chat_id", ev.ChatID),
		zap.Int64("referrer_id", ev.ReferrerID),
		zap.Int("invite_count", count))

	return nil
}

func (r *Router) handleCallback(ctx context.Context, ev CallbackEvent) error {
	chatID, ok := parseVerifyCallback(ev.Data)
	if !ok || chatID != ev.ChatID {
		return r.directory.AnswerCallback(ctx, ev.CallbackID, "Unknown action")
	}

	pol, err := r.policies.Get(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("policy lookup: %w", err)
	}

	// Re-check live: the verify press must never trust the cache.
	if pol.SubscriptionGateActive() {
		for _, channel := range pol.RequiredChannels {
			status, lookupErr := r.directory.ChannelMemberStatus(ctx, channel, ev.UserID)
			if verdict := detect.SubscriptionGap(channel, status, lookupErr); verdict.Violated {
				return r.directory.AnswerCallback(ctx, ev.CallbackID, fmt.Sprintf("You still need to join %s.", channel))
			}
			r.memberCache.Add(memberCacheKey(channel, ev.UserID), status)
		}
	}

	persistVerified := false
	if pol.VerificationGateActive() {
		gapped, err := r.verificationGap(ctx, pol, ev.UserID)
		if err != nil {
			return err
		}
		if gapped {
			return r.directory.AnswerCallback(ctx, ev.CallbackID, fmt.Sprintf("Not enough invites yet, %d required.", pol.RequiredInviteCount))
		}
		persistVerified = true
	}

	if err := r.enforcer.LiftGate(ctx, ev.ChatID, ev.UserID, persistVerified); err != nil {
		if answerErr := r.directory.AnswerCallback(ctx, ev.CallbackID, "Verification failed, try again."); answerErr != nil {
			r.logger.Debug("answer callback failed", zap.Error(answerErr))
		}
		return err
	}

	return r.directory.AnswerCallback(ctx, ev.CallbackID, "Verified, welcome back!")
}

// subscriptionGap returns the first required channel the user is missing
// from. Successful lookups are cached with a TTL; failures are not cached so
// the fail-closed verdict is re-tested on the next message.
func (r *Router) subscriptionGap(ctx context.Context, pol policy.ChatPolicy, userID int64) (string, bool) {
	for _, channel := range pol.RequiredChannels {
		key := memberCacheKey(channel, userID)

		status, ok := r.memberCache.Get(key)
		var lookupErr error
		if !ok {
			status, lookupErr = r.directory.ChannelMemberStatus(ctx, channel, userID)
			if lookupErr == nil {
				r.memberCache.Add(key, status)
			}
		}

		if verdict := detect.SubscriptionGap(channel, status, lookupErr); verdict.Violated {
			return channel, true
		}
	}

	return "", false
}

func (r *Router) verificationGap(ctx context.Context, pol policy.ChatPolicy, userID int64) (bool, error) {
	rec, err := r.verifs.Get(ctx, pol.ChatID, userID)
	if err != nil {
		return false, fmt.Errorf("verification lookup: %w", err)
	}

	inviteCount := 0
	if !rec.Verified && r.invites != nil {
		inviteCount, err = r.invites.Get(ctx, pol.ChatID, userID)
		if err != nil {
			return false, fmt.Errorf("invite lookup: %w", err)
		}
	}

	verdict := detect.VerificationGap(inviteCount, pol.RequiredInviteCount, rec.Verified)
	return verdict.Violated, nil
}

func parseVerifyCallback(data string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != "gate" || parts[1] != "verify" {
		return 0, false
	}
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || chatID == 0 {
		return 0, false
	}
	return chatID, true
}

func memberCacheKey(channel string, userID int64) string {
	return channel + ":" + strconv.FormatInt(userID, 10)
}
