package enforce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/enums"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/markup"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/scheduler"
)

// Error taxonomy. ErrStore aborts the event; ErrActuation is logged and,
// depending on the action level, swallowed (warn) or proceeded past
// (escalation).
var (
	ErrActuation = errors.New("actuation error")
	ErrStore     = errors.New("store error")
)

const (
	// warnNoticeTTL applies to warning and escalation notices.
	warnNoticeTTL = 10 * time.Second
	// gateNoticeTTL keeps verification prompts around long enough to act on.
	gateNoticeTTL = 5 * time.Minute
)

// Platform is the narrow slice of the messaging client the actuator mutates
// the chat through.
type Platform interface {
	SendNotice(ctx context.Context, chatID int64, text string, buttons []markup.Button) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	MuteMember(ctx context.Context, chatID, userID int64, until time.Time) error
	RestrictSending(ctx context.Context, chatID, userID int64) error
	LiftRestrictions(ctx context.Context, chatID, userID int64) error
	CreateInviteLink(ctx context.Context, chatID int64, memberLimit int) (string, error)
}

type Ledger interface {
	RecordViolation(ctx context.Context, chatID, userID int64) (int, error)
	ResetWarnings(ctx context.Context, chatID, userID int64) error
}

type Verifications interface {
	Set(ctx context.Context, chatID, userID int64, verified bool) error
}

type TaskScheduler interface {
	Schedule(delay time.Duration, kind string, action scheduler.Action) (scheduler.Handle, error)
}

// Outcome reports what a single violation actuated, for logging and tests.
type Outcome struct {
	Actions   []enums.EnforcementAction
	Count     int
	Escalated bool
	NoticeID  int
}

type Actuator struct {
	platform  Platform
	ledger    Ledger
	verifs    Verifications
	scheduler TaskScheduler
	logger    *zap.Logger
	noticeTTL time.Duration
	now       func() time.Time
}

func NewActuator(platform Platform, ledger Ledger, verifs Verifications, sched TaskScheduler, logger *zap.Logger) *Actuator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Actuator{
		platform:  platform,
		ledger:    ledger,
		verifs:    verifs,
		scheduler: sched,
		logger:    logger,
		noticeTTL: warnNoticeTTL,
		now:       time.Now,
	}
}

// SetNoticeTTL overrides how long warning notices stay in the chat.
func (a *Actuator) SetNoticeTTL(ttl time.Duration) {
	if ttl > 0 {
		a.noticeTTL = ttl
	}
}

// EnforceBioViolation runs the warn/escalate state machine for one bio-link
// violation. The ledger increment happens first: if the store is down the
// event is dropped with no platform mutation at all.
func (a *Actuator) EnforceBioViolation(ctx context.Context, pol policy.ChatPolicy, userID int64, messageID int, displayName, evidence string) (Outcome, error) {
	if pol.ChatID == 0 || userID <= 0 {
		return Outcome{}, fmt.Errorf("invalid enforcement target")
	}
	if a.platform == nil || a.ledger == nil {
		return Outcome{}, fmt.Errorf("actuator dependencies are not configured")
	}

	count, err := a.ledger.RecordViolation(ctx, pol.ChatID, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: record violation: %v", ErrStore, err)
	}

	out := Outcome{Count: count}

	// The offending message goes regardless of warn vs escalate.
	if err := a.platform.DeleteMessage(ctx, pol.ChatID, messageID); err != nil {
		a.logger.Warn("delete message failed",
			zap.Int64("chat_id", pol.ChatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	} else {
		out.Actions = append(out.Actions, enums.EnforcementActionDelete)
	}

	if count < pol.WarningLimit {
		text := fmt.Sprintf(
			"%s, links are not allowed in your bio. Remove it or you will be muted. Warning %d/%d.",
			displayName, count, pol.WarningLimit,
		)
		noticeID, err := a.sendSelfDeletingNotice(ctx, pol.ChatID, text, nil, a.noticeTTL)
		if err != nil {
			// warn-level failure: logged, never blocks the next violation
			a.logger.Warn("warning notice failed",
				zap.Int64("chat_id", pol.ChatID),
				zap.Int64("user_id", userID),
				zap.Error(err))
			return out, nil
		}
		out.Actions = append(out.Actions, enums.EnforcementActionWarn)
		out.NoticeID = noticeID
		return out, nil
	}

	// Escalation. The reset is unconditional once the mute is attempted:
	// a chat where the bot lost admin rights must not strand the user one
	// warning below an unreachable mute forever.
	out.Escalated = true
	until := a.now().Add(pol.MuteDuration)
	muteErr := a.platform.MuteMember(ctx, pol.ChatID, userID, until)
	if muteErr != nil {
		a.logger.Error("mute failed, resetting warnings anyway",
			zap.Int64("chat_id", pol.ChatID),
			zap.Int64("user_id", userID),
			zap.Error(fmt.Errorf("%w: %v", ErrActuation, muteErr)))
	} else {
		out.Actions = append(out.Actions, enums.EnforcementActionMute)
		text := fmt.Sprintf(
			"%s reached %d warnings and is muted for %s (bio link: %s).",
			displayName, count, formatDuration(pol.MuteDuration), evidence,
		)
		noticeID, err := a.sendSelfDeletingNotice(ctx, pol.ChatID, text, nil, a.noticeTTL)
		if err != nil {
			a.logger.Warn("escalation notice failed",
				zap.Int64("chat_id", pol.ChatID),
				zap.Int64("user_id", userID),
				zap.Error(err))
		} else {
			out.NoticeID = noticeID
		}
	}

	if err := a.ledger.ResetWarnings(ctx, pol.ChatID, userID); err != nil {
		return out, fmt.Errorf("%w: reset warnings: %v", ErrStore, err)
	}
	out.Count = 0

	return out, nil
}

// EnforceGate handles a subscription or verification gap: best-effort delete,
// restrict sending, and a gating notice with the actions needed to get back.
func (a *Actuator) EnforceGate(ctx context.Context, pol policy.ChatPolicy, userID int64, messageID int, displayName string, reason enums.ViolationReason, channel string) (Outcome, error) {
	if pol.ChatID == 0 || userID <= 0 {
		return Outcome{}, fmt.Errorf("invalid enforcement target")
	}
	if a.platform == nil {
		return Outcome{}, fmt.Errorf("actuator dependencies are not configured")
	}

	var out Outcome

	if err := a.platform.DeleteMessage(ctx, pol.ChatID, messageID); err != nil {
		a.logger.Debug("gate message delete failed",
			zap.Int64("chat_id", pol.ChatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	} else {
		out.Actions = append(out.Actions, enums.EnforcementActionDelete)
	}

	if err := a.platform.RestrictSending(ctx, pol.ChatID, userID); err != nil {
		a.logger.Warn("restrict failed",
			zap.Int64("chat_id", pol.ChatID),
			zap.Int64("user_id", userID),
			zap.Error(fmt.Errorf("%w: %v", ErrActuation, err)))
	} else {
		out.Actions = append(out.Actions, enums.EnforcementActionRestrict)
	}

	text, buttons := a.gatePrompt(ctx, pol, displayName, reason, channel)
	noticeID, err := a.sendSelfDeletingNotice(ctx, pol.ChatID, text, buttons, gateNoticeTTL)
	if err != nil {
		a.logger.Warn("gate notice failed",
			zap.Int64("chat_id", pol.ChatID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return out, nil
	}
	out.NoticeID = noticeID

	return out, nil
}

// LiftGate restores sending rights after a successful re-check. For the
// force-join gate the verified flag is persisted so the user is never gated
// again; force-subscribe has no persisted flag and re-checks every message.
func (a *Actuator) LiftGate(ctx context.Context, chatID, userID int64, persistVerified bool) error {
	if chatID == 0 || userID <= 0 {
		return fmt.Errorf("invalid enforcement target")
	}
	if a.platform == nil {
		return fmt.Errorf("actuator dependencies are not configured")
	}

	if err := a.platform.LiftRestrictions(ctx, chatID, userID); err != nil {
		return fmt.Errorf("%w: lift restrictions: %v", ErrActuation, err)
	}

	if persistVerified {
		if a.verifs == nil {
			return fmt.Errorf("verification store is not configured")
		}
		if err := a.verifs.Set(ctx, chatID, userID, true); err != nil {
			return fmt.Errorf("%w: persist verification: %v", ErrStore, err)
		}
	}

	return nil
}

// ScheduleAutoDelete registers the timed removal of an ordinary message in a
// chat with auto-delete enabled. Fire-time failure (already removed by an
// admin) is the scheduler's silent no-op.
func (a *Actuator) ScheduleAutoDelete(chatID int64, messageID int, after time.Duration) {
	if a.scheduler == nil || a.platform == nil || after <= 0 {
		return
	}

	if _, err := a.scheduler.Schedule(after, "delete_message", func(taskCtx context.Context) error {
		return a.platform.DeleteMessage(taskCtx, chatID, messageID)
	}); err != nil {
		a.logger.Warn("schedule auto delete failed",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	}
}

func (a *Actuator) gatePrompt(ctx context.Context, pol policy.ChatPolicy, displayName string, reason enums.ViolationReason, channel string) (string, []markup.Button) {
	buttons := []markup.Button{{Label: "I've joined, verify", Data: verifyCallbackData(pol.ChatID)}}

	switch reason {
	case enums.ViolationReasonNotSubscribed:
		text := fmt.Sprintf(
			"%s, you must join %s before chatting here. Join and press verify.",
			displayName, channel,
		)
		if link := channelLink(channel); link != "" {
			buttons = append([]markup.Button{{Label: "Join channel", URL: link}}, buttons...)
		}
		return text, buttons
	default:
		text := fmt.Sprintf(
			"%s, invite %d member(s) to unlock chatting. Share your link and press verify.",
			displayName, pol.RequiredInviteCount,
		)
		if link, err := a.platform.CreateInviteLink(ctx, pol.ChatID, 0); err != nil {
			a.logger.Warn("create invite link failed",
				zap.Int64("chat_id", pol.ChatID),
				zap.Error(err))
		} else if link != "" {
			buttons = append([]markup.Button{{Label: "Your invite link", URL: link}}, buttons...)
		}
		return text, buttons
	}
}

// sendSelfDeletingNotice sends a notice and registers exactly one deletion
// task for it.
func (a *Actuator) sendSelfDeletingNotice(ctx context.Context, chatID int64, text string, buttons []markup.Button, ttl time.Duration) (int, error) {
	noticeID, err := a.platform.SendNotice(ctx, chatID, text, buttons)
	if err != nil {
		return 0, fmt.Errorf("%w: send notice: %v", ErrActuation, err)
	}

	if a.scheduler != nil {
		if _, err := a.scheduler.Schedule(ttl, "delete_notice", func(taskCtx context.Context) error {
			return a.platform.DeleteMessage(taskCtx, chatID, noticeID)
		}); err != nil {
			a.logger.Warn("schedule notice cleanup failed",
				zap.Int64("chat_id", chatID),
				zap.Int("notice_id", noticeID),
				zap.Error(err))
		}
	}

	return noticeID, nil
}

func verifyCallbackData(chatID int64) string {
	return fmt.Sprintf("gate:verify:%d", chatID)
}

func channelLink(channel string) string {
	c := strings.TrimSpace(channel)
	if strings.HasPrefix(c, "https://") || strings.HasPrefix(c, "http://") {
		return c
	}
	if strings.HasPrefix(c, "@") {
		return "https://t.me/" + strings.TrimPrefix(c, "@")
	}
	return ""
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return d.String()
}
