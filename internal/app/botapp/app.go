package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/config"
	tginfra "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/infra/telegram"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/jobs/cleanup"
	pgrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/postgres"
	redrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/redis"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/enforce"
	policysvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/router"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/scheduler"
	warningsvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/warnings"
)

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot

	policies   *policysvc.Service
	ledger     *warningsvc.Ledger
	invites    *redrepo.InviteRepo
	tasks      *scheduler.Scheduler
	router     *router.Router
	cleanupJob *cleanup.Job
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	bot, err := tginfra.NewBot(cfg.Bot.Token)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	policyRepo := pgrepo.NewPolicyRepo(pool)
	verificationRepo := pgrepo.NewVerificationRepo(pool)
	warnRepo := redrepo.NewWarnRepo(redisClient)
	inviteRepo := redrepo.NewInviteRepo(redisClient)

	policies := policysvc.NewService(policyRepo, policysvc.Defaults{
		WarningLimit: cfg.Moderation.WarningLimit,
		MuteDuration: cfg.Moderation.MuteDuration,
	})
	ledger := warningsvc.NewLedger(warnRepo)
	tasks := scheduler.New(logger)

	actuator := enforce.NewActuator(bot, ledger, verificationRepo, tasks, logger)
	actuator.SetNoticeTTL(cfg.Moderation.NoticeTTL)

	eventRouter := router.New(bot, policies, actuator, verificationRepo, inviteRepo, router.Config{
		MembershipCacheTTL:  cfg.Moderation.MembershipCacheTTL,
		MembershipCacheSize: cfg.Moderation.MembershipCacheSize,
	}, logger)

	cleanupJob := cleanup.New(verificationRepo, cfg.Moderation.VerificationRetention, logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		postgres:   pool,
		redis:      redisClient,
		bot:        bot,
		policies:   policies,
		ledger:     ledger,
		invites:    inviteRepo,
		tasks:      tasks,
		router:     eventRouter,
		cleanupJob: cleanupJob,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.runCleanupLoop(ctx)
	}()
	go func() {
		errCh <- a.bot.Listen(ctx, tginfra.Handlers{
			OnMessage:  a.handleMessage,
			OnCommand:  a.handleCommand,
			OnMember:   a.handleMember,
			OnCallback: a.handleCallback,
		})
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

// Close drains in-flight event pipelines, then releases the stores.
func (a *App) Close() {
	a.router.Wait()
	a.tasks.Close()
	a.postgres.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("close redis client", zap.Error(err))
	}
}

func (a *App) runCleanupLoop(ctx context.Context) error {
	interval := a.cfg.Bot.CleanupInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	if err := a.cleanupJob.Run(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.cleanupJob.Run(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *App) handleMessage(ctx context.Context, update tginfra.MessageUpdate) {
	a.router.OnMessage(ctx, router.MessageEvent{
		ChatID:      update.ChatID,
		UserID:      update.UserID,
		MessageID:   update.MessageID,
		DisplayName: update.DisplayName,
		IsGroup:     update.IsGroup,
	})
}

func (a *App) handleMember(ctx context.Context, update tginfra.MemberUpdate) {
	a.router.OnMembershipChange(ctx, router.MembershipEvent{
		ChatID:     update.ChatID,
		UserID:     update.UserID,
		ReferrerID: update.ReferrerID,
		NewStatus:  update.NewStatus,
	})
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) {
	a.router.OnCallback(ctx, router.CallbackEvent{
		CallbackID:  update.CallbackID,
		ChatID:      update.ChatID,
		UserID:      update.UserID,
		Data:        update.Data,
		DisplayName: update.DisplayName,
	})
}

// handleCommand serves the admin settings surface. Errors are replied and
// logged, never returned: a bad command must not stop the listener.
func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if !update.IsGroup {
		return nil
	}

	switch update.Command {
	case "bioprotect", "warnlimit", "warnings", "resetwarns":
	default:
		return nil
	}

	if !update.SenderAdmin {
		a.reply(ctx, update.ChatID, "Only chat admins can use this command.")
		return nil
	}

	if err := a.runCommand(ctx, update); err != nil {
		a.logger.Warn("admin command failed",
			zap.String("command", update.Command),
			zap.Int64("chat_id", update.ChatID),
			zap.Int64("user_id", update.UserID),
			zap.Error(err))
		a.reply(ctx, update.ChatID, "Command failed, try again.")
	}

	return nil
}

func (a *App) runCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	args := strings.Fields(update.Args)

	switch update.Command {
	case "bioprotect":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			a.reply(ctx, update.ChatID, "Usage: /bioprotect on|off")
			return nil
		}
		enabled := args[0] == "on"
		if err := a.policies.SetBioProtection(ctx, update.ChatID, enabled); err != nil {
			return err
		}
		if enabled {
			a.reply(ctx, update.ChatID, "Bio link protection is now on.")
		} else {
			a.reply(ctx, update.ChatID, "Bio link protection is now off.")
		}

	case "warnlimit":
		if len(args) != 1 {
			a.reply(ctx, update.ChatID, "Usage: /warnlimit N")
			return nil
		}
		limit, err := strconv.Atoi(args[0])
		if err != nil {
			a.reply(ctx, update.ChatID, "Usage: /warnlimit N")
			return nil
		}
		if err := a.policies.SetWarningLimit(ctx, update.ChatID, limit); err != nil {
			if errors.Is(err, policysvc.ErrValidation) {
				a.reply(ctx, update.ChatID, "Warning limit must be between 1 and 100.")
				return nil
			}
			return err
		}
		a.reply(ctx, update.ChatID, fmt.Sprintf("Warning limit set to %d.", limit))

	case "warnings":
		target, ok := targetUserID(args, update.UserID)
		if !ok {
			a.reply(ctx, update.ChatID, "Usage: /warnings [user id]")
			return nil
		}
		record, err := a.ledger.Warnings(ctx, update.ChatID, target)
		if err != nil {
			return err
		}
		if !record.Exists {
			a.reply(ctx, update.ChatID, fmt.Sprintf("User %d has no warnings.", target))
			return nil
		}
		a.reply(ctx, update.ChatID, fmt.Sprintf("User %d has %d warning(s).", target, record.Count))

	case "resetwarns":
		target, ok := targetUserID(args, 0)
		if !ok {
			a.reply(ctx, update.ChatID, "Usage: /resetwarns <user id>")
			return nil
		}
		if err := a.ledger.ResetWarnings(ctx, update.ChatID, target); err != nil {
			return err
		}
		a.reply(ctx, update.ChatID, fmt.Sprintf("Warnings reset for user %d.", target))
	}

	return nil
}

func targetUserID(args []string, fallback int64) (int64, bool) {
	if len(args) == 0 {
		if fallback > 0 {
			return fallback, true
		}
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (a *App) reply(ctx context.Context, chatID int64, text string) {
	if err := a.bot.SendText(ctx, chatID, text); err != nil {
		a.logger.Debug("send command reply failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}
