package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/config"
	pgrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/postgres"
	redrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/redis"
	policysvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
	warningsvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/warnings"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	policyRepo := pgrepo.NewPolicyRepo(pool)
	warnRepo := redrepo.NewWarnRepo(redisClient)

	policyService := policysvc.NewService(policyRepo, policysvc.Defaults{
		WarningLimit: cfg.Moderation.WarningLimit,
		MuteDuration: cfg.Moderation.MuteDuration,
	})
	ledger := warningsvc.NewLedger(warnRepo)

	RegisterRoutes(r, Dependencies{
		PolicyService:   policyService,
		WarningsService: ledger,
		Logger:          log,
		Config:          cfg,
	})

	server := &http.Server{
		Addr:         cfg.Ops.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
		IdleTimeout:  cfg.Ops.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("ops api started", zap.String("addr", a.cfg.Ops.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
