package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/api"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/db"
	"github.com/parley-chat/parley/internal/limiter"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/migrate"
	"github.com/parley-chat/parley/internal/observ"
	"github.com/parley-chat/parley/internal/repository/postgres"
	"github.com/parley-chat/parley/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observ.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrateOnStart {
		if err := migrate.Up(ctx, cfg.Database.DSN, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	database, err := db.New(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	checks := []api.DependencyCheck{
		{Name: "database", Probe: database.Health},
	}

	// Without Redis the limiter degrades to a no-op: logins still work,
	// they are just not throttled.
	var lim limiter.Limiter = limiter.Noop{}
	if cfg.Limiter.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer rdb.Close()

		lim = limiter.NewRedis(rdb, cfg.Limiter.Window, cfg.Limiter.MaxAttempts, cfg.Limiter.BlockFor)
		checks = append(checks, api.DependencyCheck{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	provider := llm.NewOpenAI(cfg.LLM)

	pool := database.Pool()
	users := postgres.NewUserStore(pool)
	convs := postgres.NewConversationStore(pool)

	authSvc := service.NewAuthService(users, tokens, lim, cfg.Auth.BcryptCost, logger)
	convSvc := service.NewConversationService(convs, logger)
	chatSvc := service.NewChatService(convs, provider, cfg.LLM, logger)

	if cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Handlers{
		Auth:          api.NewAuthHandler(authSvc, logger),
		Conversations: api.NewConversationHandler(convSvc, logger),
		Chat:          api.NewChatHandler(chatSvc, logger),
		Health:        api.NewHealthHandler(checks, logger),
	}, tokens, logger, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
