package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kindertrack/kindertrack-auth/internal/bootstrap"
	"github.com/kindertrack/kindertrack-auth/internal/config"
	"github.com/kindertrack/kindertrack-auth/internal/csrf"
	httptransport "github.com/kindertrack/kindertrack-auth/internal/http"
	"github.com/kindertrack/kindertrack-auth/internal/http/handler"
	httpmiddleware "github.com/kindertrack/kindertrack-auth/internal/http/middleware"
	"github.com/kindertrack/kindertrack-auth/internal/janitor"
	"github.com/kindertrack/kindertrack-auth/internal/lockout"
	apimiddleware "github.com/kindertrack/kindertrack-auth/internal/middleware"
	"github.com/kindertrack/kindertrack-auth/internal/repository"
	"github.com/kindertrack/kindertrack-auth/internal/revocation"
	"github.com/kindertrack/kindertrack-auth/internal/server"
	"github.com/kindertrack/kindertrack-auth/internal/service"
	"github.com/kindertrack/kindertrack-auth/internal/telemetry"
	"github.com/kindertrack/kindertrack-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newTokenCodec,
			newSecurityStores,
			newRateLimiter,
			service.NewAuthService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			newCSRFGuard,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

// newTokenCodec builds the signing codec. Production rejects a weak secret
// in config.Load already; development only logs it.
func newTokenCodec(cfg config.Config, logger *zap.Logger) (*token.Codec, error) {
	if !cfg.Production() {
		if err := token.CheckSecret(cfg.JWTSecret); err != nil {
			logger.Warn("weak signing secret, rejected in production", zap.Error(err))
		}
	}
	return token.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

// newSecurityStores picks the store backend: redis when REDIS_ADDR is set so
// replicas share revocation, lockout, and CSRF state; otherwise in-process
// maps with sweep janitors bound to the fx lifecycle.
func newSecurityStores(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (revocation.Store, lockout.Store, csrf.Store, error) {
	policy := lockout.Policy{
		MaxAttempts: cfg.LockoutMaxAttempts,
		Window:      cfg.LockoutWindow,
		Duration:    cfg.LockoutDuration,
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		logger.Info("security stores backed by redis", zap.String("addr", cfg.RedisAddr))
		return revocation.NewRedis(client), lockout.NewRedis(client, policy), csrf.NewRedis(client, cfg.CSRFTTL), nil
	}

	revocations := revocation.NewMemory()
	lockouts := lockout.NewMemory(policy)
	csrfStore := csrf.NewMemory(cfg.CSRFTTL)

	var sweepers []*janitor.Janitor
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweepers = []*janitor.Janitor{
				janitor.Start(cfg.SweepInterval, revocations.Sweep),
				janitor.Start(cfg.SweepInterval, lockouts.Cleanup),
				janitor.Start(cfg.SweepInterval, csrfStore.Sweep),
			}
			return nil
		},
		OnStop: func(context.Context) error {
			for _, s := range sweepers {
				s.Stop()
			}
			return nil
		},
	})

	logger.Info("security stores in process memory; run one replica or configure REDIS_ADDR")
	return revocations, lockouts, csrfStore, nil
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Service: authService}
}

func newCSRFGuard(store csrf.Store) *httpmiddleware.CSRFGuard {
	return &httpmiddleware.CSRFGuard{Store: store}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
