package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kindertrack/kindertrack-auth/internal/config"
	"github.com/kindertrack/kindertrack-auth/internal/domain"
	"github.com/kindertrack/kindertrack-auth/internal/password"
	"github.com/kindertrack/kindertrack-auth/internal/repository"
)

// EnsureAdmin seeds the configured admin account on startup if missing, so a
// fresh deployment has a way in.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, users, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) error {
	username := strings.ToLower(strings.TrimSpace(cfg.AdminUsername))
	if username == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return errors.New("admin bootstrap missing required config")
	}

	if _, err := users.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := users.Create(ctx, domain.User{
		ID:           node.Generate().Int64(),
		Username:     username,
		PasswordHash: hashed,
		Name:         "Administrator",
		Role:         domain.RoleAdmin,
		Status:       "ACTIVE",
	})
	if err != nil {
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin user created",
			zap.String("username", created.Username),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
