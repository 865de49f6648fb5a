package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kindertrack/kindertrack-auth/internal/config"
	"github.com/kindertrack/kindertrack-auth/internal/domain"
	"github.com/kindertrack/kindertrack-auth/internal/lockout"
	pw "github.com/kindertrack/kindertrack-auth/internal/password"
	"github.com/kindertrack/kindertrack-auth/internal/repository"
	"github.com/kindertrack/kindertrack-auth/internal/revocation"
	"github.com/kindertrack/kindertrack-auth/internal/token"
)

// TokenPair is the login/refresh response body.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthService sequences the login, refresh, logout, and verification flows
// across the token codec and the three security stores. It reads the stores
// only through their public methods; each store owns its own state.
type AuthService struct {
	users       repository.UserRepository
	codec       *token.Codec
	revocations revocation.Store
	lockouts    lockout.Store
	cfg         config.Config
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, codec *token.Codec, revocations revocation.Store, lockouts lockout.Store, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:       users,
		codec:       codec,
		revocations: revocations,
		lockouts:    lockouts,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("github.com/kindertrack/kindertrack-auth/internal/service"),
	}
}

// Login authenticates a username/password pair. The lockout guard is
// consulted before the credential check and updated after it: a locked
// account fails fast even with the correct password, a failed check records
// the attempt, a successful one clears the history.
func (s *AuthService) Login(ctx context.Context, clientIP, username, password string) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	key := lockout.Key(clientIP, username)

	status, err := s.lockouts.Status(ctx, key)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lockout status: %w", err)
	}
	if status.Locked {
		return nil, errAccountLocked(status.RetryAfter)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
			return nil, fmt.Errorf("load user: %w", err)
		}
		return nil, s.failLogin(ctx, key, username)
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return nil, s.failLogin(ctx, key, username)
	}

	if err := s.lockouts.Reset(ctx, key); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lockout reset: %w", err)
	}

	pair, err := s.issuePair(user.Principal())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.audit("login.success", "user_id", user.ID, "username", user.Username)
	return pair, nil
}

// failLogin records the attempt and returns the uniform credential error.
// The error is identical for unknown accounts and wrong passwords, and the
// attempt that crosses the lockout threshold still reports bad credentials;
// only the next call observes the lock.
func (s *AuthService) failLogin(ctx context.Context, key, username string) error {
	result, err := s.lockouts.RecordFailure(ctx, key)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if result.Locked {
		s.audit("login.locked", "username", username, "retry_after", result.RetryAfter.String())
	} else {
		s.audit("login.failure", "username", username, "remaining_attempts", result.RemainingAttempts)
	}
	return errInvalidCredentials()
}

// Refresh mints a new access token from a refresh token. Role and username
// are re-read from the account store, never taken from the refresh token, so
// a refresh token alone cannot authorize business actions and role changes
// take effect at the next refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	revoked, err := s.revocations.IsRevoked(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return nil, errToken(CodeTokenRevoked, "Refresh token has been revoked.")
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errToken(CodeTokenInvalid, "Account no longer exists.")
		}
		span.RecordError(err)
		return nil, fmt.Errorf("refresh load user: %w", err)
	}

	access, err := s.codec.Issue(user.Principal(), token.KindAccess)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.audit("refresh.success", "user_id", user.ID)
	return &TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes the presented tokens until their natural expiry. Tokens
// that no longer decode are ignored; there is nothing left to revoke.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	for _, t := range []string{accessToken, refreshToken} {
		if t == "" {
			continue
		}
		expiresAt, err := s.codec.ExpiryOf(t)
		if err != nil {
			continue
		}
		if err := s.revocations.Revoke(ctx, t, expiresAt); err != nil {
			span.RecordError(err)
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	s.audit("logout")
	return nil
}

// Authenticate resolves a bearer token to a principal: revocation first,
// then signature and expiry, then the access-kind check. Revocation
// dominates expiry so a revoked token reports TOKEN_REVOKED even while it
// would still verify.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Principal, error) {
	revoked, err := s.revocations.IsRevoked(ctx, accessToken)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return domain.Principal{}, errToken(CodeTokenRevoked, "Token has been revoked.")
	}

	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return domain.Principal{}, tokenError(err)
	}
	return claims.Principal(), nil
}

// ChangePassword verifies the current password, stores a new hash, and
// revokes the presented tokens so the credential rotation takes effect
// immediately. The refresh token matters most here: without revoking it, a
// stolen one would keep minting access tokens across the rotation.
func (s *AuthService) ChangePassword(ctx context.Context, principal domain.Principal, accessToken, refreshToken, current, next string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ChangePassword")
	defer span.End()

	user, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load user: %w", err)
	}

	valid, err := pw.Verify(current, user.PasswordHash)
	if err != nil || !valid {
		return errInvalidCredentials()
	}

	hashed, err := pw.Hash(next)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hashed); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store password: %w", err)
	}

	for _, t := range []string{accessToken, refreshToken} {
		if t == "" {
			continue
		}
		expiresAt, err := s.codec.ExpiryOf(t)
		if err != nil {
			continue
		}
		if err := s.revocations.Revoke(ctx, t, expiresAt); err != nil {
			span.RecordError(err)
			return fmt.Errorf("revoke token: %w", err)
		}
	}

	s.audit("password.changed", "user_id", user.ID)
	return nil
}

// tokenError maps codec failures onto client-facing codes. Expiry keeps its
// own code; signature, structure, and kind mismatches all collapse into
// TOKEN_INVALID to avoid giving a forger feedback.
func tokenError(err error) *AuthError {
	switch {
	case errors.Is(err, token.ErrExpired):
		return errToken(CodeTokenExpired, "Token has expired.")
	case errors.Is(err, token.ErrWrongType),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrMalformed):
		return errToken(CodeTokenInvalid, "Invalid token.")
	default:
		return errToken(CodeTokenInvalid, "Invalid token.")
	}
}

func (s *AuthService) issuePair(principal domain.Principal) (*TokenPair, error) {
	access, err := s.codec.Issue(principal, token.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(principal, token.KindRefresh)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
