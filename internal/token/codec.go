package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/kindertrack/kindertrack-auth/internal/domain"
)

// Kind discriminates access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Verification failures callers are expected to branch on.
var (
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformed        = errors.New("token malformed")
	ErrWrongType        = errors.New("token type mismatch")
)

// Claims is the decoded, verified payload of a token.
type Claims struct {
	Subject   int64
	Username  string
	Role      domain.Role
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal rebuilds the identity embedded in access-token claims. Refresh
// tokens carry no username or role, so this is only meaningful for access
// claims.
func (c Claims) Principal() domain.Principal {
	return domain.Principal{ID: c.Subject, Username: c.Username, Role: c.Role}
}

type customClaims struct {
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Type     string `json:"type"`
}

// Codec signs and verifies bearer tokens with an HMAC secret. Verification
// is a pure function of (token, secret, now), so a Codec is safe for
// concurrent use.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec for the given signing secret and lifetimes. The
// secret strength policy lives in CheckSecret; the caller decides whether a
// weak secret is fatal (production) or only logged (development), so NewCodec
// itself rejects only an empty secret.
func NewCodec(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("signing secret is empty")
	}
	c := &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) lifetime(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a token of the given kind for the principal. Access tokens
// embed username and role; refresh tokens carry only the subject, so a
// refresh token alone can never authorize a business action.
func (c *Codec) Issue(principal domain.Principal, kind Kind) (string, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("issue token: unknown kind %q", kind)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: c.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := c.now().UTC()
	std := gojwt.Claims{
		Subject:  strconv.FormatInt(principal.ID, 10),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(c.lifetime(kind))),
	}

	custom := customClaims{Type: string(kind)}
	if kind == KindAccess {
		custom.Username = principal.Username
		custom.Role = string(principal.Role)
	}

	signed, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return signed, nil
}

// Verify decodes the token, checks its signature and expiry, and returns the
// claims. Failures map onto ErrMalformed, ErrInvalidSignature, and
// ErrExpired so the caller can answer with distinct codes.
func (c *Codec) Verify(token string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(c.secret, &std, &custom); err != nil {
		if errors.Is(err, gojose.ErrCryptoFailure) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Zero leeway: a token is invalid the instant exp passes.
	if err := std.ValidateWithLeeway(gojwt.Expected{Time: c.now().UTC()}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	subject, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrMalformed)
	}

	claims := &Claims{
		Subject:  subject,
		Username: custom.Username,
		Role:     domain.Role(custom.Role),
		Kind:     Kind(custom.Type),
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}
	return claims, nil
}

// VerifyAccess verifies the token and requires it to be an access token.
func (c *Codec) VerifyAccess(token string) (*Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, ErrWrongType
	}
	return claims, nil
}

// VerifyRefresh verifies the token and requires it to be a refresh token. An
// access token presented here is rejected, never silently accepted.
func (c *Codec) VerifyRefresh(token string) (*Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, ErrWrongType
	}
	return claims, nil
}

// ExpiryOf decodes the expiry of a token without verifying it. Used at
// logout to bound a revocation entry even when the token is already past its
// lifetime. Returns ErrMalformed when the token cannot be decoded at all.
func (c *Codec) ExpiryOf(token string) (time.Time, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var std gojwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&std); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if std.Expiry == nil {
		return time.Time{}, fmt.Errorf("%w: no expiry", ErrMalformed)
	}
	return std.Expiry.Time(), nil
}

// MinSecretLen is the minimum accepted HMAC secret length in bytes.
const MinSecretLen = 32

var placeholderSecrets = map[string]struct{}{
	"secret":                           {},
	"changeme":                         {},
	"change-me":                        {},
	"password":                         {},
	"dev-secret":                       {},
	"your-secret-key":                  {},
	"your-256-bit-secret":              {},
	"supersecret":                      {},
	"0123456789abcdef0123456789abcdef": {},
}

// CheckSecret rejects signing secrets that are too short or match known
// example values. Callers decide whether a failure is fatal (production) or
// merely logged (development).
func CheckSecret(secret string) error {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return errors.New("signing secret is empty")
	}
	if len(trimmed) < MinSecretLen {
		return fmt.Errorf("signing secret shorter than %d bytes", MinSecretLen)
	}
	if _, ok := placeholderSecrets[strings.ToLower(trimmed)]; ok {
		return errors.New("signing secret matches a known placeholder value")
	}
	return nil
}
