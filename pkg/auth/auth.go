// Package auth issues and verifies the two credential forms the API
// surface accepts: short-lived JWT access/refresh token pairs for the
// interactive register/login/refresh flow, and long-lived API keys for
// machine callers. Passwords and API keys are never stored in the clear;
// bcrypt covers passwords (slow by design, small input) and a SHA-256
// digest covers API keys (fast lookup by hash, the raw key shown to the
// caller exactly once at creation).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/types"
)

// TokenType distinguishes an access token from a refresh token so one
// cannot be replayed as the other.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the JWT payload docpipe issues: subject is the tenant ID.
type Claims struct {
	Email string    `json:"email"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime, seconds
}

// Config holds the signing secret and token lifetimes. Zero lifetimes are
// rejected by New rather than silently defaulted, since a 0s token is a
// configuration bug, not a valid choice.
type Config struct {
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Authenticator issues and verifies JWTs, hashes passwords, and mints and
// looks up API keys, backed by the Job Store's tenant and API key tables.
type Authenticator struct {
	store jobstore.Store
	cfg   Config
}

// New builds an Authenticator. It returns an error if cfg is missing a
// secret key or either token TTL, since those are required for every
// token this Authenticator will ever issue.
func New(store jobstore.Store, cfg Config) (*Authenticator, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("auth: secret key is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("auth: access and refresh token TTLs must be positive")
	}
	return &Authenticator{store: store, cfg: cfg}, nil
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// Tenant.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueTokenPair mints a fresh access/refresh token pair for tenant.
func (a *Authenticator) IssueTokenPair(tenant *types.Tenant) (TokenPair, error) {
	access, err := a.sign(tenant, TokenAccess, a.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := a.sign(tenant, TokenRefresh, a.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(a.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (a *Authenticator) sign(tenant *types.Tenant, typ TokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: tenant.Email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenant.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses raw as an access token and returns its claims.
// It rejects a well-formed, validly-signed refresh token presented where
// an access token is expected.
func (a *Authenticator) VerifyAccessToken(raw string) (*Claims, error) {
	return a.verify(raw, TokenAccess)
}

// VerifyRefreshToken parses raw as a refresh token and returns its claims.
func (a *Authenticator) VerifyRefreshToken(raw string) (*Claims, error) {
	return a.verify(raw, TokenRefresh)
}

func (a *Authenticator) verify(raw string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, docerrors.E("auth.verify", docerrors.Unauthenticated, fmt.Errorf("invalid token: %w", err))
	}
	if claims.Type != want {
		return nil, docerrors.E("auth.verify", docerrors.Unauthenticated, fmt.Errorf("wrong token type: want %s got %s", want, claims.Type))
	}
	return claims, nil
}

// GenerateAPIKey mints a new random API key, returning the raw key (shown
// to the caller exactly once) and a types.APIKey record holding only its
// hash, ready for the caller to pass to jobstore.Store.CreateAPIKey.
func GenerateAPIKey(tenantID, label string) (raw string, key *types.APIKey, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate api key: %w", err)
	}
	raw = "dpk_" + hex.EncodeToString(buf)
	key = &types.APIKey{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		KeyHash:   HashAPIKey(raw),
		Label:     label,
		CreatedAt: time.Now(),
	}
	return raw, key, nil
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key, the form
// stored in APIKey.KeyHash and used to look the key back up.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AuthenticateAPIKey looks up raw by its hash, rejecting revoked keys, and
// returns the owning tenant. On success it touches the key's LastUsedAt.
func (a *Authenticator) AuthenticateAPIKey(raw string) (*types.Tenant, *types.APIKey, error) {
	hash := HashAPIKey(raw)
	key, err := a.store.GetAPIKeyByHash(hash)
	if err != nil {
		return nil, nil, docerrors.E("auth.AuthenticateAPIKey", docerrors.Unauthenticated, fmt.Errorf("unknown api key"))
	}
	if key.Revoked {
		return nil, nil, docerrors.E("auth.AuthenticateAPIKey", docerrors.Unauthenticated, fmt.Errorf("api key revoked"))
	}
	tenant, err := a.store.GetTenant(key.TenantID)
	if err != nil {
		return nil, nil, docerrors.E("auth.AuthenticateAPIKey", docerrors.Unauthenticated, fmt.Errorf("owning tenant not found"))
	}
	if err := a.store.TouchAPIKey(key.ID, time.Now()); err != nil {
		return nil, nil, fmt.Errorf("touch api key: %w", err)
	}
	return tenant, key, nil
}
