package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "kind" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrWrongKind    = errors.New("auth: wrong token kind")
	ErrTokenRevoked = errors.New("auth: refresh token revoked")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload. The subject is the identity id.
type Claims struct {
	Role string `json:"role"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens. Every refresh token it
// issues is recorded in its RefreshStore and can be spent exactly once.
type Issuer struct {
	name       string
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	refresh    RefreshStore
	now        func() time.Time
}

// NewIssuer creates an issuer backed by an in-memory refresh store. name is
// written to and checked against the iss claim.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		name:       name,
		key:        []byte(key),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		refresh:    NewMemoryRefreshStore(),
		now:        time.Now,
	}
}

// WithRefreshStore replaces the refresh token store and returns i.
func (i *Issuer) WithRefreshStore(s RefreshStore) *Issuer {
	i.refresh = s
	return i
}

// Issue issues signed access and refresh tokens for subject and records the
// refresh token.
func (i *Issuer) Issue(ctx context.Context, subject, role string) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	accessToken, err := i.sign(uuid.NewString(), subject, role, KindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refreshToken, err := i.sign(jti, subject, role, KindRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	if err := i.refresh.Save(ctx, jti, subject, refreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("auth: save refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (i *Issuer) sign(jti, subject, role, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    i.name,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse validates a token of the given kind and returns its claims.
func (i *Issuer) Parse(tokenStr, kind string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.name != "" {
		opts = append(opts, jwt.WithIssuer(i.name))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}
	return *claims, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A token that was already spent or revoked is rejected.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := i.spend(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return i.Issue(ctx, claims.Subject, claims.Role)
}

// Revoke ends the session behind a refresh token. Revoking a token twice is
// not an error.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	_, err := i.spend(ctx, refreshToken)
	if errors.Is(err, ErrTokenRevoked) {
		return nil
	}
	return err
}

func (i *Issuer) spend(ctx context.Context, refreshToken string) (Claims, error) {
	claims, err := i.Parse(refreshToken, KindRefresh)
	if err != nil {
		return Claims{}, err
	}
	if claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	ok, err := i.refresh.Revoke(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	if !ok {
		return Claims{}, ErrTokenRevoked
	}
	return claims, nil
}
