package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"foodforge/internal/auth"
	"foodforge/internal/notify"
)

const minPasswordLen = 8

// ValidationError describes a rejected registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("identity: %s %s", e.Field, e.Reason)
}

// RegisterInput is what a new identity supplies.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

func (in *RegisterInput) normalize() error {
	in.Email = NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Role == "" {
		in.Role = RoleStudent
	}
	switch {
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return &ValidationError{Field: "email", Reason: "must be a valid address"}
	case len(in.Password) < minPasswordLen:
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	case in.FullName == "":
		return &ValidationError{Field: "full_name", Reason: "is required"}
	case !in.Role.Valid():
		return &ValidationError{Field: "role", Reason: "must be student or admin"}
	}
	return nil
}

// ProviderOptions configures a Provider. Notifier and Logger are optional.
type ProviderOptions struct {
	Notifier   notify.Notifier
	Logger     *zap.Logger
	BcryptCost int
}

// Provider registers and authenticates identities and resolves sessions.
type Provider struct {
	store    Store
	issuer   *auth.Issuer
	notifier notify.Notifier
	logger   *zap.Logger
	cost     int

	// dummyHash is compared against when the email is unknown so both
	// outcomes cost one bcrypt comparison.
	dummyHash []byte
	compare   func(hash, password []byte) error
}

func NewProvider(store Store, issuer *auth.Issuer, opts ProviderOptions) *Provider {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("foodforge-unknown-account"), opts.BcryptCost)
	if err != nil {
		opts.Logger.Warn("generate dummy password hash", zap.Error(err))
	}
	return &Provider{
		store:     store,
		issuer:    issuer,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		cost:      opts.BcryptCost,
		dummyHash: dummy,
		compare:   bcrypt.CompareHashAndPassword,
	}
}

// Store returns the backing identity store.
func (p *Provider) Store() Store { return p.store }

// Register creates a new identity and announces it on the profiles table.
func (p *Provider) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	if err := in.normalize(); err != nil {
		return Identity{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: hash password: %w", err)
	}
	id := Identity{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FullName:     in.FullName,
		Role:         in.Role,
		CreatedAt:    time.Now().UTC(),
		PasswordHash: string(hash),
	}
	if err := p.store.Create(ctx, id); err != nil {
		return Identity{}, err
	}
	p.logger.Info("identity registered", zap.String("id", id.ID), zap.String("role", string(id.Role)))
	p.publish(ctx, id)
	return id, nil
}

func (p *Provider) publish(ctx context.Context, id Identity) {
	if p.notifier == nil {
		return
	}
	evt, err := notify.NewInsert(notify.TableProfiles, id)
	if err == nil {
		err = p.notifier.Publish(context.WithoutCancel(ctx), evt)
	}
	if err != nil {
		p.logger.Warn("publish profile event", zap.String("id", id.ID), zap.Error(err))
	}
}

// Authenticate checks credentials and issues a session token pair.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (Identity, auth.TokenPair, error) {
	id, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = p.compare(p.dummyHash, []byte(password))
			return Identity{}, auth.TokenPair{}, ErrInvalidCredentials
		}
		return Identity{}, auth.TokenPair{}, err
	}
	if err := p.compare([]byte(id.PasswordHash), []byte(password)); err != nil {
		return Identity{}, auth.TokenPair{}, ErrInvalidCredentials
	}
	pair, err := p.issuer.Issue(ctx, id.ID, string(id.Role))
	if err != nil {
		return Identity{}, auth.TokenPair{}, fmt.Errorf("identity: issue tokens: %w", err)
	}
	return id, pair, nil
}

// Session resolves the identity behind verified session claims.
func (p *Provider) Session(ctx context.Context, claims auth.Claims) (Identity, error) {
	if claims.Subject == "" {
		return Identity{}, ErrAuthRequired
	}
	id, err := p.store.Get(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrAuthRequired
	}
	return id, err
}

// FullName satisfies attendance.NameResolver.
func (p *Provider) FullName(ctx context.Context, id string) (string, error) {
	return p.store.FullName(ctx, id)
}
