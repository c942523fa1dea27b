package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adminory/adminory/internal/shared"
)

// Notifier delivers account emails carrying one-time tokens.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendPasswordResetEmail(ctx context.Context, email, name, token string) error
}

// ServiceDeps bundles Service collaborators.
type ServiceDeps struct {
	Repo     Repository
	Tokens   *TokenService
	OneTime  OneTimeStore
	Hasher   *PasswordHasher
	Notifier Notifier
	Audit    shared.AuditRecorder
	Logger   *slog.Logger

	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenService
	onetime  OneTimeStore
	hasher   *PasswordHasher
	notifier Notifier
	audit    shared.AuditRecorder
	logger   *slog.Logger
	now      func() time.Time

	resetTTL  time.Duration
	verifyTTL time.Duration
}

// NewService constructs a new Service.
func NewService(deps ServiceDeps) *Service {
	svc := &Service{
		repo:      deps.Repo,
		tokens:    deps.Tokens,
		onetime:   deps.OneTime,
		hasher:    deps.Hasher,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		logger:    deps.Logger,
		now:       time.Now,
		resetTTL:  deps.PasswordResetTTL,
		verifyTTL: deps.EmailVerificationTTL,
	}
	if svc.hasher == nil {
		svc.hasher = NewPasswordHasher(DefaultArgon2Params)
	}
	if svc.audit == nil {
		svc.audit = shared.NopAudit{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.resetTTL <= 0 {
		svc.resetTTL = time.Hour
	}
	if svc.verifyTTL <= 0 {
		svc.verifyTTL = 24 * time.Hour
	}
	return svc
}

// Tokens exposes the token service for middleware wiring.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates an account and sends the verification email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(in.Email),
		PasswordHash: hash,
		Name:         in.Name,
		Role:         RoleUser,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, shared.AuditLog{ActorID: user.ID, Action: "user.registered", Entity: "user", EntityID: user.ID.String()})

	token, err := s.onetime.Mint(ctx, PurposeEmailVerification, user.ID.String(), s.verifyTTL)
	if err != nil {
		s.logger.Warn("mint verification token", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		return user, nil
	}
	if err := s.notifier.SendVerificationEmail(ctx, user.Email, user.Name, token); err != nil {
		s.logger.Warn("enqueue verification email", slog.String("user_id", user.ID.String()), slog.Any("error", err))
	}
	return user, nil
}

// LoginResult is returned by Login.
type LoginResult struct {
	TokenPair
	User *User `json:"user"`
}

// Login authenticates email/password credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() {
		return nil, shared.ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrPrincipalInactive
	}

	pair, err := s.tokens.Issue(ctx, user.Principal())
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("touch last login", slog.String("user_id", user.ID.String()), slog.Any("error", err))
	} else {
		user.LastLoginAt = &now
	}
	return &LoginResult{TokenPair: pair, User: user}, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes one refresh token of the calling principal.
func (s *Service) Logout(ctx context.Context, principal shared.Principal, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, principal.ID, refreshToken); err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{ActorID: principal.ID, Action: "user.logout", Entity: "user", EntityID: principal.ID.String()})
	return nil
}

// Me loads the current principal.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// VerifyEmail redeems an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	id, err := s.redeemSubject(ctx, PurposeEmailVerification, token)
	if err != nil {
		return err
	}
	if err := s.repo.MarkEmailVerified(ctx, id, s.now()); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrOneTimeTokenInvalid
		}
		return err
	}
	s.record(ctx, shared.AuditLog{ActorID: id, Action: "user.email_verified", Entity: "user", EntityID: id.String()})
	return nil
}

// ForgotPassword mints a reset token and sends it. Unknown emails are
// silently ignored so callers cannot enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	token, err := s.onetime.Mint(ctx, PurposePasswordReset, user.ID.String(), s.resetTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendPasswordResetEmail(ctx, user.Email, user.Name, token); err != nil {
		return fmt.Errorf("auth: enqueue password reset email: %w", err)
	}
	return nil
}

// ResetPassword redeems a reset token, sets the new password and ends
// every session of the account.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	id, err := s.redeemSubject(ctx, PurposePasswordReset, token)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, id, newPassword); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrOneTimeTokenInvalid
		}
		return err
	}
	s.record(ctx, shared.AuditLog{ActorID: id, Action: "user.password_reset", Entity: "user", EntityID: id.String()})
	return nil
}

// ChangePassword checks the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, newPassword string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return shared.ErrIncorrectPassword
	}
	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		return shared.ErrIncorrectPassword
	}
	if err := s.setPassword(ctx, id, newPassword); err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{ActorID: id, Action: "user.password_changed", Entity: "user", EntityID: id.String()})
	return nil
}

func (s *Service) setPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}
	if _, err := s.tokens.RevokeAll(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *Service) redeemSubject(ctx context.Context, purpose Purpose, token string) (uuid.UUID, error) {
	subject, err := s.onetime.Redeem(ctx, purpose, token)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, shared.ErrOneTimeTokenInvalid
	}
	return id, nil
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
