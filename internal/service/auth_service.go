package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/repository"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/ghclone/ghclone/internal/validate"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthService drives an email through Unregistered, PendingVerification and
// Verified, and opens and closes sessions for verified accounts.
type AuthService struct {
	pending      repository.PendingStore
	accounts     repository.AccountRepository
	notifier     Notifier
	tokens       *JWTService
	denylist     repository.TokenDenylist
	storeTimeout time.Duration
	logger       *logrus.Logger

	generateOTP func() (string, error)
	now         func() time.Time
}

func NewAuthService(
	pending repository.PendingStore,
	accounts repository.AccountRepository,
	notifier Notifier,
	tokens *JWTService,
	denylist repository.TokenDenylist,
	storeTimeout time.Duration,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		pending:      pending,
		accounts:     accounts,
		notifier:     notifier,
		tokens:       tokens,
		denylist:     denylist,
		storeTimeout: storeTimeout,
		logger:       logger,
		generateOTP:  GenerateOTP,
		now:          time.Now,
	}
}

func (s *AuthService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Register sends a fresh code to the candidate's email and records it as
// pending. Nothing is stored when delivery fails.
func (s *AuthService) Register(ctx context.Context, reg models.Registration) (*models.Registration, error) {
	reg.Email = utils.NormalizeEmail(reg.Email)
	if err := validate.Struct(reg); err != nil {
		return nil, err
	}

	if err := s.issueCode(ctx, reg.Email); err != nil {
		return nil, err
	}

	s.logger.WithField("email_hash", utils.HashEmail(reg.Email)).Info("Registration pending verification")
	return &reg, nil
}

// ResendOTP replaces the code of a registration that is still pending.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (string, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", models.ErrValidation)
	}

	storeCtx, cancel := s.storeContext(ctx)
	_, err := s.pending.Get(storeCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrPendingNotFound) {
			return "", fmt.Errorf("%w: %w", models.ErrNotFound, err)
		}
		return "", err
	}

	if err := s.issueCode(ctx, email); err != nil {
		return "", err
	}
	return email, nil
}

func (s *AuthService) issueCode(ctx context.Context, email string) error {
	otp, err := s.generateOTP()
	if err != nil {
		return err
	}

	if err := s.notifier.SendOTP(ctx, NewOTPMessage(email, otp)); err != nil {
		if !errors.Is(err, models.ErrDelivery) {
			err = fmt.Errorf("%w: %w", models.ErrDelivery, err)
		}
		return err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.pending.Put(storeCtx, email, otp)
}

// Verify consumes the pending code for email and creates the account. The
// code is single use; it is put back only when the account could not be
// written for a reason other than a duplicate.
func (s *AuthService) Verify(ctx context.Context, email, code string, candidate models.Registration) error {
	email = utils.NormalizeEmail(email)
	candidate.Email = utils.NormalizeEmail(candidate.Email)
	if email == "" || code == "" {
		return fmt.Errorf("%w: email and value are required", models.ErrValidation)
	}
	if err := validate.Struct(candidate); err != nil {
		return err
	}
	if candidate.Email != email {
		return fmt.Errorf("%w: userData email does not match the verified email", models.ErrValidation)
	}

	storeCtx, cancel := s.storeContext(ctx)
	consumed, err := s.pending.ConsumeIfMatch(storeCtx, email, code)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrPendingNotFound) {
			s.logger.WithField("email_hash", utils.HashEmail(email)).Warn("Verification code mismatch")
			return fmt.Errorf("%w: verification code does not match", models.ErrNotFound)
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(candidate.Password), bcrypt.DefaultCost)
	if err != nil {
		s.restoreCode(ctx, consumed)
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		ID:           ulid.Make().String(),
		Username:     candidate.Username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	storeCtx, cancel = s.storeContext(ctx)
	err = s.accounts.Create(storeCtx, account)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrDuplicateAccount) {
			return fmt.Errorf("%w: %w", models.ErrPersistence, err)
		}
		s.restoreCode(ctx, consumed)
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"email_hash": utils.HashEmail(email),
		"account_id": account.ID,
	}).Info("Account verified")
	return nil
}

// restoreCode hands a consumed code back to the store. The store keeps the
// original expiry and leaves any newer code in place.
func (s *AuthService) restoreCode(ctx context.Context, consumed *models.PendingRegistration) {
	storeCtx, cancel := s.storeContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.pending.Restore(storeCtx, consumed); err != nil {
		s.logger.WithError(err).WithField("email_hash", utils.HashEmail(consumed.Email)).Error("Failed to restore verification code")
	}
}

// Login opens a session for an existing account. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.IssuedToken, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", models.ErrNotFound)
	}

	storeCtx, cancel := s.storeContext(ctx)
	account, err := s.accounts.FindByEmail(storeCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %w", models.ErrNotFound, err)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrNotFound)
	}

	issued, err := s.tokens.Issue(account.Email, password)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"jti":        issued.JTI,
	}).Info("Session token issued")
	return issued, nil
}

// Authenticate resolves a bearer token to its claims. A missing token is
// unauthorized; a bad, expired or revoked one is forbidden.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", models.ErrUnauthorized)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrForbidden, err)
	}

	if s.denylist != nil && claims.ID != "" {
		storeCtx, cancel := s.storeContext(ctx)
		revoked, err := s.denylist.IsRevoked(storeCtx, claims.ID)
		cancel()
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("%w: %w", models.ErrForbidden, models.ErrTokenRevoked)
		}
	}
	return claims, nil
}

// Logout revokes the session token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if s.denylist == nil {
		return nil
	}

	revoked := models.RevokedToken{
		JTI:       claims.ID,
		Email:     claims.Email,
		RevokedAt: s.now().UTC(),
	}
	if claims.ExpiresAt != nil {
		revoked.ExpiresAt = claims.ExpiresAt.Time
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.denylist.Revoke(storeCtx, revoked); err != nil {
		return err
	}

	s.logger.WithField("email_hash", utils.HashEmail(claims.Email)).Info("Session token revoked")
	return nil
}
