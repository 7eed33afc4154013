package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/ghclone/ghclone/internal/config"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	issuer    string
	logger    *logrus.Logger
	now       func() time.Time
}

type JWTOption func(*JWTService)

// WithClock replaces the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) JWTOption {
	return func(s *JWTService) {
		s.now = now
	}
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger, opts ...JWTOption) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	s := &JWTService{
		secretKey: secretKey,
		expiry:    cfg.Expiry,
		issuer:    cfg.Issuer,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Claims carries the credential pair the session was opened with.
type Claims struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	jwt.RegisteredClaims
}

func (s *JWTService) Issue(email, password string) (*models.IssuedToken, error) {
	now := s.now()
	jti := uuid.New().String()
	expiresAt := jwt.NewNumericDate(now.Add(s.expiry))

	claims := &Claims{
		Email:    email,
		Password: password,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign session token")
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &models.IssuedToken{
		Token:     tokenString,
		JTI:       jti,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Verify checks signature, algorithm, issuer and expiry. Expired tokens
// return models.ErrTokenExpired; everything else is models.ErrTokenInvalid.
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", models.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}
