package repository

import (
	"context"

	"github.com/ghclone/ghclone/internal/models"
)

// PendingStore holds the codes issued for registrations that are waiting
// for verification. Implementations must make ConsumeIfMatch atomic: a code
// that matched once never matches again. ConsumeIfMatch reports a missing,
// expired or different code as models.ErrPendingNotFound.
//
// Restore puts a consumed entry back with its original expiry, unless a
// newer code was stored for the email in the meantime or the entry has
// already expired.
type PendingStore interface {
	Put(ctx context.Context, email, otp string) error
	Get(ctx context.Context, email string) (*models.PendingRegistration, error)
	ConsumeIfMatch(ctx context.Context, email, otp string) (*models.PendingRegistration, error)
	Restore(ctx context.Context, pending *models.PendingRegistration) error
}

// AccountRepository persists confirmed accounts. Create must enforce
// uniqueness of both email and username and report a clash as
// models.ErrDuplicateAccount.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// TokenDenylist remembers tokens that were logged out before they expired.
// Entries only need to live until the token's own expiry.
type TokenDenylist interface {
	Revoke(ctx context.Context, token models.RevokedToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
