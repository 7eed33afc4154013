package models

import "errors"

// Sentinel errors shared by repositories, services and handlers. Lower layers
// wrap them with context; handlers map them to status codes with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrDelivery     = errors.New("delivery failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrPersistence  = errors.New("persistence failed")
	ErrUnavailable  = errors.New("backing store unavailable")
)

var (
	ErrPendingNotFound  = errors.New("no pending verification for email")
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account already exists")
	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenInvalid     = errors.New("token is invalid")
	ErrTokenRevoked     = errors.New("token has been revoked")
)
