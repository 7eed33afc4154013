package models

import "time"

type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

type RevokedToken struct {
	JTI       string    `json:"jti"`
	Email     string    `json:"email"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
