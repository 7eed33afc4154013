package models

import "time"

// PendingRegistration is the store-resident half of a registration: the
// code issued for an email that has not been verified yet.
type PendingRegistration struct {
	Email     string    `json:"email" dynamodbav:"Email"`
	OTP       string    `json:"otp" dynamodbav:"OTP"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"ExpiresAt"`
}

func PendingPK(email string) string {
	return "PENDING#" + email
}
