package models

import (
	"time"
)

type Account struct {
	ID           string    `json:"id" bson:"_id" dynamodbav:"id"`
	Username     string    `json:"username" bson:"username" dynamodbav:"username"`
	Email        string    `json:"email" bson:"email" dynamodbav:"email"`
	PasswordHash string    `json:"-" bson:"password_hash" dynamodbav:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" dynamodbav:"created_at"`
}

func (a *Account) GetPK() string {
	return "ACCOUNT#" + a.Email
}

func (a *Account) GetSK() string {
	return "METADATA"
}

// UsernamePK is the key of the guard item that reserves a username in the
// single-table layout.
func UsernamePK(username string) string {
	return "USERNAME#" + username
}

// Registration is the candidate account payload. It is echoed back to the
// client by register and sent again with the code at verify time.
type Registration struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
