package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE CHECK (username <> ''),
	email         TEXT NOT NULL UNIQUE CHECK (email <> ''),
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);`

// SQLiteAccountRepository is the single-node account store. It is meant
// for local development and tests.
type SQLiteAccountRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

// OpenSQLiteAccountRepository opens (creating if needed) the database at
// path and applies the schema.
func OpenSQLiteAccountRepository(ctx context.Context, path string, logger *logrus.Logger) (*SQLiteAccountRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, accountsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteAccountRepository{db: db, logger: logger}, nil
}

func (r *SQLiteAccountRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteAccountRepository) Create(ctx context.Context, account *models.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.Username, account.Email, account.PasswordHash, account.CreatedAt.UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return models.ErrDuplicateAccount
		}
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		r.logger.WithError(err).WithField("email_hash", utils.HashEmail(account.Email)).Error("Failed to insert account into SQLite")
		return fmt.Errorf("failed to create account: %w: %w", models.ErrUnavailable, err)
	}

	r.logger.WithField("account_id", account.ID).Info("Account created")
	return nil
}

func (r *SQLiteAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM accounts WHERE email = ?`, email,
	).Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w: %w", models.ErrUnavailable, err)
	}
	return &account, nil
}
