package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) *SQLiteAccountRepository {
	t.Helper()
	repo, err := OpenSQLiteAccountRepository(context.Background(), filepath.Join(t.TempDir(), "accounts.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteAccountRepository_CreateAndFind(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	account := testAccount("alice", "alice@example.com")
	require.NoError(t, repo.Create(ctx, account))

	found, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.Equal(t, "alice", found.Username)
	assert.Equal(t, account.PasswordHash, found.PasswordHash)
	assert.True(t, account.CreatedAt.Equal(found.CreatedAt))
}

func TestSQLiteAccountRepository_Duplicates(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testAccount("alice", "alice@example.com")))

	dupEmail := testAccount("bob", "alice@example.com")
	dupEmail.ID = "01HXZ5K3V7Q8R9S0T1U2V3W4X6"
	assert.ErrorIs(t, repo.Create(ctx, dupEmail), models.ErrDuplicateAccount)

	dupUsername := testAccount("alice", "bob@example.com")
	dupUsername.ID = "01HXZ5K3V7Q8R9S0T1U2V3W4X7"
	assert.ErrorIs(t, repo.Create(ctx, dupUsername), models.ErrDuplicateAccount)
}

func TestSQLiteAccountRepository_RejectsEmptyUsername(t *testing.T) {
	repo := newSQLiteRepo(t)

	err := repo.Create(context.Background(), testAccount("", "alice@example.com"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSQLiteAccountRepository_FindMissing(t *testing.T) {
	repo := newSQLiteRepo(t)

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}
