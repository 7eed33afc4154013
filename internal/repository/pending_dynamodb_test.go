package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDynamoPendingStore(t *testing.T) (*DynamoPendingStore, *fakeDynamo, *time.Time) {
	t.Helper()
	fake := newFakeDynamo()
	store := NewDynamoPendingStore(fake, "GHCloneAuth", 10*time.Minute, quietLogger())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, fake, &now
}

func TestDynamoPendingStore_PutAndGet(t *testing.T) {
	store, fake, _ := newDynamoPendingStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice@example.com", "123456"))

	item := fake.items["PENDING#alice@example.com|METADATA"]
	require.NotNil(t, item)
	assert.Equal(t, "1714565400", attrString(item[ttlAttribute]))

	pending, err := store.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", pending.OTP)
	assert.Equal(t, "alice@example.com", pending.Email)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC), pending.ExpiresAt.UTC())
}

func TestDynamoPendingStore_GetMissing(t *testing.T) {
	store, _, _ := newDynamoPendingStore(t)

	_, err := store.Get(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrPendingNotFound)
}

func TestDynamoPendingStore_ConsumeIfMatch(t *testing.T) {
	store, fake, _ := newDynamoPendingStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice@example.com", "123456"))

	_, err := store.ConsumeIfMatch(ctx, "alice@example.com", "000000")
	assert.ErrorIs(t, err, models.ErrPendingNotFound)
	assert.Len(t, fake.items, 1)

	pending, err := store.ConsumeIfMatch(ctx, "alice@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "123456", pending.OTP)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), pending.CreatedAt.UTC())
	assert.Equal(t, time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC), pending.ExpiresAt.UTC())
	assert.Empty(t, fake.items)

	_, err = store.ConsumeIfMatch(ctx, "alice@example.com", "123456")
	assert.ErrorIs(t, err, models.ErrPendingNotFound)
}

func TestDynamoPendingStore_ExpiredItemsAreIgnored(t *testing.T) {
	store, _, now := newDynamoPendingStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice@example.com", "123456"))

	*now = now.Add(10 * time.Minute)

	_, err := store.Get(ctx, "alice@example.com")
	assert.ErrorIs(t, err, models.ErrPendingNotFound)

	_, err = store.ConsumeIfMatch(ctx, "alice@example.com", "123456")
	assert.ErrorIs(t, err, models.ErrPendingNotFound)
}

func TestDynamoPendingStore_Unavailable(t *testing.T) {
	store, fake, _ := newDynamoPendingStore(t)
	fake.err = errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")
	ctx := context.Background()

	assert.ErrorIs(t, store.Put(ctx, "alice@example.com", "123456"), models.ErrUnavailable)

	_, err := store.Get(ctx, "alice@example.com")
	assert.ErrorIs(t, err, models.ErrUnavailable)

	_, err = store.ConsumeIfMatch(ctx, "alice@example.com", "123456")
	assert.ErrorIs(t, err, models.ErrUnavailable)

	err = store.Restore(ctx, &models.PendingRegistration{
		Email:     "alice@example.com",
		OTP:       "123456",
		ExpiresAt: time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestDynamoPendingStore_RestoreKeepsOriginalTTL(t *testing.T) {
	store, fake, now := newDynamoPendingStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice@example.com", "111111"))

	*now = now.Add(9*time.Minute + 50*time.Second)

	pending, err := store.ConsumeIfMatch(ctx, "alice@example.com", "111111")
	require.NoError(t, err)
	require.NoError(t, store.Restore(ctx, pending))

	item := fake.items["PENDING#alice@example.com|METADATA"]
	require.NotNil(t, item)
	assert.Equal(t, "1714565400", attrString(item[ttlAttribute]))

	*now = now.Add(10 * time.Second)
	_, err = store.ConsumeIfMatch(ctx, "alice@example.com", "111111")
	assert.ErrorIs(t, err, models.ErrPendingNotFound)
}

func TestDynamoPendingStore_RestoreNeverOverwritesNewerCode(t *testing.T) {
	store, _, _ := newDynamoPendingStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice@example.com", "111111"))

	pending, err := store.ConsumeIfMatch(ctx, "alice@example.com", "111111")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "alice@example.com", "222222"))
	require.NoError(t, store.Restore(ctx, pending))

	current, err := store.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", current.OTP)
}

func TestDynamoPendingStore_RestoreReplacesLapsedItem(t *testing.T) {
	store, fake, now := newDynamoPendingStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice@example.com", "111111"))
	pending, err := store.ConsumeIfMatch(ctx, "alice@example.com", "111111")
	require.NoError(t, err)

	// An older item past its TTL that DynamoDB has not swept yet.
	stale := itemKey(models.PendingPK("alice@example.com"))
	stale["OTP"] = &types.AttributeValueMemberS{Value: "999999"}
	stale[ttlAttribute] = &types.AttributeValueMemberN{Value: "1714564000"}
	fake.items["PENDING#alice@example.com|METADATA"] = stale

	*now = now.Add(time.Minute)
	require.NoError(t, store.Restore(ctx, pending))

	current, err := store.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "111111", current.OTP)
}

func TestDynamoPendingStore_RestoreDropsExpiredEntry(t *testing.T) {
	store, fake, now := newDynamoPendingStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice@example.com", "111111"))
	pending, err := store.ConsumeIfMatch(ctx, "alice@example.com", "111111")
	require.NoError(t, err)

	*now = now.Add(10 * time.Minute)
	require.NoError(t, store.Restore(ctx, pending))
	assert.Empty(t, fake.items)
}

func TestBootstrapTable_Idempotent(t *testing.T) {
	fake := newFakeDynamo()
	ctx := context.Background()

	require.NoError(t, BootstrapTable(ctx, fake, "GHCloneAuth", quietLogger()))
	require.NoError(t, BootstrapTable(ctx, fake, "GHCloneAuth", quietLogger()))

	assert.True(t, fake.tables["GHCloneAuth"])
	assert.True(t, fake.ttlOn)
}

func TestBootstrapTable_Failure(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("AccessDeniedException")

	assert.Error(t, BootstrapTable(context.Background(), fake, "GHCloneAuth", quietLogger()))
}
