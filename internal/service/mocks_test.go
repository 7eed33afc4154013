package service

import (
	"context"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockPendingStore struct {
	mock.Mock
}

func (m *MockPendingStore) Put(ctx context.Context, email, otp string) error {
	args := m.Called(ctx, email, otp)
	return args.Error(0)
}

func (m *MockPendingStore) Get(ctx context.Context, email string) (*models.PendingRegistration, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingRegistration), args.Error(1)
}

func (m *MockPendingStore) ConsumeIfMatch(ctx context.Context, email, otp string) (*models.PendingRegistration, error) {
	args := m.Called(ctx, email, otp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingRegistration), args.Error(1)
}

func (m *MockPendingStore) Restore(ctx context.Context, pending *models.PendingRegistration) error {
	args := m.Called(ctx, pending)
	return args.Error(0)
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendOTP(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockTokenDenylist struct {
	mock.Mock
}

func (m *MockTokenDenylist) Revoke(ctx context.Context, token models.RevokedToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}
