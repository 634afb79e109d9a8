package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/orderflow/orderflow/internal/domain/account"
	"github.com/orderflow/orderflow/internal/domain/contact"
	"github.com/orderflow/orderflow/internal/domain/session"
	"github.com/orderflow/orderflow/internal/gateway"
)

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchCatalog(ctx context.Context) (*gateway.Catalog, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Catalog), args.Error(1)
}

func (m *MockGateway) CheckAccountStatus(ctx context.Context, info contact.Info) ([]account.Account, error) {
	args := m.Called(ctx, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]account.Account), args.Error(1)
}

func (m *MockGateway) SendOTP(ctx context.Context, channel session.OTPChannel, identifier string) (session.VerificationSID, error) {
	args := m.Called(ctx, channel, identifier)
	return args.Get(0).(session.VerificationSID), args.Error(1)
}

func (m *MockGateway) VerifyOTP(ctx context.Context, sid session.VerificationSID, code string) (*gateway.Claim, error) {
	args := m.Called(ctx, sid, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Claim), args.Error(1)
}

func (m *MockGateway) CreateAccount(ctx context.Context, info contact.Info) (*account.Account, error) {
	args := m.Called(ctx, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockGateway) CreateOrganization(ctx context.Context, info contact.Info) (*gateway.OrgAccount, error) {
	args := m.Called(ctx, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.OrgAccount), args.Error(1)
}

func (m *MockGateway) UpdateAccountType(ctx context.Context, accountID, orgID string, accountType account.Type) error {
	args := m.Called(ctx, accountID, orgID, accountType)
	return args.Error(0)
}

func (m *MockGateway) SaveCartSnapshot(ctx context.Context, payload gateway.CartPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
