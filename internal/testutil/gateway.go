package testutil

import (
	"context"

	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a testify mock of the payment provider.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCustomer(ctx context.Context, req gateway.CreateCustomerRequest) (*gateway.Customer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Customer), args.Error(1)
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, req gateway.InitializeTransactionRequest) (*gateway.TransactionInit, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransactionInit), args.Error(1)
}

func (m *MockGateway) CreateTransferRecipient(ctx context.Context, req gateway.CreateRecipientRequest) (*gateway.Recipient, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Recipient), args.Error(1)
}

func (m *MockGateway) InitiateTransfer(ctx context.Context, req gateway.InitiateTransferRequest) (*gateway.Transfer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Transfer), args.Error(1)
}

func (m *MockGateway) ListSubscriptions(ctx context.Context, customerCode string) ([]gateway.Subscription, error) {
	args := m.Called(ctx, customerCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.Subscription), args.Error(1)
}
