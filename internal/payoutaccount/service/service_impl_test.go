package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/smallbiznis/payoutd/internal/audit/repository"
	auditservice "github.com/smallbiznis/payoutd/internal/audit/service"
	"github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	"github.com/smallbiznis/payoutd/internal/payoutaccount/repository"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	gw     *testutil.MockGateway
	node   *snowflake.Node
	userID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	gw := &testutil.MockGateway{}
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: testutil.Logger(), GenID: node, Repo: auditrepo.Provide(),
	})
	svc := New(Params{
		DB:       db,
		Log:      testutil.Logger(),
		GenID:    node,
		Repo:     repository.Provide(),
		Gateway:  gw,
		AuditSvc: audit,
	})
	return &fixture{
		svc:    svc,
		db:     db,
		gw:     gw,
		node:   node,
		userID: testutil.SeedUser(t, db, node, "seller@example.com"),
	}
}

func (f *fixture) expectRecipient(number, code string) {
	f.gw.On("CreateTransferRecipient", mock.Anything, mock.MatchedBy(func(req gateway.CreateRecipientRequest) bool {
		return req.AccountNumber == number
	})).Return(&gateway.Recipient{
		RecipientCode: code,
		BankName:      "Guaranty Trust Bank",
		AccountName:   "ADA LOVELACE",
	}, nil).Once()
}

func activeCount(t *testing.T, db *gorm.DB, userID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.Account{}).Where("user_id = ? AND active = ?", userID, true).Count(&count).Error)
	return count
}

func TestAddFirstAccountBecomesActiveThenSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.expectRecipient("0123456789", "RCP_a")
	a, err := f.svc.Add(ctx, domain.AddAccountRequest{UserID: f.userID, AccountNumber: "0123456789", BankCode: "058"})
	require.NoError(t, err)
	assert.True(t, a.Active)
	assert.Equal(t, "RCP_a", a.RecipientCode)
	assert.Equal(t, "Guaranty Trust Bank", a.BankName)

	f.expectRecipient("9876543210", "RCP_b")
	b, err := f.svc.Add(ctx, domain.AddAccountRequest{UserID: f.userID, AccountNumber: "9876543210", BankCode: "044"})
	require.NoError(t, err)
	assert.False(t, b.Active)

	active, err := f.svc.GetActive(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)
	assert.Equal(t, int64(1), activeCount(t, f.db, f.userID))

	switched, err := f.svc.SetActive(ctx, domain.SetActiveRequest{UserID: f.userID, AccountID: b.ID})
	require.NoError(t, err)
	assert.True(t, switched.Active)

	active, err = f.svc.GetActive(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)
	assert.Equal(t, int64(1), activeCount(t, f.db, f.userID))

	accounts, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	var audits int64
	require.NoError(t, f.db.Table("audit_logs").Count(&audits).Error)
	assert.Equal(t, int64(3), audits)

	f.gw.AssertExpectations(t)
}

func TestAddRejectsDuplicateBeforeCallingProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.expectRecipient("0123456789", "RCP_a")
	_, err := f.svc.Add(ctx, domain.AddAccountRequest{UserID: f.userID, AccountNumber: "0123456789", BankCode: "058"})
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, domain.AddAccountRequest{UserID: f.userID, AccountNumber: " 0123456789 ", BankCode: "058"})
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)

	f.gw.AssertNumberOfCalls(t, "CreateTransferRecipient", 1)
}

func TestAddValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.AddAccountRequest
		want error
	}{
		{"missing user", domain.AddAccountRequest{AccountNumber: "0123456789", BankCode: "058"}, domain.ErrInvalidUser},
		{"short number", domain.AddAccountRequest{UserID: f.userID, AccountNumber: "12345", BankCode: "058"}, domain.ErrInvalidAccountNumber},
		{"letters", domain.AddAccountRequest{UserID: f.userID, AccountNumber: "01234abcde", BankCode: "058"}, domain.ErrInvalidAccountNumber},
		{"bad bank", domain.AddAccountRequest{UserID: f.userID, AccountNumber: "0123456789", BankCode: "x"}, domain.ErrInvalidBankCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Add(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	f.gw.AssertNotCalled(t, "CreateTransferRecipient", mock.Anything, mock.Anything)
}

func TestAddPropagatesProviderError(t *testing.T) {
	f := newFixture(t)
	f.gw.On("CreateTransferRecipient", mock.Anything, mock.Anything).
		Return(nil, &gateway.ProviderError{Operation: "create_transfer_recipient", StatusCode: 422, Message: "Could not resolve account name"}).Once()

	_, err := f.svc.Add(context.Background(), domain.AddAccountRequest{UserID: f.userID, AccountNumber: "0123456789", BankCode: "058"})
	assert.ErrorIs(t, err, gateway.ErrProvider)

	accounts, err := f.svc.List(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSetActiveRejectsForeignAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := testutil.SeedUser(t, f.db, f.node, "other@example.com")

	f.expectRecipient("0123456789", "RCP_a")
	a, err := f.svc.Add(ctx, domain.AddAccountRequest{UserID: f.userID, AccountNumber: "0123456789", BankCode: "058"})
	require.NoError(t, err)

	_, err = f.svc.SetActive(ctx, domain.SetActiveRequest{UserID: other, AccountID: a.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetActive(ctx, other)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
