package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	alertrepo "github.com/smallbiznis/payoutd/internal/alert/repository"
	alertservice "github.com/smallbiznis/payoutd/internal/alert/service"
	"github.com/smallbiznis/payoutd/internal/config"
	customerrepo "github.com/smallbiznis/payoutd/internal/customer/repository"
	customerservice "github.com/smallbiznis/payoutd/internal/customer/service"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/payoutd/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/payoutd/internal/ledger/service"
	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
	orderrepo "github.com/smallbiznis/payoutd/internal/order/repository"
	orderservice "github.com/smallbiznis/payoutd/internal/order/service"
	"github.com/smallbiznis/payoutd/internal/payment/adapters"
	"github.com/smallbiznis/payoutd/internal/payment/adapters/paystack"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/payoutd/internal/payment/repository"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/payoutd/internal/payout/repository"
	payoutservice "github.com/smallbiznis/payoutd/internal/payout/service"
	accountdomain "github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	accountrepo "github.com/smallbiznis/payoutd/internal/payoutaccount/repository"
	accountservice "github.com/smallbiznis/payoutd/internal/payoutaccount/service"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	subscriptionrepo "github.com/smallbiznis/payoutd/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/payoutd/internal/subscription/service"
	"github.com/smallbiznis/payoutd/internal/testutil"
	userrepo "github.com/smallbiznis/payoutd/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "sk_test_webhook"

type fixture struct {
	svc      paymentdomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	gw       *testutil.MockGateway
	ledger   ledgerdomain.Service
	accounts accountdomain.Service
	payouts  payoutdomain.Service
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	log := testutil.Logger()
	gw := &testutil.MockGateway{}
	settings := config.NewStaticSettings(config.DefaultSettings())

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepo.Provide()})
	customers := customerservice.New(customerservice.Params{DB: db, Log: log, GenID: node, Repo: customerrepo.Provide()})
	orders := orderservice.New(orderservice.Params{
		DB: db, Log: log, GenID: node, Repo: orderrepo.Provide(), CustomerSvc: customers, LedgerSvc: ledger,
	})
	accounts := accountservice.New(accountservice.Params{
		DB: db, Log: log, GenID: node, Repo: accountrepo.Provide(), Gateway: gw, Settings: settings,
	})
	payouts := payoutservice.New(payoutservice.Params{
		DB: db, Log: log, GenID: node, Repo: payoutrepo.Provide(),
		LedgerSvc: ledger, AccountSvc: accounts, Gateway: gw, Settings: settings,
	})
	alerts := alertservice.New(alertservice.Params{DB: db, Log: log, GenID: node, Repo: alertrepo.Provide()})
	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Repo: subscriptionrepo.Provide(), Users: userrepo.Provide(),
		Gateway: gw, Settings: settings, AlertSvc: alerts,
	})

	svc := NewService(Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Cfg:             config.Config{Scheduler: config.SchedulerConfig{ReplayMaxAttempts: maxAttempts}},
		Repo:            paymentrepo.Provide(),
		Adapters:        adapters.NewRegistry(paystack.NewAdapter(testSecret)),
		OrderSvc:        orders,
		SubscriptionSvc: subscriptions,
		PayoutSvc:       payouts,
		AlertSvc:        alerts,
	})
	return &fixture{svc: svc, db: db, node: node, gw: gw, ledger: ledger, accounts: accounts, payouts: payouts}
}

func sign(body string) string {
	return hex.EncodeToString(paystack.Sign([]byte(testSecret), []byte(body)))
}

func (f *fixture) ingest(t *testing.T, body string) error {
	t.Helper()
	return f.svc.Ingest(context.Background(), paystack.ProviderName, []byte(body), sign(body))
}

func (f *fixture) balance(t *testing.T, userID snowflake.ID) *ledgerdomain.Ledger {
	t.Helper()
	l, err := f.ledger.Get(context.Background(), userID)
	require.NoError(t, err)
	return l
}

func (f *fixture) eventRow(t *testing.T, providerEventID string) paymentdomain.EventRecord {
	t.Helper()
	var row paymentdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", providerEventID).Take(&row).Error)
	return row
}

// seedPayout gives the seller 10000 earnings, an active account and a
// pending 5000 payout, returning the payout.
func (f *fixture) seedPayout(t *testing.T, seller snowflake.ID) *payoutdomain.Payout {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, ledgerdomain.CreditRequest{
		UserID: seller, Amount: 10000, SourceType: ledgerdomain.SourceTypeOrder, SourceID: "seed:0",
	})
	require.NoError(t, err)

	f.gw.On("CreateTransferRecipient", mock.Anything, mock.Anything).
		Return(&gateway.Recipient{RecipientCode: "RCP_1", BankName: "Zenith Bank"}, nil).Once()
	_, err = f.accounts.Add(ctx, accountdomain.AddAccountRequest{UserID: seller, AccountNumber: "0123456789", BankCode: "057"})
	require.NoError(t, err)

	f.gw.On("InitiateTransfer", mock.Anything, mock.Anything).
		Return(&gateway.Transfer{TransferCode: "TRF_1", Status: "pending"}, nil).Once()
	payout, err := f.payouts.Initiate(ctx, payoutdomain.InitiateRequest{UserID: seller, Amount: 5000})
	require.NoError(t, err)
	return payout
}

func transferBody(kind string, id int, reference string) string {
	return fmt.Sprintf(`{"event":%q,"data":{"id":%d,"reference":%q,"transfer_code":"TRF_1","amount":5000}}`, kind, id, reference)
}

func TestIngestRejectsInvalidSignature(t *testing.T) {
	f := newFixture(t, 3)
	body := transferBody("transfer.success", 1, "po_x")

	err := f.svc.Ingest(context.Background(), "paystack", []byte(body), "deadbeef")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	var count int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&count).Error)
	assert.Zero(t, count)

	err = f.svc.Ingest(context.Background(), "stripe", []byte(body), sign(body))
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
}

func TestIngestIgnoresUnknownEvents(t *testing.T) {
	f := newFixture(t, 3)
	err := f.ingest(t, `{"event":"invoice.create","data":{"id":1}}`)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestChargeSuccessCreditsEachSellerOnce(t *testing.T) {
	f := newFixture(t, 3)
	alice := testutil.SeedUser(t, f.db, f.node, "alice@example.com")
	bob := testutil.SeedUser(t, f.db, f.node, "bob@example.com")

	body := fmt.Sprintf(`{"event":"charge.success","data":{
		"id": 4001, "reference": "T-two-sellers", "amount": 9500, "currency": "NGN",
		"customer": {"email": "buyer@example.com", "first_name": "Grace", "last_name": "Hopper"},
		"metadata": {"purchase": {"items": [
			{"seller_id": "%s", "product_id": "ebook", "amount": 2500},
			{"seller_id": "%s", "product_id": "course", "amount": 7000}
		]}}}}`, alice, bob)

	require.NoError(t, f.ingest(t, body))
	assert.Equal(t, int64(2500), f.balance(t, alice).TotalEarnings)
	assert.Equal(t, int64(7000), f.balance(t, bob).TotalEarnings)

	var orders, customers int64
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Table("customers").Count(&customers).Error)
	assert.Equal(t, int64(2), orders)
	assert.Equal(t, int64(2), customers)

	row := f.eventRow(t, "charge.success:4001")
	assert.NotNil(t, row.ProcessedAt)
	assert.Equal(t, 1, row.Attempts)

	err := f.ingest(t, body)
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	assert.Equal(t, int64(2500), f.balance(t, alice).TotalEarnings)
	assert.Equal(t, int64(7000), f.balance(t, bob).TotalEarnings)
}

func TestChargeBelowPurchaseTotalIsRecordedAsFailed(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	seller := testutil.SeedUser(t, f.db, f.node, "seller@example.com")

	body := fmt.Sprintf(`{"event":"charge.success","data":{
		"id": 4002, "reference": "T-underpaid", "amount": 100, "currency": "NGN",
		"customer": {"email": "buyer@example.com"},
		"metadata": {"purchase": {"items": [
			{"seller_id": "%s", "product_id": "ebook", "amount": 100000000}
		]}}}}`, seller)

	require.NoError(t, f.ingest(t, body))
	assert.Zero(t, f.balance(t, seller).TotalEarnings)

	row := f.eventRow(t, "charge.success:4002")
	assert.Nil(t, row.ProcessedAt)
	assert.Contains(t, row.LastError, orderdomain.ErrChargeAmountMismatch.Error())

	failed, err := f.svc.ListFailed(ctx, paymentdomain.ListFailedRequest{})
	require.NoError(t, err)
	require.Len(t, failed.Events, 1)
}

func TestChargeWithoutPurchaseMarkerIsSkipped(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.ingest(t, `{"event":"charge.success","data":{"id":7,"reference":"sub-renewal","amount":500000,"metadata":""}}`))

	var orders int64
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	assert.NotNil(t, f.eventRow(t, "charge.success:7").ProcessedAt)
}

func TestTransferSuccessIsAppliedOnce(t *testing.T) {
	f := newFixture(t, 3)
	seller := testutil.SeedUser(t, f.db, f.node, "seller@example.com")
	payout := f.seedPayout(t, seller)

	l := f.balance(t, seller)
	assert.Equal(t, int64(5000), l.Pending)
	assert.Equal(t, int64(5000), l.Available())

	require.NoError(t, f.ingest(t, transferBody("transfer.success", 1, payout.Reference)))
	l = f.balance(t, seller)
	assert.Equal(t, int64(0), l.Pending)
	assert.Equal(t, int64(5000), l.WithdrawnEarnings)
	assert.Equal(t, int64(5000), l.Available())

	err := f.ingest(t, transferBody("transfer.success", 1, payout.Reference))
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)

	// A late failure notice for a settled payout is logged but changes nothing.
	require.NoError(t, f.ingest(t, transferBody("transfer.failed", 2, payout.Reference)))
	assert.NotNil(t, f.eventRow(t, "transfer.failed:2").ProcessedAt)
	l = f.balance(t, seller)
	assert.Equal(t, int64(5000), l.WithdrawnEarnings)
	assert.Equal(t, int64(5000), l.Available())

	got, err := f.payouts.Get(context.Background(), seller, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, got.Status)
}

func TestTransferFailedReleasesFunds(t *testing.T) {
	f := newFixture(t, 3)
	seller := testutil.SeedUser(t, f.db, f.node, "seller@example.com")
	payout := f.seedPayout(t, seller)

	require.NoError(t, f.ingest(t, transferBody("transfer.failed", 3, payout.Reference)))
	l := f.balance(t, seller)
	assert.Equal(t, int64(0), l.Pending)
	assert.Equal(t, int64(0), l.WithdrawnEarnings)
	assert.Equal(t, int64(10000), l.Available())
}

func TestEarlyTransferWebhookIsReplayed(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	seller := testutil.SeedUser(t, f.db, f.node, "seller@example.com")

	body := transferBody("transfer.success", 9, "po_early")
	require.NoError(t, f.ingest(t, body))

	row := f.eventRow(t, "transfer.success:9")
	assert.Nil(t, row.ProcessedAt)
	assert.Equal(t, 1, row.Attempts)
	assert.Contains(t, row.LastError, payoutdomain.ErrNotFound.Error())

	failed, err := f.svc.ListFailed(ctx, paymentdomain.ListFailedRequest{})
	require.NoError(t, err)
	require.Len(t, failed.Events, 1)

	_, err = f.ledger.Credit(ctx, ledgerdomain.CreditRequest{
		UserID: seller, Amount: 8000, SourceType: ledgerdomain.SourceTypeOrder, SourceID: "seed:0",
	})
	require.NoError(t, err)
	_, err = f.ledger.ReserveForWithdrawal(ctx, ledgerdomain.ReserveRequest{UserID: seller, Amount: 5000, Reference: "po_early"})
	require.NoError(t, err)
	require.NoError(t, payoutrepo.Provide().Insert(ctx, f.db, &payoutdomain.Payout{
		ID: f.node.Generate(), UserID: seller, AccountID: f.node.Generate(), Reference: "po_early",
		Amount: 5000, Currency: "NGN", Status: payoutdomain.StatusPending,
		CreatedAt: row.ReceivedAt, UpdatedAt: row.ReceivedAt,
	}))

	result, err := f.svc.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReplayResult{Claimed: 1, Processed: 1}, result)

	row = f.eventRow(t, "transfer.success:9")
	assert.NotNil(t, row.ProcessedAt)
	assert.Equal(t, 2, row.Attempts)
	assert.Equal(t, int64(5000), f.balance(t, seller).WithdrawnEarnings)

	result, err = f.svc.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Claimed)
}

func TestReplayExhaustionAlertsOperators(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	require.NoError(t, f.ingest(t, transferBody("transfer.reversed", 5, "po_missing")))

	result, err := f.svc.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReplayResult{Claimed: 1, Failed: 1}, result)

	var alerts []alertdomain.Alert
	require.NoError(t, f.db.Where("kind = ?", alertdomain.KindWebhookReplayExhausted).Find(&alerts).Error)
	require.Len(t, alerts, 1)
	assert.Equal(t, "paystack:transfer.reversed:5", alerts[0].DedupKey)

	result, err = f.svc.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Claimed)
	assert.Equal(t, 2, f.eventRow(t, "transfer.reversed:5").Attempts)
}
