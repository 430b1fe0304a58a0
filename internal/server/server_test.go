package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/config"
	customerdomain "github.com/smallbiznis/payoutd/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	"github.com/smallbiznis/payoutd/internal/observability"
	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	accountdomain "github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "1790000000000000001"

type stubLedger struct {
	ledgerdomain.Service
	ledger *ledgerdomain.Ledger
	userID snowflake.ID
}

func (s *stubLedger) Get(_ context.Context, userID snowflake.ID) (*ledgerdomain.Ledger, error) {
	s.userID = userID
	return s.ledger, nil
}

type stubPayouts struct {
	payoutdomain.Service
	initiated payoutdomain.InitiateRequest
	err       error
	receipt   *payoutdomain.Receipt
}

func (s *stubPayouts) Initiate(_ context.Context, req payoutdomain.InitiateRequest) (*payoutdomain.Payout, error) {
	s.initiated = req
	if s.err != nil {
		return nil, s.err
	}
	return &payoutdomain.Payout{ID: 42, UserID: req.UserID, Reference: "po_test", Amount: req.Amount, Status: payoutdomain.StatusPending}, nil
}

func (s *stubPayouts) Receipt(_ context.Context, _, _ snowflake.ID) (*payoutdomain.Receipt, error) {
	if s.receipt == nil {
		return nil, payoutdomain.ErrNotFound
	}
	return s.receipt, nil
}

type stubSubscriptions struct {
	subscriptiondomain.Service
	req subscriptiondomain.SubscribeRequest
	err error
}

func (s *stubSubscriptions) Subscribe(_ context.Context, req subscriptiondomain.SubscribeRequest) (*subscriptiondomain.Subscription, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &subscriptiondomain.Subscription{
		ID:               7,
		UserID:           req.UserID,
		PlanCode:         "PLN_default",
		Status:           subscriptiondomain.SubscriptionStatusPending,
		AuthorizationURL: "https://checkout.paystack.com/abc",
	}, nil
}

type stubPayments struct {
	paymentdomain.Service
	err       error
	provider  string
	signature string
	payload   string
	limit     int
}

func (s *stubPayments) Ingest(_ context.Context, provider string, payload []byte, signature string) error {
	s.provider = provider
	s.payload = string(payload)
	s.signature = signature
	return s.err
}

func (s *stubPayments) Replay(_ context.Context, limit int) (paymentdomain.ReplayResult, error) {
	s.limit = limit
	return paymentdomain.ReplayResult{Claimed: 1, Processed: 1}, nil
}

type stubAudit struct {
	auditdomain.Service
	req auditdomain.ListAuditLogRequest
}

func (s *stubAudit) List(_ context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	s.req = req
	if req.PageToken == "bogus" {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{
		{ID: 9, ActorType: "system", Action: auditdomain.ActionPayoutInitiated, TargetType: "payout"},
	}}, nil
}

type testDeps struct {
	cfg           config.Config
	ledger        *stubLedger
	payouts       *stubPayouts
	subscriptions *stubSubscriptions
	payments      *stubPayments
	audit         *stubAudit
}

func newTestServer(t *testing.T, deps *testDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.ledger == nil {
		deps.ledger = &stubLedger{}
	}
	if deps.payouts == nil {
		deps.payouts = &stubPayouts{}
	}
	if deps.subscriptions == nil {
		deps.subscriptions = &stubSubscriptions{}
	}
	if deps.payments == nil {
		deps.payments = &stubPayments{}
	}
	if deps.audit == nil {
		deps.audit = &stubAudit{}
	}
	engine := NewEngine(observability.Config{}, nil, zap.NewNop())
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             deps.cfg,
		Log:             zap.NewNop(),
		LedgerSvc:       deps.ledger,
		AccountSvc:      struct{ accountdomain.Service }{},
		PayoutSvc:       deps.payouts,
		SubscriptionSvc: deps.subscriptions,
		OrderSvc:        struct{ orderdomain.Service }{},
		CustomerSvc:     struct{ customerdomain.Service }{},
		PaymentSvc:      deps.payments,
		AlertSvc:        struct{ alertdomain.Service }{},
		AuditSvc:        deps.audit,
	})
	return engine
}

func do(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func asUser() map[string]string {
	return map[string]string{HeaderUserID: testUser}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestHealth(t *testing.T) {
	engine := newTestServer(t, &testDeps{})
	rec := do(engine, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIRequiresUserHeader(t *testing.T) {
	engine := newTestServer(t, &testDeps{})

	rec := do(engine, http.MethodGet, "/api/ledger", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = do(engine, http.MethodGet, "/api/ledger", "", map[string]string{HeaderUserID: "not-a-number"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetLedgerReportsAvailable(t *testing.T) {
	deps := &testDeps{ledger: &stubLedger{ledger: &ledgerdomain.Ledger{
		TotalEarnings:     10000,
		WithdrawnEarnings: 2000,
		Pending:           3000,
	}}}
	engine := newTestServer(t, deps)

	rec := do(engine, http.MethodGet, "/api/ledger", "", asUser())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testUser, deps.ledger.userID.String())

	var resp struct {
		Data struct {
			TotalEarnings int64 `json:"total_earnings"`
			Available     int64 `json:"available"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(10000), resp.Data.TotalEarnings)
	assert.Equal(t, int64(5000), resp.Data.Available)
}

func TestInitiatePayoutCreated(t *testing.T) {
	deps := &testDeps{}
	engine := newTestServer(t, deps)

	rec := do(engine, http.MethodPost, "/api/payouts", `{"amount":5000}`, asUser())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(5000), deps.payouts.initiated.Amount)
	assert.Equal(t, testUser, deps.payouts.initiated.UserID.String())
	assert.Contains(t, rec.Body.String(), `"reference":"po_test"`)
}

func TestInitiatePayoutBindingErrors(t *testing.T) {
	engine := newTestServer(t, &testDeps{})

	rec := do(engine, http.MethodPost, "/api/payouts", `{"amount":0}`, asUser())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "amount", payload.Errors[0].Field)
	assert.Equal(t, "required", payload.Errors[0].Code)

	rec = do(engine, http.MethodPost, "/api/payouts", `{"amount":`, asUser())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Errors[0].Code)
}

func TestInitiatePayoutErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		errorType  string
		fieldError string
	}{
		{"insufficient balance", fmt.Errorf("reserve: %w", ledgerdomain.ErrInsufficientBalance), http.StatusUnprocessableEntity, "insufficient_balance", ""},
		{"no account", payoutdomain.ErrNoPayoutAccount, http.StatusUnprocessableEntity, "no_payout_account", ""},
		{"lock held", payoutdomain.ErrPayoutInProgress, http.StatusConflict, "payout_in_progress", ""},
		{"provider", fmt.Errorf("initiate transfer: %w", &gateway.ProviderError{Operation: "initiate_transfer", StatusCode: 400, Message: "Insufficient balance on integration"}), http.StatusBadGateway, "provider_error", ""},
		{"below minimum", payoutdomain.ErrAmountBelowMinimum, http.StatusBadRequest, "validation_error", "amount"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestServer(t, &testDeps{payouts: &stubPayouts{err: tc.err}})

			rec := do(engine, http.MethodPost, "/api/payouts", `{"amount":5000}`, asUser())
			assert.Equal(t, tc.status, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tc.errorType, payload.Type)
			if tc.fieldError != "" {
				require.Len(t, payload.Errors, 1)
				assert.Equal(t, tc.fieldError, payload.Errors[0].Field)
			}
			assert.NotContains(t, rec.Body.String(), "Insufficient balance on integration")
		})
	}
}

func TestPayoutReceipt(t *testing.T) {
	deps := &testDeps{payouts: &stubPayouts{receipt: &payoutdomain.Receipt{
		Filename: "payout-po_test.pdf",
		Content:  []byte("%PDF-1.7"),
	}}}
	engine := newTestServer(t, deps)

	rec := do(engine, http.MethodGet, "/api/payouts/42/receipt", "", asUser())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="payout-po_test.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = do(engine, http.MethodGet, "/api/payouts/abc/receipt", "", asUser())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec).Errors[0].Code)

	deps.payouts.receipt = nil
	rec = do(engine, http.MethodGet, "/api/payouts/42/receipt", "", asUser())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscribe(t *testing.T) {
	deps := &testDeps{}
	engine := newTestServer(t, deps)

	rec := do(engine, http.MethodPost, "/api/subscriptions", "", asUser())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, deps.subscriptions.req.PlanCode)
	assert.Contains(t, rec.Body.String(), "https://checkout.paystack.com/abc")

	deps.subscriptions.err = subscriptiondomain.ErrSubscriptionConflict
	rec = do(engine, http.MethodPost, "/api/subscriptions", `{"plan_code":"PLN_x"}`, asUser())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PLN_x", deps.subscriptions.req.PlanCode)
	assert.Equal(t, "subscription_conflict", decodeError(t, rec).Type)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
	}{
		{"processed", nil, `{"status":"ok"}`},
		{"duplicate", paymentdomain.ErrEventAlreadyProcessed, `{"status":"ok"}`},
		{"ignored", paymentdomain.ErrEventIgnored, `{"status":"ok"}`},
		{"bad signature", paymentdomain.ErrInvalidSignature, ""},
		{"bad payload", paymentdomain.ErrInvalidPayload, ""},
		{"storage failure", errors.New("log webhook event: db down"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := &testDeps{payments: &stubPayments{err: tc.err}}
			engine := newTestServer(t, deps)

			rec := do(engine, http.MethodPost, "/webhooks/paystack", `{"event":"transfer.success"}`, map[string]string{
				"x-paystack-signature": "abc123",
			})
			assert.Equal(t, http.StatusOK, rec.Code)
			if tc.body == "" {
				assert.Empty(t, rec.Body.String())
			} else {
				assert.JSONEq(t, tc.body, rec.Body.String())
			}
			assert.Equal(t, "paystack", deps.payments.provider)
			assert.Equal(t, "abc123", deps.payments.signature)
			assert.Equal(t, `{"event":"transfer.success"}`, deps.payments.payload)
		})
	}
}

func TestWebhookUnknownProvider(t *testing.T) {
	engine := newTestServer(t, &testDeps{payments: &stubPayments{err: paymentdomain.ErrProviderNotFound}})
	rec := do(engine, http.MethodPost, "/webhooks/stripe", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	engine := newTestServer(t, &testDeps{})
	rec := do(engine, http.MethodPost, "/admin/webhook_events/replay", "", map[string]string{HeaderAdminToken: "anything"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	deps := &testDeps{cfg: config.Config{AdminToken: "s3cret"}}
	engine = newTestServer(t, deps)

	rec = do(engine, http.MethodPost, "/admin/webhook_events/replay", "", map[string]string{HeaderAdminToken: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(engine, http.MethodPost, "/admin/webhook_events/replay", "", map[string]string{HeaderAdminToken: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 50, deps.payments.limit)
	assert.JSONEq(t, `{"data":{"claimed":1,"processed":1,"failed":0}}`, rec.Body.String())

	rec = do(engine, http.MethodPost, "/admin/webhook_events/replay?limit=0", "", map[string]string{HeaderAdminToken: "s3cret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAuditLogs(t *testing.T) {
	deps := &testDeps{cfg: config.Config{AdminToken: "s3cret"}}
	engine := newTestServer(t, deps)
	admin := map[string]string{HeaderAdminToken: "s3cret"}

	rec := do(engine, http.MethodGet, "/admin/audit_logs?action=payout.initiated&target_type=payout&page_size=10", "", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auditdomain.ActionPayoutInitiated, deps.audit.req.Action)
	assert.Equal(t, "payout", deps.audit.req.TargetType)
	assert.Equal(t, 10, deps.audit.req.PageSize)

	var body struct {
		Data auditdomain.ListAuditLogResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.AuditLogs, 1)
	assert.Equal(t, "payout", body.Data.AuditLogs[0].TargetType)

	rec = do(engine, http.MethodGet, "/admin/audit_logs?page_token=bogus", "", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(engine, http.MethodGet, "/admin/audit_logs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	engine := newTestServer(t, &testDeps{})
	rec := do(engine, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}
