package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
	"github.com/smallbiznis/payoutd/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultMaxAttempts = 5

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Cfg             config.Config
	Clock           clock.Clock `optional:"true"`
	Repo            paymentdomain.Repository
	Adapters        *adapters.Registry
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PayoutSvc       payoutdomain.Service
	AuditSvc        auditdomain.Service `optional:"true"`
	AlertSvc        alertdomain.Service `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            paymentdomain.Repository
	adapters        *adapters.Registry
	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	payoutSvc       payoutdomain.Service
	auditSvc        auditdomain.Service
	alertSvc        alertdomain.Service
	obsMetrics      *obsmetrics.Metrics
	maxAttempts     int
}

func NewService(p Params) paymentdomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	maxAttempts := p.Cfg.Scheduler.ReplayMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           clk,
		repo:            p.Repo,
		adapters:        p.Adapters,
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		payoutSvc:       p.PayoutSvc,
		auditSvc:        p.AuditSvc,
		alertSvc:        p.AlertSvc,
		obsMetrics:      p.ObsMetrics,
		maxAttempts:     maxAttempts,
	}
}

func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, signature string) error {
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	log := obslogger.WithContext(ctx, s.log).With(zap.String("provider", adapter.Provider()))

	if !adapter.Verify(payload, signature) {
		log.Warn("webhook signature rejected", zap.Int("payload_bytes", len(payload)))
		s.obsMetrics.RecordWebhookEvent(ctx, "unknown", "invalid_signature")
		return paymentdomain.ErrInvalidSignature
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			log.Info("webhook event ignored", zap.String("event_type", eventName(payload)))
			s.obsMetrics.RecordWebhookEvent(ctx, eventName(payload), "ignored")
		} else {
			log.Warn("webhook payload rejected", zap.Error(err))
			s.obsMetrics.RecordWebhookEvent(ctx, eventName(payload), "rejected")
		}
		return err
	}

	ctx = obscontext.WithEvent(ctx, string(event.Kind), event.ID)
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ID,
		EventType:       string(event.Kind),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return fmt.Errorf("log webhook event: %w", err)
	}

	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			obslogger.WithContext(ctx, s.log).Info("webhook event already processed")
			s.obsMetrics.RecordWebhookEvent(ctx, string(event.Kind), "duplicate")
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	stored.Attempts++
	s.process(ctx, stored, event)
	return nil
}

// process dispatches an event and records the outcome on its log row.
// Handler errors are logged and kept on the row for replay.
func (s *Service) process(ctx context.Context, stored *paymentdomain.EventRecord, event *paymentdomain.Event) bool {
	log := obslogger.WithContext(ctx, s.log).With(zap.Int("attempt", stored.Attempts))

	if err := s.dispatch(ctx, event); err != nil {
		log.Error("webhook handler failed", zap.Error(err))
		s.obsMetrics.RecordWebhookEvent(ctx, string(event.Kind), "failed")
		if recErr := s.repo.RecordFailure(ctx, s.db, stored.ID, stored.Attempts, err.Error()); recErr != nil {
			log.Error("failed to record webhook failure", zap.Error(recErr))
		}
		if stored.Attempts >= s.maxAttempts {
			s.raiseExhausted(ctx, stored, err)
		}
		return false
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, stored.Attempts, s.clock.Now()); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
		return false
	}
	log.Info("webhook event processed")
	s.obsMetrics.RecordWebhookEvent(ctx, string(event.Kind), "processed")
	return true
}

// dispatch must name every EventKind; a kind without a case falls through to
// ErrUnhandledEvent.
func (s *Service) dispatch(ctx context.Context, event *paymentdomain.Event) error {
	switch event.Kind {
	case paymentdomain.EventKindChargeSuccess:
		return s.handleChargeSuccess(ctx, event.ChargeData())
	case paymentdomain.EventKindSubscriptionCreate:
		return s.handleSubscriptionCreate(ctx, event.SubscriptionData())
	case paymentdomain.EventKindSubscriptionNotRenew, paymentdomain.EventKindSubscriptionUpdate:
		return s.handleSubscriptionUpdate(ctx, event.SubscriptionData())
	case paymentdomain.EventKindSubscriptionDisable:
		return s.handleSubscriptionDisable(ctx, event.SubscriptionData())
	case paymentdomain.EventKindTransferSuccess:
		return s.handleTransfer(ctx, event.TransferData(), payoutdomain.StatusCompleted)
	case paymentdomain.EventKindTransferFailed:
		return s.handleTransfer(ctx, event.TransferData(), payoutdomain.StatusFailed)
	case paymentdomain.EventKindTransferReversed:
		return s.handleTransfer(ctx, event.TransferData(), payoutdomain.StatusReversed)
	}
	return fmt.Errorf("%w: %s", paymentdomain.ErrUnhandledEvent, event.Kind)
}

func (s *Service) handleChargeSuccess(ctx context.Context, charge *paymentdomain.Charge) error {
	if len(charge.Purchase) == 0 {
		obslogger.WithContext(ctx, s.log).Debug("charge without purchase marker, skipping",
			zap.String("reference", charge.Reference))
		return nil
	}

	items := make([]orderdomain.PurchaseItem, 0, len(charge.Purchase))
	for _, line := range charge.Purchase {
		sellerID, err := snowflake.ParseString(line.SellerID)
		if err != nil || sellerID == 0 {
			return fmt.Errorf("purchase line seller %q: %w", line.SellerID, orderdomain.ErrInvalidSeller)
		}
		items = append(items, orderdomain.PurchaseItem{
			SellerID:  sellerID,
			ProductID: line.ProductID,
			Amount:    line.Amount,
		})
	}

	buyerName := strings.TrimSpace(charge.Customer.FirstName + " " + charge.Customer.LastName)
	_, err := s.orderSvc.RecordPurchase(ctx, orderdomain.PurchaseRequest{
		Reference:     charge.Reference,
		BuyerEmail:    charge.Customer.Email,
		BuyerName:     buyerName,
		Currency:      charge.Currency,
		ChargedAmount: charge.Amount,
		Items:         items,
	})
	return err
}

func (s *Service) handleSubscriptionCreate(ctx context.Context, sub *paymentdomain.Subscription) error {
	_, err := s.subscriptionSvc.Activate(ctx, subscriptiondomain.ActivateRequest{
		CustomerCode:     sub.Customer.CustomerCode,
		SubscriptionCode: sub.SubscriptionCode,
		PlanCode:         sub.PlanCode,
		ProviderStatus:   sub.Status,
	})
	return err
}

func (s *Service) handleSubscriptionUpdate(ctx context.Context, sub *paymentdomain.Subscription) error {
	_, err := s.subscriptionSvc.UpdateStatus(ctx, subscriptiondomain.UpdateStatusRequest{
		SubscriptionCode: sub.SubscriptionCode,
		ProviderStatus:   sub.Status,
	})
	return err
}

func (s *Service) handleSubscriptionDisable(ctx context.Context, sub *paymentdomain.Subscription) error {
	_, err := s.subscriptionSvc.Disable(ctx, subscriptiondomain.DisableRequest{
		SubscriptionCode: sub.SubscriptionCode,
		ProviderStatus:   sub.Status,
	})
	return err
}

func (s *Service) handleTransfer(ctx context.Context, transfer *paymentdomain.Transfer, outcome payoutdomain.Status) error {
	reason := transfer.GatewayResponse
	if reason == "" && outcome != payoutdomain.StatusCompleted {
		reason = "transfer " + string(outcome)
	}
	_, err := s.payoutSvc.Settle(ctx, payoutdomain.SettleRequest{
		Reference: transfer.Reference,
		Outcome:   outcome,
		Reason:    reason,
	})
	return err
}

// Replay re-dispatches logged events that have not been processed and still
// have attempts left.
func (s *Service) Replay(ctx context.Context, limit int) (paymentdomain.ReplayResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var claimed []paymentdomain.EventRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = s.repo.ClaimPending(ctx, tx, s.maxAttempts, limit)
		return err
	})
	if err != nil {
		return paymentdomain.ReplayResult{}, fmt.Errorf("claim webhook events: %w", err)
	}

	result := paymentdomain.ReplayResult{Claimed: len(claimed)}
	for i := range claimed {
		stored := &claimed[i]
		if s.replayOne(ctx, stored) {
			result.Processed++
		} else {
			result.Failed++
		}
	}

	if result.Claimed > 0 {
		s.log.Info("webhook replay finished",
			zap.Int("claimed", result.Claimed),
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *Service) replayOne(ctx context.Context, stored *paymentdomain.EventRecord) bool {
	ctx = obscontext.WithEvent(ctx, stored.EventType, stored.ProviderEventID)
	log := obslogger.WithContext(ctx, s.log)

	adapter, err := s.adapters.Adapter(stored.Provider)
	if err == nil {
		var event *paymentdomain.Event
		event, err = adapter.Parse(stored.Payload)
		if err == nil {
			processed := s.process(ctx, stored, event)
			if processed && s.auditSvc != nil {
				targetID := stored.ID.String()
				if auditErr := s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionWebhookReplayed, "webhook_event", &targetID, map[string]any{
					"provider_event_id": stored.ProviderEventID,
					"attempts":          stored.Attempts,
				}); auditErr != nil {
					log.Warn("failed to write replay audit log", zap.Error(auditErr))
				}
			}
			return processed
		}
	}

	log.Error("stored webhook event cannot be replayed", zap.Error(err))
	if recErr := s.repo.RecordFailure(ctx, s.db, stored.ID, stored.Attempts, err.Error()); recErr != nil {
		log.Error("failed to record webhook failure", zap.Error(recErr))
	}
	if stored.Attempts >= s.maxAttempts {
		s.raiseExhausted(ctx, stored, err)
	}
	return false
}

func (s *Service) raiseExhausted(ctx context.Context, stored *paymentdomain.EventRecord, cause error) {
	if s.alertSvc == nil {
		return
	}
	_, err := s.alertSvc.Raise(context.WithoutCancel(ctx), alertdomain.RaiseRequest{
		Kind:     alertdomain.KindWebhookReplayExhausted,
		Severity: alertdomain.SeverityCritical,
		DedupKey: stored.Provider + ":" + stored.ProviderEventID,
		Message: fmt.Sprintf("%s event %s failed %d times: %v",
			stored.Provider, stored.ProviderEventID, stored.Attempts, cause),
		Metadata: map[string]any{
			"webhook_event_id":  stored.ID.String(),
			"provider_event_id": stored.ProviderEventID,
			"event_type":        stored.EventType,
			"attempts":          stored.Attempts,
		},
	})
	if err != nil {
		s.log.Error("failed to raise replay exhaustion alert", zap.Error(err))
	}
}

func (s *Service) ListFailed(ctx context.Context, req paymentdomain.ListFailedRequest) (paymentdomain.ListFailedResponse, error) {
	var cursor *paymentdomain.EventCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return paymentdomain.ListFailedResponse{}, paymentdomain.ErrInvalidPageToken
		}
		receivedAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return paymentdomain.ListFailedResponse{}, paymentdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return paymentdomain.ListFailedResponse{}, paymentdomain.ErrInvalidPageToken
		}
		cursor = &paymentdomain.EventCursor{ID: id, ReceivedAt: receivedAt}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	items, err := s.repo.ListFailed(ctx, s.db, paymentdomain.ListFailedFilter{
		Provider: strings.ToLower(strings.TrimSpace(req.Provider)),
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return paymentdomain.ListFailedResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *paymentdomain.EventRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.ReceivedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	events := make([]paymentdomain.EventRecord, 0, len(items))
	for _, item := range items {
		events = append(events, *item)
	}
	return paymentdomain.ListFailedResponse{PageInfo: pageInfo, Events: events}, nil
}

func eventName(payload []byte) string {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Event == "" {
		return "unknown"
	}
	return envelope.Event
}
