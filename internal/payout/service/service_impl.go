package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	accountdomain "github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	"github.com/smallbiznis/payoutd/internal/providers/pdf"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const referencePrefix = "po_"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       payoutdomain.Repository
	LedgerSvc  ledgerdomain.Service
	AccountSvc accountdomain.Service
	Gateway    gateway.Gateway
	Settings   *config.SettingsHolder
	Clock      clock.Clock           `optional:"true"`
	Lock       payoutdomain.UserLock `optional:"true"`
	AuditSvc   auditdomain.Service   `optional:"true"`
	AlertSvc   alertdomain.Service   `optional:"true"`
	PDF        pdf.Provider          `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       payoutdomain.Repository
	ledgerSvc  ledgerdomain.Service
	accountSvc accountdomain.Service
	gateway    gateway.Gateway
	settings   *config.SettingsHolder
	clock      clock.Clock
	lock       payoutdomain.UserLock
	auditSvc   auditdomain.Service
	alertSvc   alertdomain.Service
	pdf        pdf.Provider
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) payoutdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledgerSvc:  p.LedgerSvc,
		accountSvc: p.AccountSvc,
		gateway:    p.Gateway,
		settings:   p.Settings,
		clock:      clk,
		lock:       p.Lock,
		auditSvc:   p.AuditSvc,
		alertSvc:   p.AlertSvc,
		pdf:        p.PDF,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Initiate(ctx context.Context, req payoutdomain.InitiateRequest) (payout *payoutdomain.Payout, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeLabel(err)
		}
		s.obsMetrics.RecordPayoutInitiated(ctx, outcome)
	}()

	policy := s.settings.Get().Payouts
	if req.UserID == 0 {
		return nil, payoutdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, payoutdomain.ErrInvalidAmount
	}
	if policy.MinAmount > 0 && req.Amount < policy.MinAmount {
		return nil, payoutdomain.ErrAmountBelowMinimum
	}
	if policy.MaxAmount > 0 && req.Amount > policy.MaxAmount {
		return nil, payoutdomain.ErrAmountAboveMaximum
	}

	account, err := s.accountSvc.GetActive(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, accountdomain.ErrNotFound) {
			return nil, payoutdomain.ErrNoPayoutAccount
		}
		return nil, err
	}

	userKey := req.UserID.String()
	if s.lock != nil {
		token, ok, err := s.lock.TryLockUser(ctx, userKey)
		if err != nil {
			return nil, fmt.Errorf("acquire payout lock: %w", err)
		}
		if !ok {
			return nil, payoutdomain.ErrPayoutInProgress
		}
		defer func() {
			if err := s.lock.ReleaseUser(context.WithoutCancel(ctx), userKey, token); err != nil {
				s.log.Warn("failed to release payout lock", zap.String("user_id", userKey), zap.Error(err))
			}
		}()
	}

	reference := referencePrefix + strings.ToLower(ulid.Make().String())
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("reference", reference),
		zap.Int64("amount", req.Amount),
	)

	if _, err := s.ledgerSvc.ReserveForWithdrawal(ctx, ledgerdomain.ReserveRequest{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: reference,
	}); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = policy.TransferReason
	}

	transfer, err := s.initiateTransfer(ctx, policy.ProviderTimeout, gateway.InitiateTransferRequest{
		Amount:        req.Amount,
		RecipientCode: account.RecipientCode,
		Reference:     reference,
		Reason:        reason,
		Currency:      policy.Currency,
	})
	if err != nil {
		log.Warn("transfer initiation failed, releasing reservation", zap.Error(err))
		s.releaseReservation(ctx, log, req.UserID, req.Amount, reference)
		return nil, fmt.Errorf("initiate transfer: %w", err)
	}

	now := s.clock.Now()
	payout = &payoutdomain.Payout{
		ID:           s.genID.Generate(),
		UserID:       req.UserID,
		AccountID:    account.ID,
		Reference:    reference,
		Amount:       req.Amount,
		Currency:     policy.Currency,
		Status:       payoutdomain.StatusPending,
		TransferCode: transfer.TransferCode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, payout); err != nil {
		// The transfer is already queued at the provider; the reservation
		// stays so the settlement webhook can resolve it once the row exists.
		log.Error("failed to persist initiated payout", zap.String("transfer_code", transfer.TransferCode), zap.Error(err))
		s.raise(ctx, alertdomain.RaiseRequest{
			Kind:     alertdomain.KindPayoutPersistFailed,
			Severity: alertdomain.SeverityCritical,
			DedupKey: reference,
			Message:  fmt.Sprintf("transfer %s for payout %s was queued but the payout could not be stored", transfer.TransferCode, reference),
			Metadata: map[string]any{
				"reference":     reference,
				"user_id":       userKey,
				"amount":        req.Amount,
				"transfer_code": transfer.TransferCode,
			},
		})
		return nil, fmt.Errorf("persist payout: %w", err)
	}

	log.Info("payout initiated", zap.String("transfer_code", transfer.TransferCode))
	s.audit(ctx, auditdomain.ActionPayoutInitiated, payout, map[string]any{
		"amount":         payout.Amount,
		"currency":       payout.Currency,
		"account_number": account.AccountNumber,
	})
	return payout, nil
}

func (s *Service) initiateTransfer(ctx context.Context, timeout time.Duration, req gateway.InitiateTransferRequest) (*gateway.Transfer, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	transfer, err := s.gateway.InitiateTransfer(callCtx, req)
	if err == nil && transfer == nil {
		err = errors.New("empty transfer response")
	}
	if err != nil {
		if !errors.Is(err, gateway.ErrProvider) {
			err = &gateway.ProviderError{Operation: "initiate_transfer", Err: err}
		}
		return nil, err
	}
	return transfer, nil
}

func (s *Service) releaseReservation(ctx context.Context, log *zap.Logger, userID snowflake.ID, amount int64, reference string) {
	_, err := s.ledgerSvc.SettleWithdrawal(context.WithoutCancel(ctx), ledgerdomain.SettleRequest{
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		Outcome:   ledgerdomain.OutcomeFailed,
	})
	if err != nil {
		log.Error("failed to release payout reservation", zap.Error(err))
	}
}

func (s *Service) Settle(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.SettleResult, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, payoutdomain.ErrInvalidReference
	}
	if !req.Outcome.Terminal() {
		return nil, payoutdomain.ErrInvalidOutcome
	}

	result := &payoutdomain.SettleResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err := s.repo.FindByReferenceForUpdate(ctx, tx, reference)
		if err != nil {
			return err
		}
		if payout == nil {
			return payoutdomain.ErrNotFound
		}
		result.Payout = payout
		if !payout.Status.CanTransition(req.Outcome) {
			return nil
		}

		now := s.clock.Now()
		payout.Status = req.Outcome
		payout.UpdatedAt = now
		payout.SettledAt = &now
		if req.Outcome != payoutdomain.StatusCompleted {
			payout.FailureReason = strings.TrimSpace(req.Reason)
		}
		if err := s.repo.UpdateSettlement(ctx, tx, payout); err != nil {
			return err
		}

		if _, err := s.ledgerSvc.WithTx(tx).SettleWithdrawal(ctx, ledgerdomain.SettleRequest{
			UserID:    payout.UserID,
			Amount:    payout.Amount,
			Reference: payout.Reference,
			Outcome:   req.Outcome.LedgerOutcome(),
		}); err != nil {
			return fmt.Errorf("settle ledger: %w", err)
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("reference", reference),
		zap.String("outcome", string(req.Outcome)),
	)
	if !result.Applied {
		log.Info("payout already settled, skipping", zap.String("status", string(result.Payout.Status)))
		return result, nil
	}

	log.Info("payout settled")
	s.obsMetrics.RecordPayoutSettled(ctx, string(req.Outcome))
	s.audit(ctx, auditdomain.ActionPayoutSettled, result.Payout, map[string]any{
		"status":         string(result.Payout.Status),
		"failure_reason": result.Payout.FailureReason,
	})
	return result, nil
}

func (s *Service) Get(ctx context.Context, userID, payoutID snowflake.ID) (*payoutdomain.Payout, error) {
	if userID == 0 {
		return nil, payoutdomain.ErrInvalidUser
	}
	payout, err := s.repo.FindByID(ctx, s.db, userID, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, payoutdomain.ErrNotFound
	}
	return payout, nil
}

func (s *Service) List(ctx context.Context, req payoutdomain.ListRequest) (payoutdomain.ListResponse, error) {
	if req.UserID == 0 {
		return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidUser
	}

	status := payoutdomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != "" && status != payoutdomain.StatusPending && !status.Terminal() {
		return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidStatus
	}

	var cursor *payoutdomain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidPageToken
		}
		cursor = &payoutdomain.Cursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	items, err := s.repo.List(ctx, s.db, payoutdomain.ListFilter{
		UserID: req.UserID,
		Status: status,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return payoutdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *payoutdomain.Payout) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	payouts := make([]payoutdomain.Payout, 0, len(items))
	for _, item := range items {
		payouts = append(payouts, *item)
	}
	return payoutdomain.ListResponse{PageInfo: pageInfo, Payouts: payouts}, nil
}

func (s *Service) Receipt(ctx context.Context, userID, payoutID snowflake.ID) (*payoutdomain.Receipt, error) {
	payout, err := s.Get(ctx, userID, payoutID)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, errors.New("receipt renderer not configured")
	}

	account, err := s.accountSvc.Get(ctx, userID, payout.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load payout account: %w", err)
	}

	data := pdf.PayoutReceiptData{
		Reference:     payout.Reference,
		Status:        string(payout.Status),
		Amount:        formatMinor(payout.Amount),
		Currency:      payout.Currency,
		AccountName:   account.AccountName,
		BankName:      account.BankName,
		AccountNumber: maskAccountNumber(account.AccountNumber),
		TransferCode:  payout.TransferCode,
		RequestedAt:   payout.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
		FailureReason: payout.FailureReason,
	}
	if payout.SettledAt != nil {
		data.SettledAt = payout.SettledAt.UTC().Format("2006-01-02 15:04 MST")
	}

	content, err := s.pdf.GeneratePayoutReceipt(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return &payoutdomain.Receipt{
		Filename: "payout-" + payout.Reference + ".pdf",
		Content:  content,
	}, nil
}

func (s *Service) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]payoutdomain.Payout, error) {
	return s.repo.ListUnalertedPendingBefore(ctx, s.db, olderThan, limit)
}

func (s *Service) audit(ctx context.Context, action string, payout *payoutdomain.Payout, metadata map[string]any) {
	if s.auditSvc == nil || payout == nil {
		return
	}
	targetID := payout.Reference
	metadata["payout_id"] = payout.ID.String()
	metadata["user_id"] = payout.UserID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "payout", &targetID, metadata); err != nil {
		s.log.Warn("failed to write payout audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) raise(ctx context.Context, req alertdomain.RaiseRequest) {
	if s.alertSvc == nil {
		return
	}
	if _, err := s.alertSvc.Raise(context.WithoutCancel(ctx), req); err != nil {
		s.log.Error("failed to raise alert", zap.String("kind", string(req.Kind)), zap.Error(err))
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, payoutdomain.ErrNoPayoutAccount):
		return "no_payout_account"
	case errors.Is(err, payoutdomain.ErrPayoutInProgress):
		return "in_progress"
	case errors.Is(err, gateway.ErrProvider):
		return "provider_error"
	default:
		return "error"
	}
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

func maskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
