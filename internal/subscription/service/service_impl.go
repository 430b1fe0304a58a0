package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
	userdomain "github.com/smallbiznis/payoutd/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	users    userdomain.Repository
	gateway  gateway.Gateway
	settings *config.SettingsHolder
	callback string

	auditSvc auditdomain.Service
	alertSvc alertdomain.Service
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock `optional:"true"`
	Repo     subscriptiondomain.Repository
	Users    userdomain.Repository
	Gateway  gateway.Gateway
	Settings *config.SettingsHolder
	Cfg      config.Config

	AuditSvc auditdomain.Service `optional:"true"`
	AlertSvc alertdomain.Service `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		clock:    clk,
		repo:     p.Repo,
		users:    p.Users,
		gateway:  p.Gateway,
		settings: p.Settings,
		callback: p.Cfg.Paystack.CallbackURL,

		auditSvc: p.AuditSvc,
		alertSvc: p.AlertSvc,
	}
}

// Subscribe starts checkout for the premium plan. A provider-side active
// subscription that is unknown locally is reconciled and reported as a
// conflict instead of opening a second checkout.
func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (*subscriptiondomain.Subscription, error) {
	if req.UserID == 0 {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	settings := s.settings.Get()
	planCode := strings.TrimSpace(req.PlanCode)
	if planCode == "" {
		planCode = settings.Subscription.PlanCode
	}
	if planCode == "" {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	current, err := s.repo.FindLatestByUser(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status == subscriptiondomain.SubscriptionStatusActive {
		return nil, subscriptiondomain.ErrSubscriptionConflict
	}

	user, err := s.users.FindByID(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, subscriptiondomain.ErrInvalidUser
	}

	customerCode, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	remote, err := s.gateway.ListSubscriptions(ctx, customerCode)
	if err != nil {
		return nil, fmt.Errorf("list provider subscriptions: %w", err)
	}
	for _, sub := range remote {
		if status, ok := subscriptiondomain.MapProviderStatus(sub.Status); ok && status == subscriptiondomain.SubscriptionStatusActive {
			if _, err := s.reconcile(ctx, user.ID, customerCode, sub); err != nil {
				return nil, err
			}
			return nil, subscriptiondomain.ErrSubscriptionConflict
		}
	}

	reference := "sub_" + strings.ToLower(ulid.Make().String())
	init, err := s.gateway.InitializeTransaction(ctx, gateway.InitializeTransactionRequest{
		Email:       user.Email,
		Amount:      settings.Subscription.Amount,
		PlanCode:    planCode,
		CallbackURL: s.callback,
		Reference:   reference,
		Metadata:    map[string]any{"user_id": user.ID.String(), "kind": "subscription"},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}

	var result *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		open, err := s.repo.FindOpenByUserForUpdate(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if open != nil && open.Status == subscriptiondomain.SubscriptionStatusActive {
			return subscriptiondomain.ErrSubscriptionConflict
		}
		if open != nil {
			open.CustomerCode = customerCode
			open.PlanCode = planCode
			open.AuthorizationURL = init.AuthorizationURL
			open.AccessReference = init.Reference
			open.UpdatedAt = now
			result = open
			return s.repo.Update(ctx, tx, open)
		}

		result = &subscriptiondomain.Subscription{
			ID:               s.genID.Generate(),
			UserID:           user.ID,
			CustomerCode:     customerCode,
			PlanCode:         planCode,
			Status:           subscriptiondomain.SubscriptionStatusPending,
			AuthorizationURL: init.AuthorizationURL,
			AccessReference:  init.Reference,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return s.repo.Insert(ctx, tx, result)
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("subscription checkout started",
		zap.String("subscription_id", result.ID.String()),
		zap.String("plan_code", planCode),
	)
	return result, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *userdomain.User) (string, error) {
	if user.PaystackCustomerCode != nil && *user.PaystackCustomerCode != "" {
		return *user.PaystackCustomerCode, nil
	}

	first, last := splitName(user.Name)
	customer, err := s.gateway.CreateCustomer(ctx, gateway.CreateCustomerRequest{
		Email:     user.Email,
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		return "", fmt.Errorf("create provider customer: %w", err)
	}
	if err := s.users.SetCustomerCode(ctx, s.db, user.ID, customer.CustomerCode, s.clock.Now()); err != nil {
		return "", err
	}
	return customer.CustomerCode, nil
}

// reconcile writes the provider's active subscription locally, upgrades the
// user and tells operators that local state had drifted.
//
// A provider code that belongs to a closed local subscription is never
// reopened; operators are alerted and ErrSubscriptionConflict is returned.
func (s *Service) reconcile(ctx context.Context, userID snowflake.ID, customerCode string, remote gateway.Subscription) (*subscriptiondomain.Subscription, error) {
	var result, closed *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		code := remote.SubscriptionCode
		existing, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing == nil {
			existing, err = s.repo.FindOpenByUserForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
		}

		if existing != nil && existing.Status != subscriptiondomain.SubscriptionStatusActive &&
			!subscriptiondomain.CanTransition(existing.Status, subscriptiondomain.SubscriptionStatusActive) {
			closed = existing
			return nil
		}

		if existing != nil {
			existing.SubscriptionCode = &code
			existing.CustomerCode = customerCode
			if remote.PlanCode != "" {
				existing.PlanCode = remote.PlanCode
			}
			existing.Status = subscriptiondomain.SubscriptionStatusActive
			existing.ProviderStatus = remote.Status
			existing.CancelledAt = nil
			existing.UpdatedAt = now
			result = existing
			if err := s.repo.Update(ctx, tx, existing); err != nil {
				return err
			}
		} else {
			result = &subscriptiondomain.Subscription{
				ID:               s.genID.Generate(),
				UserID:           userID,
				CustomerCode:     customerCode,
				SubscriptionCode: &code,
				PlanCode:         remote.PlanCode,
				Status:           subscriptiondomain.SubscriptionStatusActive,
				ProviderStatus:   remote.Status,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := s.repo.Insert(ctx, tx, result); err != nil {
				return err
			}
		}
		return s.users.UpdateAccountType(ctx, tx, userID, userdomain.AccountTypePremium, now)
	})
	if err != nil {
		return nil, err
	}
	if closed != nil {
		s.reportClosedCode(ctx, userID, closed, remote)
		return nil, subscriptiondomain.ErrSubscriptionConflict
	}

	obslogger.WithContext(ctx, s.log).Warn("subscription reconciled from provider state",
		zap.String("user_id", userID.String()),
		zap.String("subscription_code", remote.SubscriptionCode),
	)

	targetID := result.ID.String()
	metadata := map[string]any{
		"user_id":           userID.String(),
		"customer_code":     customerCode,
		"subscription_code": remote.SubscriptionCode,
		"provider_status":   remote.Status,
	}
	if s.auditSvc != nil {
		if err := s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionSubscriptionReconciled, "subscription", &targetID, metadata); err != nil {
			s.log.Warn("failed to write subscription audit log", zap.Error(err))
		}
	}
	if s.alertSvc != nil {
		if _, err := s.alertSvc.Raise(context.WithoutCancel(ctx), alertdomain.RaiseRequest{
			Kind:     alertdomain.KindSubscriptionReconciled,
			Severity: alertdomain.SeverityWarning,
			DedupKey: remote.SubscriptionCode,
			Message:  fmt.Sprintf("provider subscription %s for user %s had no local record and was reconciled", remote.SubscriptionCode, userID),
			Metadata: metadata,
		}); err != nil {
			s.log.Error("failed to raise reconciliation alert", zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) reportClosedCode(ctx context.Context, userID snowflake.ID, closed *subscriptiondomain.Subscription, remote gateway.Subscription) {
	obslogger.WithContext(ctx, s.log).Warn("provider reports closed subscription as active",
		zap.String("user_id", userID.String()),
		zap.String("subscription_id", closed.ID.String()),
		zap.String("subscription_code", remote.SubscriptionCode),
		zap.String("local_status", string(closed.Status)),
		zap.String("provider_status", remote.Status),
	)
	if s.alertSvc == nil {
		return
	}
	if _, err := s.alertSvc.Raise(context.WithoutCancel(ctx), alertdomain.RaiseRequest{
		Kind:     alertdomain.KindSubscriptionCodeConflict,
		Severity: alertdomain.SeverityWarning,
		DedupKey: remote.SubscriptionCode,
		Message: fmt.Sprintf("provider lists subscription %s as %s but it is %s locally",
			remote.SubscriptionCode, remote.Status, closed.Status),
		Metadata: map[string]any{
			"user_id":           userID.String(),
			"subscription_id":   closed.ID.String(),
			"subscription_code": remote.SubscriptionCode,
			"provider_status":   remote.Status,
		},
	}); err != nil {
		s.log.Error("failed to raise subscription conflict alert", zap.Error(err))
	}
}

// Activate handles subscription.create. The user becomes premium.
func (s *Service) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (*subscriptiondomain.Subscription, error) {
	customerCode := strings.TrimSpace(req.CustomerCode)
	if customerCode == "" {
		return nil, subscriptiondomain.ErrInvalidCustomer
	}
	code := strings.TrimSpace(req.SubscriptionCode)
	if code == "" {
		return nil, subscriptiondomain.ErrInvalidSubscriptionCode
	}
	providerStatus := req.ProviderStatus
	if providerStatus == "" {
		providerStatus = "active"
	}

	var (
		result         *subscriptiondomain.Subscription
		needsReconcile bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing == nil {
			existing, err = s.repo.FindOpenByCustomerForUpdate(ctx, tx, customerCode)
			if err != nil {
				return err
			}
		}
		if existing == nil {
			needsReconcile = true
			return nil
		}

		result = existing
		if existing.Status == subscriptiondomain.SubscriptionStatusActive && existing.SubscriptionCode != nil && *existing.SubscriptionCode == code {
			return nil
		}
		if existing.Status != subscriptiondomain.SubscriptionStatusActive &&
			!subscriptiondomain.CanTransition(existing.Status, subscriptiondomain.SubscriptionStatusActive) {
			s.log.Info("ignoring activation of closed subscription",
				zap.String("subscription_code", code),
				zap.String("status", string(existing.Status)),
			)
			return nil
		}

		now := s.clock.Now()
		existing.SubscriptionCode = &code
		if req.PlanCode != "" {
			existing.PlanCode = req.PlanCode
		}
		existing.Status = subscriptiondomain.SubscriptionStatusActive
		existing.ProviderStatus = providerStatus
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return err
		}
		return s.users.UpdateAccountType(ctx, tx, existing.UserID, userdomain.AccountTypePremium, now)
	})
	if err != nil {
		return nil, err
	}

	if needsReconcile {
		user, err := s.findUserByCustomer(ctx, customerCode)
		if err != nil {
			return nil, err
		}
		return s.reconcile(ctx, user.ID, customerCode, gateway.Subscription{
			SubscriptionCode: code,
			PlanCode:         req.PlanCode,
			Status:           providerStatus,
			CustomerCode:     customerCode,
		})
	}

	obslogger.WithContext(ctx, s.log).Info("subscription active",
		zap.String("subscription_id", result.ID.String()),
		zap.String("subscription_code", code),
	)
	return result, nil
}

func (s *Service) findUserByCustomer(ctx context.Context, customerCode string) (*userdomain.User, error) {
	user, err := s.users.FindByCustomerCode(ctx, s.db, customerCode)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("customer %s: %w", customerCode, userdomain.ErrNotFound)
	}
	return user, nil
}

// UpdateStatus records a provider status change. Only the subscription row
// changes; account type follows Activate and Disable.
func (s *Service) UpdateStatus(ctx context.Context, req subscriptiondomain.UpdateStatusRequest) (*subscriptiondomain.Subscription, error) {
	code := strings.TrimSpace(req.SubscriptionCode)
	if code == "" {
		return nil, subscriptiondomain.ErrInvalidSubscriptionCode
	}
	target, ok := subscriptiondomain.MapProviderStatus(req.ProviderStatus)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidProviderStatus
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		result = existing

		now := s.clock.Now()
		existing.ProviderStatus = req.ProviderStatus
		existing.UpdatedAt = now
		if existing.Status != target {
			if !subscriptiondomain.CanTransition(existing.Status, target) {
				s.log.Info("ignoring subscription status change",
					zap.String("subscription_code", code),
					zap.String("from", string(existing.Status)),
					zap.String("to", string(target)),
				)
				return nil
			}
			existing.Status = target
			if target == subscriptiondomain.SubscriptionStatusCancelled {
				existing.CancelledAt = &now
			}
		}
		return s.repo.Update(ctx, tx, existing)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Disable handles subscription.disable: the record is cancelled and the user
// returns to the free tier.
func (s *Service) Disable(ctx context.Context, req subscriptiondomain.DisableRequest) (*subscriptiondomain.Subscription, error) {
	code := strings.TrimSpace(req.SubscriptionCode)
	if code == "" {
		return nil, subscriptiondomain.ErrInvalidSubscriptionCode
	}
	providerStatus := req.ProviderStatus
	if providerStatus == "" {
		providerStatus = "cancelled"
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		result = existing
		if existing.Status == subscriptiondomain.SubscriptionStatusCancelled {
			return nil
		}

		now := s.clock.Now()
		existing.Status = subscriptiondomain.SubscriptionStatusCancelled
		existing.ProviderStatus = providerStatus
		existing.CancelledAt = &now
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, existing); err != nil {
			return err
		}
		return s.users.UpdateAccountType(ctx, tx, existing.UserID, userdomain.AccountTypeFree, now)
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("subscription cancelled", zap.String("subscription_code", code))
	return result, nil
}

func (s *Service) Current(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if userID == 0 {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	item, err := s.repo.FindLatestByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return item, nil
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
