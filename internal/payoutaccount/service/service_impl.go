package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Gateway  gateway.Gateway
	Settings *config.SettingsHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	gateway  gateway.Gateway
	settings *config.SettingsHolder
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payoutaccount.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		gateway:  p.Gateway,
		settings: p.Settings,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Add(ctx context.Context, req domain.AddAccountRequest) (*domain.Account, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByNumber(ctx, s.db, req.UserID, req.AccountNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateAccount
	}

	// Resolve the recipient before taking any lock; the provider validates
	// the account number against the bank.
	recipient, err := s.gateway.CreateTransferRecipient(ctx, gateway.CreateRecipientRequest{
		Name:          req.AccountName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Currency:      s.settings.Get().Payouts.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer recipient: %w", err)
	}

	accountName := recipient.AccountName
	if accountName == "" {
		accountName = req.AccountName
	}

	var account domain.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockOwner(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrInvalidUser
		}

		dup, err := s.repo.FindByNumber(ctx, tx, req.UserID, req.AccountNumber)
		if err != nil {
			return err
		}
		if dup != nil {
			return domain.ErrDuplicateAccount
		}

		count, err := s.repo.CountByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		account = domain.Account{
			ID:            s.genID.Generate(),
			UserID:        req.UserID,
			AccountNumber: req.AccountNumber,
			BankCode:      req.BankCode,
			BankName:      recipient.BankName,
			AccountName:   accountName,
			RecipientCode: recipient.RecipientCode,
			Active:        count == 0,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateAccount
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, auditdomain.ActionPayoutAccountAdded, &account)
	return &account, nil
}

func (s *Service) SetActive(ctx context.Context, req domain.SetActiveRequest) (*domain.Account, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if req.AccountID == 0 {
		return nil, domain.ErrNotFound
	}

	var (
		account *domain.Account
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockOwner(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrInvalidUser
		}

		account, err = s.repo.FindByID(ctx, tx, req.UserID, req.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}
		if account.Active {
			return nil
		}

		now := time.Now().UTC()
		if err := s.repo.DeactivateAll(ctx, tx, req.UserID, now); err != nil {
			return err
		}
		if err := s.repo.Activate(ctx, tx, account.ID, now); err != nil {
			return err
		}
		account.Active = true
		account.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.audit(ctx, auditdomain.ActionPayoutAccountActivated, account)
	}
	return account, nil
}

func (s *Service) GetActive(ctx context.Context, userID snowflake.ID) (*domain.Account, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	account, err := s.repo.FindActive(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}
	return account, nil
}

func (s *Service) Get(ctx context.Context, userID, accountID snowflake.ID) (*domain.Account, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	account, err := s.repo.FindByID(ctx, s.db, userID, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}
	return account, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID) ([]domain.Account, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) audit(ctx context.Context, action string, account *domain.Account) {
	if s.auditSvc == nil || account == nil {
		return
	}
	targetID := account.ID.String()
	actorID := account.UserID.String()
	err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, action, "payout_account", &targetID, map[string]any{
		"account_number": account.AccountNumber,
		"bank_code":      account.BankCode,
		"active":         account.Active,
	})
	if err != nil {
		s.log.Warn("failed to write payout account audit log", zap.String("action", action), zap.Error(err))
	}
}
