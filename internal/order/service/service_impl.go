package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/config"
	customerdomain "github.com/smallbiznis/payoutd/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	"github.com/smallbiznis/payoutd/internal/order/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	CustomerSvc customerdomain.Service
	LedgerSvc   ledgerdomain.Service
	Settings    *config.SettingsHolder `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	customerSvc customerdomain.Service
	ledgerSvc   ledgerdomain.Service
	settings    *config.SettingsHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		customerSvc: p.CustomerSvc,
		ledgerSvc:   p.LedgerSvc,
		settings:    p.Settings,
	}
}

// RecordPurchase stores every line item, records the buyer against each
// seller and credits each seller with their item amount in one transaction.
// Redelivery of the same reference changes nothing. Purchases whose items
// add up to more than was charged, or that were charged in another
// currency, are rejected before anything is written.
func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.PurchaseResult, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	buyerEmail := strings.ToLower(strings.TrimSpace(req.BuyerEmail))
	if buyerEmail == "" {
		return nil, domain.ErrInvalidBuyer
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}
	for _, item := range req.Items {
		if item.SellerID == 0 {
			return nil, domain.ErrInvalidSeller
		}
		if item.Amount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if want := strings.ToUpper(s.settings.Get().Payouts.Currency); currency != want {
		return nil, fmt.Errorf("%w: charged in %q, ledger is %q", domain.ErrCurrencyMismatch, currency, want)
	}
	remaining := req.ChargedAmount
	for _, item := range req.Items {
		if item.Amount > remaining {
			return nil, fmt.Errorf("%w: items exceed charged amount %d", domain.ErrChargeAmountMismatch, req.ChargedAmount)
		}
		remaining -= item.Amount
	}

	result := &domain.PurchaseResult{Orders: make([]domain.Order, 0, len(req.Items))}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customers := s.customerSvc.WithTx(tx)
		ledger := s.ledgerSvc.WithTx(tx)

		for lineNo, item := range req.Items {
			order := domain.Order{
				ID:         s.genID.Generate(),
				Reference:  reference,
				LineNo:     lineNo,
				BuyerEmail: buyerEmail,
				BuyerName:  strings.TrimSpace(req.BuyerName),
				SellerID:   item.SellerID,
				ProductID:  strings.TrimSpace(item.ProductID),
				Amount:     item.Amount,
				Currency:   currency,
				CreatedAt:  time.Now().UTC(),
			}
			inserted, err := s.repo.Insert(ctx, tx, &order)
			if err != nil {
				return fmt.Errorf("insert order line %d: %w", lineNo, err)
			}
			if inserted {
				result.Created++
			} else {
				existing, err := s.repo.FindByLine(ctx, tx, reference, lineNo)
				if err != nil {
					return err
				}
				if existing != nil {
					order = *existing
				}
			}

			if _, err := customers.Record(ctx, customerdomain.RecordRequest{
				SellerID: order.SellerID,
				Email:    order.BuyerEmail,
				Name:     order.BuyerName,
				OrderID:  order.ID,
			}); err != nil {
				return fmt.Errorf("record customer line %d: %w", lineNo, err)
			}

			if _, err := ledger.Credit(ctx, ledgerdomain.CreditRequest{
				UserID:     order.SellerID,
				Amount:     order.Amount,
				SourceType: ledgerdomain.SourceTypeOrder,
				SourceID:   domain.LedgerSourceID(reference, lineNo),
			}); err != nil {
				return fmt.Errorf("credit seller line %d: %w", lineNo, err)
			}
			result.Orders = append(result.Orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("purchase recorded",
		zap.String("reference", reference),
		zap.Int("lines", len(req.Items)),
		zap.Int("created", result.Created),
	)
	return result, nil
}

func (s *Service) ListSales(ctx context.Context, req domain.ListSalesRequest) (domain.ListSalesResponse, error) {
	if req.SellerID == 0 {
		return domain.ListSalesResponse{}, domain.ErrInvalidSeller
	}

	var cursor *domain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListSalesResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListSalesResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return domain.ListSalesResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	items, err := s.repo.ListBySeller(ctx, s.db, domain.ListFilter{
		SellerID: req.SellerID,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return domain.ListSalesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *domain.Order) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		orders = append(orders, *item)
	}
	return domain.ListSalesResponse{PageInfo: pageInfo, Orders: orders}, nil
}
