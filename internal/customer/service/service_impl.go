package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/customer/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

// Record creates the seller/buyer relationship on the first order and only
// touches updated_at on later ones.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.Customer, error) {
	if req.SellerID == 0 {
		return nil, domain.ErrInvalidSeller
	}
	if req.OrderID == 0 {
		return nil, domain.ErrInvalidOrder
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		ID:           s.genID.Generate(),
		SellerID:     req.SellerID,
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		FirstOrderID: req.OrderID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Upsert(ctx, s.db, &customer); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindByEmail(ctx, s.db, req.SellerID, email)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return &customer, nil
	}
	return stored, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	if req.SellerID == 0 {
		return domain.ListCustomerResponse{}, domain.ErrInvalidSeller
	}

	var cursor *domain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListCustomerResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListCustomerResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return domain.ListCustomerResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListCustomerFilter{
		SellerID: req.SellerID,
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(customer *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        customer.ID.String(),
			CreatedAt: customer.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: customers}, nil
}
