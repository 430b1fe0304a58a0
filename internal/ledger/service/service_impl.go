package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) WithTx(tx *gorm.DB) ledgerdomain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (*ledgerdomain.Ledger, error) {
	if req.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	sourceID := strings.TrimSpace(req.SourceID)
	if req.SourceType == "" || sourceID == "" {
		return nil, ledgerdomain.ErrInvalidSource
	}

	return s.mutate(ctx, req.UserID, true, func(tx *gorm.DB, ledger *ledgerdomain.Ledger, now time.Time) (ledgerdomain.EntryType, bool, error) {
		inserted, err := s.repo.InsertEntry(ctx, tx, s.newEntry(req.UserID, ledgerdomain.EntryTypeCredit, req.Amount, req.SourceType, sourceID, now))
		if err != nil || !inserted {
			return ledgerdomain.EntryTypeCredit, false, err
		}
		ledger.TotalEarnings += req.Amount
		return ledgerdomain.EntryTypeCredit, true, nil
	})
}

func (s *Service) ReserveForWithdrawal(ctx context.Context, req ledgerdomain.ReserveRequest) (*ledgerdomain.Ledger, error) {
	if req.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}

	return s.mutate(ctx, req.UserID, false, func(tx *gorm.DB, ledger *ledgerdomain.Ledger, now time.Time) (ledgerdomain.EntryType, bool, error) {
		if ledger.UserID == 0 {
			return ledgerdomain.EntryTypeReserve, false, ledgerdomain.ErrInsufficientBalance
		}
		inserted, err := s.repo.InsertEntry(ctx, tx, s.newEntry(req.UserID, ledgerdomain.EntryTypeReserve, req.Amount, ledgerdomain.SourceTypePayout, reference, now))
		if err != nil || !inserted {
			return ledgerdomain.EntryTypeReserve, false, err
		}
		if req.Amount > ledger.Available() {
			return ledgerdomain.EntryTypeReserve, false, ledgerdomain.ErrInsufficientBalance
		}
		ledger.Pending += req.Amount
		return ledgerdomain.EntryTypeReserve, true, nil
	})
}

func (s *Service) SettleWithdrawal(ctx context.Context, req ledgerdomain.SettleRequest) (*ledgerdomain.Ledger, error) {
	if req.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	if !req.Outcome.Valid() {
		return nil, ledgerdomain.ErrInvalidOutcome
	}

	entryType := ledgerdomain.EntryTypeRelease
	if req.Outcome == ledgerdomain.OutcomeCompleted {
		entryType = ledgerdomain.EntryTypeWithdraw
	}

	return s.mutate(ctx, req.UserID, false, func(tx *gorm.DB, ledger *ledgerdomain.Ledger, now time.Time) (ledgerdomain.EntryType, bool, error) {
		settled, err := s.repo.HasEntry(ctx, tx, req.UserID, ledgerdomain.SourceTypePayout, reference,
			ledgerdomain.EntryTypeWithdraw, ledgerdomain.EntryTypeRelease)
		if err != nil || settled {
			return entryType, false, err
		}
		if ledger.UserID == 0 || ledger.Pending < req.Amount {
			return entryType, false, ledgerdomain.ErrPendingUnderflow
		}
		if _, err := s.repo.InsertEntry(ctx, tx, s.newEntry(req.UserID, entryType, req.Amount, ledgerdomain.SourceTypePayout, reference, now)); err != nil {
			return entryType, false, err
		}
		ledger.Pending -= req.Amount
		if entryType == ledgerdomain.EntryTypeWithdraw {
			ledger.WithdrawnEarnings += req.Amount
		}
		return entryType, true, nil
	})
}

// mutate runs apply against the locked ledger row inside a transaction and
// persists the result when apply reports a change.
func (s *Service) mutate(
	ctx context.Context,
	userID snowflake.ID,
	create bool,
	apply func(tx *gorm.DB, ledger *ledgerdomain.Ledger, now time.Time) (ledgerdomain.EntryType, bool, error),
) (*ledgerdomain.Ledger, error) {
	var (
		result    ledgerdomain.Ledger
		entryType ledgerdomain.EntryType
		changed   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if create {
			if err := s.repo.Ensure(ctx, tx, &ledgerdomain.Ledger{
				UserID:    userID,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
		}

		ledger, err := s.repo.FindForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if ledger == nil {
			ledger = &ledgerdomain.Ledger{}
		}

		entryType, changed, err = apply(tx, ledger, now)
		if err != nil {
			return err
		}
		if !changed {
			result = *ledger
			return nil
		}

		if err := ledger.Validate(); err != nil {
			return err
		}
		ledger.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, ledger); err != nil {
			return err
		}
		result = *ledger
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.obsMetrics.RecordLedgerMutation(ctx, string(entryType))
		s.log.Debug("ledger mutated",
			zap.String("user_id", userID.String()),
			zap.String("entry_type", string(entryType)),
			zap.Int64("available", result.Available()),
			zap.Int64("pending", result.Pending),
		)
	}
	if result.UserID == 0 {
		result.UserID = userID
	}
	return &result, nil
}

func (s *Service) newEntry(userID snowflake.ID, entryType ledgerdomain.EntryType, amount int64, sourceType ledgerdomain.SourceType, sourceID string, now time.Time) *ledgerdomain.Entry {
	return &ledgerdomain.Entry{
		ID:         s.genID.Generate(),
		UserID:     userID,
		EntryType:  entryType,
		Amount:     amount,
		SourceType: sourceType,
		SourceID:   sourceID,
		CreatedAt:  now,
	}
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*ledgerdomain.Ledger, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	ledger, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return &ledgerdomain.Ledger{UserID: userID}, nil
	}
	return ledger, nil
}

func (s *Service) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	if req.UserID == 0 {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidUser
	}

	var cursor *ledgerdomain.EntryCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursor = &ledgerdomain.EntryCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	items, err := s.repo.ListEntries(ctx, s.db, ledgerdomain.ListEntriesFilter{
		UserID: req.UserID,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, fmt.Errorf("list ledger entries: %w", err)
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *ledgerdomain.Entry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	entries := make([]ledgerdomain.Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, *item)
	}
	return ledgerdomain.ListEntriesResponse{PageInfo: pageInfo, Entries: entries}, nil
}
