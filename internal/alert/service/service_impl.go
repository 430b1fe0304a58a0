package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/providers/slack"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  alertdomain.Repository
	Slack slack.Provider
	Cfg   config.Config
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    alertdomain.Repository
	slack   slack.Provider
	channel string
}

func New(p Params) alertdomain.Service {
	notifier := p.Slack
	if notifier == nil {
		notifier = &slack.NoOpProvider{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("alert.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		slack:   notifier,
		channel: p.Cfg.Slack.Channel,
	}
}

func (s *Service) Raise(ctx context.Context, req alertdomain.RaiseRequest) (bool, error) {
	if strings.TrimSpace(string(req.Kind)) == "" {
		return false, alertdomain.ErrInvalidKind
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return false, alertdomain.ErrInvalidMessage
	}
	severity := req.Severity
	if severity == "" {
		severity = alertdomain.SeverityWarning
	}
	dedupKey := strings.TrimSpace(req.DedupKey)
	id := s.genID.Generate()
	if dedupKey == "" {
		dedupKey = id.String()
	}

	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	alert := &alertdomain.Alert{
		ID:        id,
		Kind:      req.Kind,
		Severity:  severity,
		DedupKey:  dedupKey,
		Message:   message,
		Metadata:  datatypes.JSONMap(metadata),
		CreatedAt: time.Now().UTC(),
	}
	inserted, err := s.repo.Insert(ctx, s.db, alert)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	s.log.Warn("operator alert raised",
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
		zap.String("dedup_key", alert.DedupKey),
		zap.String("message", alert.Message),
	)

	text := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(severity)), req.Kind, message)
	if err := s.slack.PostMessage(ctx, s.channel, text); err != nil {
		s.log.Warn("failed to forward alert to slack", zap.String("kind", string(req.Kind)), zap.Error(err))
	}
	return true, nil
}

func (s *Service) List(ctx context.Context, req alertdomain.ListAlertsRequest) (alertdomain.ListAlertsResponse, error) {
	var cursor *alertdomain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return alertdomain.ListAlertsResponse{}, alertdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return alertdomain.ListAlertsResponse{}, alertdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return alertdomain.ListAlertsResponse{}, alertdomain.ErrInvalidPageToken
		}
		cursor = &alertdomain.Cursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	items, err := s.repo.List(ctx, s.db, alertdomain.ListFilter{
		Kind:   alertdomain.Kind(strings.TrimSpace(req.Kind)),
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return alertdomain.ListAlertsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *alertdomain.Alert) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	out := make([]alertdomain.Alert, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return alertdomain.ListAlertsResponse{PageInfo: pageInfo, Alerts: out}, nil
}
