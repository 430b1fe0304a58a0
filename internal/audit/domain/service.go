package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/payoutd/pkg/db/pagination"
)

const (
	ActionPayoutAccountAdded     = "payout_account.added"
	ActionPayoutAccountActivated = "payout_account.activated"
	ActionPayoutInitiated        = "payout.initiated"
	ActionPayoutSettled          = "payout.settled"
	ActionSubscriptionReconciled = "subscription.reconciled"
	ActionWebhookReplayed        = "webhook_event.replayed"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorType  string `form:"actor_type"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
