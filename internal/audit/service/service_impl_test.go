package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/audit/repository"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/smallbiznis/payoutd/internal/usercontext"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) auditdomain.Service {
	t.Helper()
	return NewService(Params{
		DB:    testutil.OpenDB(t),
		Log:   testutil.Logger(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
	})
}

func TestAuditLogMasksAndEnrichesFromContext(t *testing.T) {
	svc := newService(t)

	ctx := obscontext.WithEvent(context.Background(), "transfer.success", "transfer.success:9")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = usercontext.WithUserID(ctx, snowflake.ID(77))

	target := "1001"
	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionPayoutAccountAdded, "payout_account", &target, map[string]any{
		"account_number": "0123456789",
		"recipient_code": "RCP_abcdef123",
		"bank_code":      "057",
		"provider":       map[string]any{"customer_code": "CUS_xyz98765"},
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	entry := resp.AuditLogs[0]

	assert.Equal(t, string(auditdomain.ActorTypeUser), entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "1001", *entry.TargetID)

	assert.Equal(t, "****6789", entry.Metadata["account_number"])
	assert.Equal(t, "RCP_****f123", entry.Metadata["recipient_code"])
	assert.Equal(t, "057", entry.Metadata["bank_code"])
	provider, ok := entry.Metadata["provider"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CUS_****8765", provider["customer_code"])

	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "transfer.success", entry.Metadata["event_type"])
	assert.Equal(t, "transfer.success:9", entry.Metadata["event_id"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionWebhookReplayed, " ", nil, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)

	err = svc.AuditLog(ctx, "", nil, "  ", "payout", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, ref := range []string{"po_1", "po_2", "po_3"} {
		target := ref
		require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionPayoutInitiated, "payout", &target, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionWebhookReplayed, "webhook_event", nil, nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     auditdomain.ActionPayoutInitiated,
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "po_3", *first.AuditLogs[0].TargetID)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		Action:     auditdomain.ActionPayoutInitiated,
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "po_1", *second.AuditLogs[0].TargetID)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "not-a-token"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
