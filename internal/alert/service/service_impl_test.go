package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/payoutd/internal/alert/domain"
	"github.com/smallbiznis/payoutd/internal/alert/repository"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSlack struct {
	mock.Mock
}

func (m *mockSlack) PostMessage(ctx context.Context, channelID string, message string) error {
	args := m.Called(ctx, channelID, message)
	return args.Error(0)
}

func TestRaiseDedupsAndNotifiesOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	notifier := &mockSlack{}
	notifier.On("PostMessage", mock.Anything, "#ops", mock.AnythingOfType("string")).Return(nil).Once()

	svc := New(Params{
		DB:    db,
		Log:   testutil.Logger(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
		Slack: notifier,
		Cfg:   config.Config{Slack: config.SlackConfig{Channel: "#ops"}},
	})

	req := domain.RaiseRequest{
		Kind:     domain.KindPayoutStale,
		DedupKey: "po_1",
		Message:  "payout po_1 pending for 48h",
		Metadata: map[string]any{"reference": "po_1"},
	}

	raised, err := svc.Raise(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, raised)

	raised, err = svc.Raise(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, raised)

	notifier.AssertExpectations(t)

	resp, err := svc.List(context.Background(), domain.ListAlertsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, domain.SeverityWarning, resp.Alerts[0].Severity)
}

func TestRaiseRejectsEmptyMessage(t *testing.T) {
	svc := New(Params{
		DB:    testutil.OpenDB(t),
		Log:   testutil.Logger(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
	})
	_, err := svc.Raise(context.Background(), domain.RaiseRequest{Kind: domain.KindPayoutStale})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestListPaginates(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := New(Params{
		DB:    db,
		Log:   testutil.Logger(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
	})
	for _, key := range []string{"a", "b", "c"} {
		_, err := svc.Raise(context.Background(), domain.RaiseRequest{
			Kind: domain.KindPayoutStale, DedupKey: key, Message: "stale " + key,
		})
		require.NoError(t, err)
	}

	first, err := svc.List(context.Background(), domain.ListAlertsRequest{})
	require.NoError(t, err)
	assert.Len(t, first.Alerts, 3)

	req := domain.ListAlertsRequest{}
	req.PageSize = 2
	page, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, page.Alerts, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextPageToken)
}
