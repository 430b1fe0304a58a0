package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to SubscriptionStatus
		want     bool
	}{
		{SubscriptionStatusPending, SubscriptionStatusActive, true},
		{SubscriptionStatusPending, SubscriptionStatusCancelled, true},
		{SubscriptionStatusActive, SubscriptionStatusCancelled, true},
		{SubscriptionStatusActive, SubscriptionStatusPending, false},
		{SubscriptionStatusCancelled, SubscriptionStatusActive, false},
		{SubscriptionStatusCancelled, SubscriptionStatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestMapProviderStatus(t *testing.T) {
	for _, raw := range []string{"active", "non-renewing", "Attention"} {
		status, ok := MapProviderStatus(raw)
		assert.True(t, ok)
		assert.Equal(t, SubscriptionStatusActive, status, raw)
	}
	for _, raw := range []string{"cancelled", "complete", "completed"} {
		status, ok := MapProviderStatus(raw)
		assert.True(t, ok)
		assert.Equal(t, SubscriptionStatusCancelled, status, raw)
	}
	_, ok := MapProviderStatus("paused")
	assert.False(t, ok)
}
