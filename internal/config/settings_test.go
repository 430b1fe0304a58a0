package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSettingsHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	content := []byte(`payouts:
  currency: ghs
  minAmount: 5000
  maxAmount: 900000
  providerTimeout: 5s
subscription:
  planCode: PLN_premium
  amount: 250000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewSettingsHolder(Config{SettingsFile: path}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, "GHS", got.Payouts.Currency)
	assert.Equal(t, int64(5000), got.Payouts.MinAmount)
	assert.Equal(t, int64(900000), got.Payouts.MaxAmount)
	assert.Equal(t, 5*time.Second, got.Payouts.ProviderTimeout)
	assert.Equal(t, "Earnings withdrawal", got.Payouts.TransferReason)
	assert.Equal(t, "PLN_premium", got.Subscription.PlanCode)
	assert.Equal(t, int64(250000), got.Subscription.Amount)
}

func TestSettingsHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("payouts:\n  minAmount: 0\n"), 0o600))

	_, err := NewSettingsHolder(Config{SettingsFile: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *SettingsHolder
	assert.Equal(t, DefaultSettings(), holder.Get())
}
