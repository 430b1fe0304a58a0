package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePayoutReceipt(t *testing.T) {
	p := NewMarotoProvider()

	out, err := p.GeneratePayoutReceipt(context.Background(), PayoutReceiptData{
		Reference:     "po_01J0000000000000000000000",
		Status:        "completed",
		Amount:        "50.00",
		Currency:      "NGN",
		AccountName:   "ADA LOVELACE",
		BankName:      "Guaranty Trust Bank",
		AccountNumber: "****6789",
		TransferCode:  "TRF_1",
		RequestedAt:   "2026-01-02 10:00 UTC",
		SettledAt:     "2026-01-02 10:05 UTC",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
