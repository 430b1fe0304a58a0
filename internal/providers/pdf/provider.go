package pdf

import "context"

// PayoutReceiptData is the pre-formatted content of a payout receipt.
type PayoutReceiptData struct {
	Reference     string
	Status        string
	Amount        string
	Currency      string
	AccountName   string
	BankName      string
	AccountNumber string
	TransferCode  string
	RequestedAt   string
	SettledAt     string
	FailureReason string
	IssuerName    string
}

type Provider interface {
	GeneratePayoutReceipt(ctx context.Context, data PayoutReceiptData) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GeneratePayoutReceipt(ctx context.Context, data PayoutReceiptData) ([]byte, error) {
	return nil, nil
}
