package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrProvider marks any failure reported by, or while reaching, the payment
// provider. Callers match it with errors.Is.
var ErrProvider = errors.New("provider_error")

// ProviderError carries the provider's operation and response details.
type ProviderError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s failed (%d): %s", e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %s failed: %s", e.Operation, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

type Customer struct {
	CustomerCode string
	Email        string
}

type CreateCustomerRequest struct {
	Email     string
	FirstName string
	LastName  string
}

type InitializeTransactionRequest struct {
	Email       string
	Amount      int64
	PlanCode    string
	CallbackURL string
	Reference   string
	Metadata    map[string]any
}

type TransactionInit struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type CreateRecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

type Recipient struct {
	RecipientCode string
	BankName      string
	AccountName   string
}

type InitiateTransferRequest struct {
	Amount        int64
	RecipientCode string
	Reference     string
	Reason        string
	Currency      string
}

type Transfer struct {
	TransferCode string
	Reference    string
	Status       string
}

type Subscription struct {
	SubscriptionCode string
	PlanCode         string
	Status           string
	CustomerCode     string
}

// Gateway is the outbound contract with the payment provider.
type Gateway interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (*TransactionInit, error)
	CreateTransferRecipient(ctx context.Context, req CreateRecipientRequest) (*Recipient, error)
	InitiateTransfer(ctx context.Context, req InitiateTransferRequest) (*Transfer, error)
	ListSubscriptions(ctx context.Context, customerCode string) ([]Subscription, error)
}
