package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("initiate transfer: %w", &ProviderError{
		Operation: "transfer",
		Err:       context.DeadlineExceeded,
	})

	assert.True(t, errors.Is(err, ErrProvider))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, "transfer", perr.Operation)
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Operation: "customer", StatusCode: 400, Message: "Invalid email"}
	assert.Equal(t, "provider customer failed (400): Invalid email", err.Error())
}
