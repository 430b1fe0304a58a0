package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	customerdomain "github.com/smallbiznis/payoutd/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	accountdomain "github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
	userdomain "github.com/smallbiznis/payoutd/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels are domain errors reported to callers as field
// validation failures. The sentinel text doubles as the error code.
var validationSentinels = []error{
	ErrInvalidRequest,
	ledgerdomain.ErrInvalidUser,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidPageToken,
	accountdomain.ErrInvalidUser,
	accountdomain.ErrInvalidAccountNumber,
	accountdomain.ErrInvalidBankCode,
	payoutdomain.ErrInvalidUser,
	payoutdomain.ErrInvalidAmount,
	payoutdomain.ErrAmountBelowMinimum,
	payoutdomain.ErrAmountAboveMaximum,
	payoutdomain.ErrInvalidStatus,
	payoutdomain.ErrInvalidPageToken,
	subscriptiondomain.ErrInvalidUser,
	subscriptiondomain.ErrInvalidPlan,
	orderdomain.ErrInvalidPageToken,
	customerdomain.ErrInvalidSeller,
	customerdomain.ErrInvalidPageToken,
	paymentdomain.ErrInvalidPageToken,
	alertdomain.ErrInvalidKind,
	alertdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidPageToken,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError turns gin binding failures into field errors. Anything that
// is not a validator error (malformed JSON, wrong types) is a generic
// invalid request.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidRequestError()
	}
	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := toSnakeCase(fe.Field())
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    fe.Tag(),
			Message: field + " failed " + fe.Tag() + " validation",
		})
	}
	return out
}

func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_balance",
			Message: "amount exceeds available balance",
		}
	case errors.Is(err, payoutdomain.ErrNoPayoutAccount):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "no_payout_account",
			Message: "no active payout account",
		}
	case errors.Is(err, accountdomain.ErrDuplicateAccount):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_account",
			Message: "payout account already exists",
		}
	case errors.Is(err, subscriptiondomain.ErrSubscriptionConflict):
		return http.StatusConflict, errorPayload{
			Type:    "subscription_conflict",
			Message: "an active subscription already exists",
		}
	case errors.Is(err, payoutdomain.ErrPayoutInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "payout_in_progress",
			Message: "another payout is in progress",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, gateway.ErrProvider):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "payment provider request failed",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged with the request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server", code
	}
	return "client", code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "amount_below_minimum", "amount_above_maximum":
		return "amount"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "amount_below_minimum":
		return "amount is below the minimum payout"
	case "amount_above_maximum":
		return "amount is above the maximum payout"
	default:
		return "invalid value"
	}
}
