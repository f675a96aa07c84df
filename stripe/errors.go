package stripe

import (
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v81"
)

// StripeError represents a Stripe-specific error
type StripeError struct {
	Code    string
	Message string
	Err     error
}

func (e *StripeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stripe error [%s]: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("stripe error [%s]: %s", e.Code, e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.Err
}

// Is matches errors with the same code, so errors.Is(err, ErrInvalidEvent)
// holds for any invalid event error regardless of its message.
func (e *StripeError) Is(target error) bool {
	t, ok := target.(*StripeError)
	return ok && t.Code == e.Code
}

// Error codes.
const (
	CodeInvalidEvent       = "invalid_event"
	CodeWebhookValidation  = "webhook_validation"
	CodeAPICallFailed      = "api_call_failed"
	CodeSessionNotFound    = "session_not_found"
	CodeMissingMetadata    = "missing_metadata"
	CodeSessionNotPaid     = "session_not_paid"
	CodeCustomerNotFound   = "customer_not_found"
	CodeRateLimit          = "rate_limit_error"
	CodeAPIConnectionError = "api_connection_error"
)

// Common Stripe errors
var (
	ErrInvalidEvent      = &StripeError{Code: CodeInvalidEvent, Message: "invalid webhook event"}
	ErrWebhookValidation = &StripeError{Code: CodeWebhookValidation, Message: "webhook signature validation failed"}
	ErrAPICallFailed     = &StripeError{Code: CodeAPICallFailed, Message: "stripe API call failed"}
	ErrSessionNotFound   = &StripeError{Code: CodeSessionNotFound, Message: "checkout session not found"}
	ErrMissingMetadata   = &StripeError{Code: CodeMissingMetadata, Message: "checkout session missing user metadata"}
	ErrSessionNotPaid    = &StripeError{Code: CodeSessionNotPaid, Message: "checkout session is not paid"}
	ErrCustomerNotFound  = &StripeError{Code: CodeCustomerNotFound, Message: "stripe customer not found"}
)

// NewStripeError creates a new StripeError with the given code, message, and underlying error
func NewStripeError(code, message string, err error) *StripeError {
	return &StripeError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// apiError wraps an SDK error, keeping the SDK error code when there is one
// so that retryable failures can be told apart.
func apiError(message string, err error) *StripeError {
	var sdkErr *stripeapi.Error
	if errors.As(err, &sdkErr) {
		switch {
		case sdkErr.HTTPStatusCode == 404:
			return NewStripeError(CodeSessionNotFound, message, err)
		case sdkErr.HTTPStatusCode == 429:
			return NewStripeError(CodeRateLimit, message, err)
		case sdkErr.Type == stripeapi.ErrorTypeAPI && sdkErr.HTTPStatusCode >= 500:
			return NewStripeError(CodeAPIConnectionError, message, err)
		}
	}
	return NewStripeError(CodeAPICallFailed, message, err)
}

// IsRetryableError determines if an error is retryable
func IsRetryableError(err error) bool {
	var stripeErr *StripeError
	if !errors.As(err, &stripeErr) {
		return false
	}
	switch stripeErr.Code {
	case CodeAPICallFailed, CodeRateLimit, CodeAPIConnectionError:
		return true
	}
	return false
}
