// Package errors provides the API error type and the table of error codes
// returned by the HTTP handlers.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the caller's fault and return a
// 4xx HTTP status. Codes in the 50001-59999 range are the server's fault and
// return a 5xx HTTP status.
//
// Never change an existing code and never reuse a retired one; append new
// errors after the current last code of each range. There is no correlation
// between Code and HTTPstatus beyond the range.
var (
	// Authentication errors (401)
	ErrUnauthorized       = Error{Code: 40001, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("authentication required"), LogLevel: "info"}
	ErrInvalidCredentials = Error{Code: 40002, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid email or password"), LogLevel: "info"}
	ErrUserNotVerified    = Error{Code: 40022, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("user account is not verified"), LogLevel: "info"}
	ErrInvalidCode        = Error{Code: 40023, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid verification code"), LogLevel: "info"}
	ErrCodeExpired        = Error{Code: 40024, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("verification code expired"), LogLevel: "info"}

	// Validation errors (400)
	ErrMalformedBody       = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid JSON request body")}
	ErrEmailMalformed      = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid email format")}
	ErrPasswordTooShort    = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("password must be at least 8 characters")}
	ErrMalformedURLParam   = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid URL parameter")}
	ErrInvalidCheckoutType = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid checkout type")}
	ErrUnknownCoinPackage  = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown coin package")}
	ErrInvalidAmount       = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("amount must be a positive number of coins")}
	ErrBelowMinimumPayout  = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("amount is below the minimum withdrawal")}
	ErrInsufficientBalance = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("insufficient coin balance")}
	ErrNoStripeCustomer    = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("user has no billing account yet")}
	ErrInvalidSignature    = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid webhook signature"), LogLevel: "warn"}
	ErrPasswordTooLong     = Error{Code: 40025, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("password must be at most 72 bytes")}
	ErrUserAlreadyVerified = Error{Code: 40026, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("user account is already verified")}
	ErrInvalidData         = Error{Code: 40037, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid data provided")}

	// Not found errors (404)
	ErrUserNotFound     = Error{Code: 40018, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("user not found")}
	ErrPayoutNotFound   = Error{Code: 40020, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("payout not found")}
	ErrCheckoutNotFound = Error{Code: 40021, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("checkout session not found")}

	// Conflict errors (409)
	ErrDuplicateConflict = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("resource already exists")}

	// Server errors (500)
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	ErrStripeError                = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: payment processing failed"), LogLevel: "error"}
	ErrInternalStorageError       = Error{Code: 50006, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: storage operation failed"), LogLevel: "error"}
	ErrStripeWebhookError         = Error{Code: 50008, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: stripe webhook failed"), LogLevel: "error"}
	ErrNotificationFailed         = Error{Code: 50009, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: notification delivery failed"), LogLevel: "error"}
)
