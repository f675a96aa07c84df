package db

import "fmt"

var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrInvalidData         = fmt.Errorf("invalid data provided")
	ErrAlreadyExists       = fmt.Errorf("already exists")
	ErrAlreadyProcessed    = fmt.Errorf("checkout session already processed")
	ErrInsufficientBalance = fmt.Errorf("insufficient coin balance")
	ErrInvalidTransition   = fmt.Errorf("invalid payout status transition")
	ErrVerificationExpired = fmt.Errorf("verification code expired")
)
