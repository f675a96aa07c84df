// Package db implements the persistence layer: users, coin balances, applied
// checkout sessions and payout requests, backed by MongoDB or by an
// in-memory store.
package db

import "time"

const defaultTimeout = 10 * time.Second

// Database is implemented by every storage backend.
type Database interface {
	// basic db management operations
	Close()
	Reset() error
	String() string
	Import([]byte) error

	// users
	SetUser(*User) (string, error)
	User(id string) (*User, error)
	UserByEmail(email string) (*User, error)
	UserBySubscriptionID(subscriptionID string) (*User, error)
	SetStripeCustomerID(userID, customerID string) error
	DelUser(id string) error

	// verification codes
	SetVerificationCode(userID, code string, t CodeType, expiration time.Time) error
	UserByVerificationCode(code string, t CodeType) (*User, error)
	VerifyUserAccount(userID string) error
	ResetUserPassword(userID, password string) error

	// balances and applied sessions
	Balance(userID string) (*Balance, error)
	IsProcessed(sessionID string) (bool, error)
	Payments(userID string) ([]Payment, error)
	CreditCoins(payment *Payment) (int64, error)
	ActivatePremium(payment *Payment) error
	DeactivatePremium(userID string) error
	AddCoins(userID string, coins int64) (int64, error)

	// payouts
	CreatePayout(payout *Payout) (int64, error)
	Payout(id string) (*Payout, error)
	Payouts(userID string) ([]Payout, error)
	SetPayoutStatus(id string, status PayoutStatus) error
}

var (
	_ Database = (*MongoStorage)(nil)
	_ Database = (*MemoryStorage)(nil)
)
