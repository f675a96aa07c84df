package db

import "time"

// User is a Reevlo account. Coins are not stored here; the balance lives in
// its own collection so it can be mutated atomically with payment records.
type User struct {
	ID                   string    `json:"id" bson:"_id"`
	Email                string    `json:"email" bson:"email"`
	Password             string    `json:"password" bson:"password"`
	FullName             string    `json:"fullName" bson:"fullName"`
	Verified             bool      `json:"verified" bson:"verified"`
	Premium              bool      `json:"isPremium" bson:"premium"`
	PremiumSince         time.Time `json:"premiumSince,omitempty" bson:"premiumSince,omitempty"`
	StripeCustomerID     string    `json:"stripeCustomerId,omitempty" bson:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId,omitempty" bson:"stripeSubscriptionId,omitempty"`
	CreatedAt            time.Time `json:"createdAt" bson:"createdAt"`
}

// CodeType tells apart what a verification code is for.
type CodeType string

const (
	CodeTypeAccountVerification CodeType = "account"
	CodeTypePasswordReset       CodeType = "password"
)

// UserVerification is a pending verification code of a user, one per code
// type. Code is the hash of the code sent by email, never the code itself.
type UserVerification struct {
	ID         string    `json:"id" bson:"_id"`
	UserID     string    `json:"userId" bson:"userId"`
	Code       string    `json:"code" bson:"code"`
	Type       CodeType  `json:"type" bson:"type"`
	Expiration time.Time `json:"expiration" bson:"expiration"`
}

func verificationID(userID string, t CodeType) string {
	return userID + "/" + string(t)
}

// Balance is the rewards balance of a user, the single source of truth for
// coins.
type Balance struct {
	UserID       string    `json:"userId" bson:"_id"`
	VirtualMoney int64     `json:"virtualMoney" bson:"virtualMoney"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// PaymentType mirrors the checkout type stored in the session metadata.
type PaymentType string

const (
	PaymentCoins      PaymentType = "coin"
	PaymentMembership PaymentType = "membership"
)

// PaymentSource records which path applied a completed session.
type PaymentSource string

const (
	SourceWebhook    PaymentSource = "webhook"
	SourceSync       PaymentSource = "sync"
	SourceReconciler PaymentSource = "reconciler"
	SourceLegacy     PaymentSource = "legacy"
)

// Payment is a checkout session that has already been applied. Its _id is
// the checkout session identifier, so a session can be stored only once.
type Payment struct {
	SessionID      string        `json:"sessionId" bson:"_id"`
	UserID         string        `json:"userId" bson:"userId"`
	Type           PaymentType   `json:"type" bson:"type"`
	Coins          int64         `json:"coins,omitempty" bson:"coins,omitempty"`
	AmountTotal    int64         `json:"amountTotal" bson:"amountTotal"`
	Currency       string        `json:"currency" bson:"currency"`
	SubscriptionID string        `json:"subscriptionId,omitempty" bson:"subscriptionId,omitempty"`
	Source         PaymentSource `json:"source" bson:"source"`
	ProcessedAt    time.Time     `json:"processedAt" bson:"processedAt"`
}

// PayoutStatus is the lifecycle state of a payout request.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
)

// Valid reports whether s is a known payout status.
func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutPaid, PayoutRejected:
		return true
	}
	return false
}

// Payout is a withdrawal request. USDCents holds the value at the moment of
// the request.
type Payout struct {
	ID        string       `json:"id" bson:"_id"`
	UserID    string       `json:"userId" bson:"userId"`
	Coins     int64        `json:"coins" bson:"coins"`
	USDCents  int64        `json:"usdCents" bson:"usdCents"`
	Method    string       `json:"method" bson:"method"`
	Status    PayoutStatus `json:"status" bson:"status"`
	CreatedAt time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Collection is the JSON dump format produced by String and read by Import.
type Collection struct {
	Users    []User    `json:"users"`
	Balances []Balance `json:"balances"`
	Payments []Payment `json:"payments"`
	Payouts  []Payout  `json:"payouts"`
}
