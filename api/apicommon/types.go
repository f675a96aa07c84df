package apicommon

//revive:disable:max-public-structs

import (
	"time"

	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/subscriptions"
	"github.com/reevlo/reevlo-backend/wallet"
	"github.com/shopspring/decimal"
)

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the body of the register endpoint.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,reevloemail"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"max=128"`
}

// VerifyAccountRequest confirms the email of a new account with the code
// sent to it.
type VerifyAccountRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// EmailRequest is the body of the endpoints that send a code to an email.
type EmailRequest struct {
	Email string `json:"email" validate:"required"`
}

// PasswordResetRequest sets a new password with a password reset code.
type PasswordResetRequest struct {
	Email       string `json:"email" validate:"required"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

// LoginResponse carries a signed JWT and its expiration.
type LoginResponse struct {
	Token    string    `json:"token"`
	Expirity time.Time `json:"expirity"`
}

// UserInfo is the profile returned to the authenticated user.
type UserInfo struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	FullName     string             `json:"fullName"`
	Verified     bool               `json:"verified"`
	IsPremium    bool               `json:"isPremium"`
	PremiumSince *time.Time         `json:"premiumSince,omitempty"`
	VirtualMoney int64              `json:"virtualMoney"`
	Plan         subscriptions.Plan `json:"plan"`
	Perks        []string           `json:"perks"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// UserInfoFromDB builds the profile of a user with the given balance.
func UserInfoFromDB(user *db.User, balance int64) *UserInfo {
	info := &UserInfo{
		ID:           user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Verified:     user.Verified,
		IsPremium:    user.Premium,
		VirtualMoney: balance,
		Plan:         subscriptions.PlanFor(user),
		Perks:        subscriptions.Perks(user),
		CreatedAt:    user.CreatedAt,
	}
	if user.Premium && !user.PremiumSince.IsZero() {
		since := user.PremiumSince
		info.PremiumSince = &since
	}
	return info
}

// WalletInfo is the balance summary shown in the dashboard.
type WalletInfo struct {
	VirtualMoney int64           `json:"virtualMoney"`
	USDValue     decimal.Decimal `json:"usdValue"`
	IsPremium    bool            `json:"isPremium"`
}

// PaymentList wraps the applied checkout sessions of a user.
type PaymentList struct {
	Payments []db.Payment `json:"payments"`
}

// CoinPackageList is the catalog of coin packages.
type CoinPackageList struct {
	Packages []wallet.CoinPackage `json:"packages"`
}

// MembershipPlanList is the catalog of plans.
type MembershipPlanList struct {
	Plans []subscriptions.Plan `json:"plans"`
}

// CheckoutRequest is the body of the create checkout session endpoint. Amount
// is the number of coins and is ignored for memberships.
type CheckoutRequest struct {
	Type   string `json:"type" validate:"required,checkouttype"`
	Amount int64  `json:"amount"`
}

// CheckoutResponse identifies the hosted checkout page.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalResponse carries the billing portal URL.
type PortalResponse struct {
	PortalURL string `json:"portalURL"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// SyncBalanceResponse tells whether the sync applied anything.
type SyncBalanceResponse struct {
	Success bool  `json:"success"`
	Updated bool  `json:"updated"`
	Applied int   `json:"applied"`
	Balance int64 `json:"virtualMoney"`
}

// PayoutRequest is the body of the request payout endpoint.
type PayoutRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method" validate:"omitempty,oneof=stripe"`
}

// PayoutResponse is returned after a payout request is stored.
type PayoutResponse struct {
	Success    bool            `json:"success"`
	PayoutID   string          `json:"payoutId"`
	USDAmount  decimal.Decimal `json:"usdAmount"`
	NewBalance int64           `json:"newBalance"`
	Message    string          `json:"message"`
}

// PayoutInfo is a payout request as shown to its creator.
type PayoutInfo struct {
	ID        string          `json:"id"`
	Coins     int64           `json:"coins"`
	USDAmount decimal.Decimal `json:"usdAmount"`
	Method    string          `json:"method"`
	Status    db.PayoutStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PayoutInfoFromDB converts a stored payout.
func PayoutInfoFromDB(p *db.Payout) PayoutInfo {
	return PayoutInfo{
		ID:        p.ID,
		Coins:     p.Coins,
		USDAmount: decimal.NewFromInt(p.USDCents).Shift(-2),
		Method:    p.Method,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// PayoutList wraps the payouts of a user.
type PayoutList struct {
	Payouts []PayoutInfo `json:"payouts"`
}

// AddCoinsRequest is the body of the debug add coins endpoint.
type AddCoinsRequest struct {
	UserID string `json:"userId" validate:"required"`
	Amount int64  `json:"amount" validate:"required,min=1"`
}

// AddCoinsResponse carries the balance after a debug credit.
type AddCoinsResponse struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"newBalance"`
}
