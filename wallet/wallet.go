// Package wallet holds the business rules of the virtual coin economy: the
// coin packages that can be bought, the membership price, and the conversion
// used when creators withdraw their coins.
package wallet

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CheckoutType identifies what a checkout session is selling.
type CheckoutType string

const (
	// CheckoutCoins is a one-off purchase of a coin package.
	CheckoutCoins CheckoutType = "coin"
	// CheckoutMembership is the monthly membership subscription.
	CheckoutMembership CheckoutType = "membership"
)

// Valid reports whether t is a known checkout type.
func (t CheckoutType) Valid() bool {
	return t == CheckoutCoins || t == CheckoutMembership
}

const (
	// Currency is the ISO code every price is expressed in.
	Currency = "usd"
	// MinWithdrawalCoins is the smallest payout a creator can request.
	MinWithdrawalCoins int64 = 5000
	// PayoutMethodStripe is the only payout method supported.
	PayoutMethodStripe = "stripe"
	// PayoutProcessingNotice is shown to creators after requesting a payout.
	PayoutProcessingNotice = "Withdrawals processed via Stripe within 3-5 business days"
	// coinPackageDescription is shared by every coin package product.
	coinPackageDescription = "Tokens for gifting and boosting"
)

var (
	// ConversionRate is the USD value of a single coin when withdrawn.
	ConversionRate = decimal.RequireFromString("0.01")

	hundred = decimal.NewFromInt(100)
)

var (
	ErrUnknownPackage      = fmt.Errorf("unknown coin package")
	ErrInvalidAmount       = fmt.Errorf("coin amount must be positive")
	ErrBelowMinimum        = fmt.Errorf("amount is below the minimum withdrawal of %d coins", MinWithdrawalCoins)
	ErrInsufficientBalance = fmt.Errorf("insufficient coin balance")
)

// CoinPackage is a purchasable bundle of coins.
type CoinPackage struct {
	Coins       int64           `json:"coins"`
	Price       decimal.Decimal `json:"price"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
}

// UnitAmount returns the package price in cents, as charged by the
// payment processor.
func (p CoinPackage) UnitAmount() int64 {
	return USDToCents(p.Price)
}

var coinPackages = map[int64]CoinPackage{
	500:  newCoinPackage(500, "5.00"),
	1000: newCoinPackage(1000, "10.00"),
	2000: newCoinPackage(2000, "20.00"),
	5000: newCoinPackage(5000, "50.00"),
}

func newCoinPackage(coins int64, price string) CoinPackage {
	return CoinPackage{
		Coins:       coins,
		Price:       decimal.RequireFromString(price),
		Name:        fmt.Sprintf("%s Virtual Tokens", groupThousands(coins)),
		Description: coinPackageDescription,
	}
}

// CoinPackages returns every package sorted by coin amount.
func CoinPackages() []CoinPackage {
	pkgs := make([]CoinPackage, 0, len(coinPackages))
	for _, p := range coinPackages {
		pkgs = append(pkgs, p)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Coins < pkgs[j].Coins })
	return pkgs
}

// PackageFor returns the package that sells exactly the given number of
// coins.
func PackageFor(coins int64) (CoinPackage, error) {
	p, ok := coinPackages[coins]
	if !ok {
		return CoinPackage{}, fmt.Errorf("%w: %d coins", ErrUnknownPackage, coins)
	}
	return p, nil
}

// MembershipPlan describes the recurring membership product.
type MembershipPlan struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Interval    string          `json:"interval"`
}

// UnitAmount returns the monthly price in cents.
func (m MembershipPlan) UnitAmount() int64 {
	return USDToCents(m.Price)
}

// Membership is the Reevlo Plus subscription.
var Membership = MembershipPlan{
	Name:        "Reevlo Plus Membership",
	Description: "Upload longer videos, zero ads, verification badge, and priority support.",
	Price:       decimal.RequireFromString("8.99"),
	Interval:    "month",
}

// CoinsToUSD converts a coin amount to its withdrawal value.
func CoinsToUSD(coins int64) decimal.Decimal {
	return decimal.NewFromInt(coins).Mul(ConversionRate)
}

// USDToCents rounds a dollar amount to whole cents.
func USDToCents(usd decimal.Decimal) int64 {
	return usd.Mul(hundred).Round(0).IntPart()
}

// ValidatePayout checks a withdrawal request against the rules and the
// current balance.
func ValidatePayout(coins, balance int64) error {
	if coins <= 0 {
		return ErrInvalidAmount
	}
	if coins < MinWithdrawalCoins {
		return ErrBelowMinimum
	}
	if coins > balance {
		return ErrInsufficientBalance
	}
	return nil
}

// groupThousands formats n with comma separators, 1000 -> "1,000".
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
