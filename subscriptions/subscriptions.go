// Package subscriptions describes the membership plans and the perks each
// one grants, and answers which plan and perks a user has.
package subscriptions

import (
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/wallet"
	"github.com/shopspring/decimal"
)

// Perk is a feature granted by a plan.
type Perk int

const (
	// LongUploads allows uploads longer than the free limit.
	LongUploads Perk = iota
	// AdFree removes ads from the user experience.
	AdFree
	// VerificationBadge shows the verification badge on the profile.
	VerificationBadge
	// PrioritySupport routes support requests to the priority queue.
	PrioritySupport
)

// String returns the string representation of the Perk.
func (p Perk) String() string {
	switch p {
	case LongUploads:
		return "LongUploads"
	case AdFree:
		return "AdFree"
	case VerificationBadge:
		return "VerificationBadge"
	case PrioritySupport:
		return "PrioritySupport"
	default:
		return "Unknown"
	}
}

// PlanLimits are the numeric limits of a plan.
type PlanLimits struct {
	MaxUploadMinutes int `json:"maxUploadMinutes"`
}

// PlanFeatures are the boolean perks of a plan.
type PlanFeatures struct {
	AdFree            bool `json:"adFree"`
	VerificationBadge bool `json:"verificationBadge"`
	PrioritySupport   bool `json:"prioritySupport"`
}

// Plan is a membership level.
type Plan struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Interval    string          `json:"interval,omitempty"`
	Limits      PlanLimits      `json:"limits"`
	Features    PlanFeatures    `json:"features"`
}

const (
	FreePlanID = "free"
	PlusPlanID = "plus"
)

var (
	// Free is the plan of every user without membership.
	Free = Plan{
		ID:          FreePlanID,
		Name:        "Free",
		Description: "Watch, upload short videos and support creators with coins.",
		Price:       decimal.Zero,
		Limits:      PlanLimits{MaxUploadMinutes: 10},
	}
	// Plus is the paid membership.
	Plus = Plan{
		ID:          PlusPlanID,
		Name:        wallet.Membership.Name,
		Description: wallet.Membership.Description,
		Price:       wallet.Membership.Price,
		Interval:    wallet.Membership.Interval,
		Limits:      PlanLimits{MaxUploadMinutes: 60},
		Features: PlanFeatures{
			AdFree:            true,
			VerificationBadge: true,
			PrioritySupport:   true,
		},
	}
)

// Plans returns every plan, cheapest first.
func Plans() []Plan {
	return []Plan{Free, Plus}
}

// PlanFor returns the plan of the user.
func PlanFor(user *db.User) Plan {
	if user != nil && user.Premium {
		return Plus
	}
	return Free
}

// HasPermission reports whether the plan of the user grants the perk.
func HasPermission(user *db.User, perk Perk) bool {
	plan := PlanFor(user)
	switch perk {
	case LongUploads:
		return plan.Limits.MaxUploadMinutes > Free.Limits.MaxUploadMinutes
	case AdFree:
		return plan.Features.AdFree
	case VerificationBadge:
		return plan.Features.VerificationBadge
	case PrioritySupport:
		return plan.Features.PrioritySupport
	default:
		return false
	}
}

// Perks lists the perks the user has.
func Perks(user *db.User) []string {
	perks := []string{}
	for _, perk := range []Perk{LongUploads, AdFree, VerificationBadge, PrioritySupport} {
		if HasPermission(user, perk) {
			perks = append(perks, perk.String())
		}
	}
	return perks
}
