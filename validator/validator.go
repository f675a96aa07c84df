// Package validator wraps go-playground/validator with the rules used by the
// HTTP API and exposes a middleware that decodes and validates JSON bodies.
package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/reevlo/reevlo-backend/internal"
	"github.com/reevlo/reevlo-backend/wallet"
)

// phoneRegex matches E.164 numbers, like +15005550006.
var phoneRegex = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a Validator with the custom rules registered:
//   - phone: E.164 phone number
//   - coinpackage: a coin amount sold as a package
//   - checkouttype: "coin" or "membership"
//   - reevloemail: an address accepted at registration
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("coinpackage", validateCoinPackage)
	_ = v.RegisterValidation("checkouttype", validateCheckoutType)
	_ = v.RegisterValidation("reevloemail", validateEmail)
	return &Validator{validator: v}
}

// Validate validates a struct using its validate tags.
func (v *Validator) Validate(s any) error {
	return v.validator.Struct(s)
}

// validatePhone accepts empty values; use required when the field is mandatory.
func validatePhone(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	return phoneRegex.MatchString(fl.Field().String())
}

func validateCoinPackage(fl validator.FieldLevel) bool {
	_, err := wallet.PackageFor(fl.Field().Int())
	return err == nil
}

func validateCheckoutType(fl validator.FieldLevel) bool {
	return wallet.CheckoutType(fl.Field().String()).Valid()
}

func validateEmail(fl validator.FieldLevel) bool {
	return internal.ValidEmail(fl.Field().String())
}
