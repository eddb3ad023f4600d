// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var usZipPattern = regexp.MustCompile(`^\d{5}$`)

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the domain tags registered.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("uszip", func(fl validator.FieldLevel) bool {
		return usZipPattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

// IsEmail reports whether s is a syntactically valid email address.
func (val *Validator) IsEmail(s string) bool {
	return val.v.Var(s, "required,email") == nil
}

// IsUSZip reports whether s is a 5-digit US zip code.
func (val *Validator) IsUSZip(s string) bool {
	return val.v.Var(s, "required,uszip") == nil
}
