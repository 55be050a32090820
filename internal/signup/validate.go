// Package signup implements the client side of registration: form
// validation, submission to the API and the local fallback list used when
// the service cannot be reached.
package signup

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field names used as keys of FieldErrors.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm-password"
)

// Field-level messages.
const (
	MsgInvalidEmail     = "Enter a valid email"
	MsgPasswordTooShort = "Password must contain at least 6 characters"
	MsgPasswordMismatch = "Passwords do not match"
	MsgSaveFailed       = "Failed to save data. Try again later."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Form is what the user typed.
type Form struct {
	Email           string `validate:"simpleemail"`
	Password        string `validate:"min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

var fieldNames = map[string]string{
	"Email":           FieldEmail,
	"Password":        FieldPassword,
	"ConfirmPassword": FieldConfirmPassword,
}

var fieldMessages = map[string]string{
	FieldEmail:           MsgInvalidEmail,
	FieldPassword:        MsgPasswordTooShort,
	FieldConfirmPassword: MsgPasswordMismatch,
}

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

// Validator checks registration forms.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the simpleemail rule registered.
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("simpleemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Validate checks every rule and returns all failures together, or nil.
func (v *Validator) Validate(form Form) FieldErrors {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{FieldEmail: err.Error()}
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		name, ok := fieldNames[fe.StructField()]
		if !ok {
			continue
		}
		out[name] = fieldMessages[name]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
