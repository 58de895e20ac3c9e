package authapi

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Login only requires an email; the credential is never checked.
func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(1, 254)),
		validation.Field(&r.Password, validation.Length(0, 1024)),
	)
}

func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 1024)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// trimLogin trims surrounding whitespace only; the email is otherwise matched exactly.
func trimLogin(r loginRequest) loginRequest {
	r.Email = strings.TrimSpace(r.Email)
	return r
}

func trimSignup(r signupRequest) signupRequest {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	return r
}
