package session

import "errors"

var (
	// ErrInvalidCredentials is returned when login finds no identity for the email.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrBusy is returned when a mutating operation is already in flight on the store.
	ErrBusy = errors.New("session busy")

	// ErrInvalidToken is returned when a client token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
