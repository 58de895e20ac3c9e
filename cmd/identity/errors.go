package identity

import (
	"errors"
	"fmt"
)

// Error kinds, checked with errors.Is.
var (
	// ErrInvalidInput rejects a caller-supplied value before any storage access.
	ErrInvalidInput = errors.New("invalid_input")
	// ErrMalformed marks a persisted record that does not decode to an Identity.
	ErrMalformed = errors.New("malformed")
)

// OpError carries the failing operation and its kind. Msg never includes client ids.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func malformed(op, msg string) error {
	return OpError{Op: op, Kind: ErrMalformed, Msg: msg}
}

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsMalformed reports whether err is a persisted record that failed to decode.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformed) }
