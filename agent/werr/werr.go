/*
Package werr is the error taxonomy of the wallet core. Every error the core
surfaces belongs to one of four kinds, and callers decide what to do by kind:

	ErrValidation        malformed phrase, key or address; never retried
	ErrConnector         user rejection, extension absent, provider fault
	ErrNetworkTransient  indexer timeout or 5xx; retried by history only
	ErrStorageCorruption unreadable stored state; absorbed by storage

Use errors.Is to test both the specific sentinel and its kind:

	errors.Is(err, werr.ErrInvalidRecoveryPhrase) // specific
	errors.Is(err, werr.ErrValidation)            // kind
*/
package werr

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrValidation        = errors.New("validation error")
	ErrConnector         = errors.New("connector error")
	ErrNetworkTransient  = errors.New("network transient error")
	ErrStorageCorruption = errors.New("storage corruption")
)

// Specific errors of the kinds above.
var (
	ErrInvalidRecoveryPhrase = New(ErrValidation, "invalid recovery phrase")
	ErrInvalidKeyMaterial    = New(ErrValidation, "invalid key material")
	ErrInvalidAddress        = New(ErrValidation, "invalid address")
	ErrInvalidAmount         = New(ErrValidation, "invalid amount")
	ErrUnknownIdentity       = New(ErrValidation, "unknown identity")

	ErrUserRejected        = New(ErrConnector, "user rejected the request")
	ErrProviderUnavailable = New(ErrConnector, "provider unavailable")

	ErrStorageCorrupted = New(ErrStorageCorruption, "stored state corrupted")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

// New returns a new sentinel error of the kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

type wrapError struct {
	kind error
	err  error
}

func (e *wrapError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *wrapError) Unwrap() error {
	return e.err
}

func (e *wrapError) Is(target error) bool {
	return target == e.kind
}

// Wrap tags err with the kind. A nil err stays nil.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &wrapError{kind: kind, err: err}
}

// Transient tags err as ErrNetworkTransient.
func Transient(err error) error {
	return Wrap(ErrNetworkTransient, err)
}

// Errorf formats an error which matches the sentinel with errors.Is and
// carries the detail text.
func Errorf(sentinel error, format string, a ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, a...))
}

// KindOf returns the kind of err or nil if err is not from the taxonomy.
func KindOf(err error) error {
	for _, k := range []error{
		ErrValidation,
		ErrConnector,
		ErrNetworkTransient,
		ErrStorageCorruption,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
