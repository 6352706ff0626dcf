// Package vaulterrors declares the error taxonomy shared across the vault
// backend so HTTP handlers, the indexer, and the reconciliation worker can
// all react to the same error kinds without inspecting message strings.
package vaulterrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy's categories. The retry
// policy classifies by message text rather than Kind, and HTTP handlers
// answer 500 for every Kind.
type Kind int

const (
	// KindUnknown is the zero value; treated as a terminal internal error.
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindTransientIO
	KindTerminalIO
	KindParse
	KindFatalConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindTransientIO:
		return "transient_io"
	case KindTerminalIO:
		return "terminal_io"
	case KindParse:
		return "parse"
	case KindFatalConfig:
		return "fatal_config"
	default:
		return "unknown"
	}
}

// vaultError wraps an underlying cause with a Kind and a human-readable
// message, matching the corpus's %w-wrapping convention.
type vaultError struct {
	kind Kind
	msg  string
	err  error
}

func (e *vaultError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *vaultError) Unwrap() error { return e.err }

// New constructs an error of the given kind.
func New(kind Kind, msg string) error {
	return &vaultError{kind: kind, msg: msg}
}

// Wrap constructs an error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &vaultError{kind: kind, msg: msg, err: cause}
}

// KindOf returns the Kind carried by err, walking the Unwrap chain. Errors
// with no attached Kind are KindUnknown.
func KindOf(err error) Kind {
	var ve *vaultError
	if errors.As(err, &ve) {
		return ve.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ve *vaultError
		if !errors.As(err, &ve) {
			return false
		}
		if ve.kind == kind {
			return true
		}
		err = ve.err
	}
	return false
}

var (
	ErrVaultNotFound = New(KindNotFound, "vault not found")
	ErrNotAuthorized = New(KindAuthorization, "program not authorized for this operation")
)
