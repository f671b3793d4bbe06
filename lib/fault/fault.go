// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the single error type raised by the archive
// codec and its key management layer.
//
// Every failure carries a [Kind], the origin (the operation that
// detected it), a message, and optionally the underlying cause. Kind
// values implement error themselves, so callers test with errors.Is:
//
//	if errors.Is(err, fault.Integrity) {
//	    // HMAC mismatch: the archive was tampered with or the key is wrong
//	}
//
// Errors propagate by early return. Nothing at this layer retries or
// returns partial results.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// Unknown is the zero Kind. KindOf returns it for errors that did
	// not originate in this package.
	Unknown Kind = iota

	// IO is a read, write, sync, or open failure on an underlying file.
	IO

	// Format is a magic-number or format-version mismatch.
	Format

	// InvalidField is a missing or malformed field: an archive name
	// without a device identity, a key store of the wrong length, an
	// unsafe entry name.
	InvalidField

	// Integrity is an HMAC mismatch.
	Integrity

	// Decompress is a chunk that fails to decompress or decompresses to
	// nothing.
	Decompress

	// Truncated is a stream that ended before the declared data.
	Truncated

	// DuplicateName is two source files with the same base name in one
	// write.
	DuplicateName

	// CountMismatch is an archive whose entry count differs from the
	// count declared in its header.
	CountMismatch

	// KeyConflict is a hash-chain index disagreement between the local
	// and removable-media key stores. It is logged, never returned.
	KeyConflict

	// SessionActive is an attempt to construct a second session manager
	// while one is live.
	SessionActive

	// Misuse is an API call out of order, such as feeding a finalized
	// HMAC.
	Misuse
)

// String returns the kind's name.
func (kind Kind) String() string {
	switch kind {
	case IO:
		return "io"
	case Format:
		return "format"
	case InvalidField:
		return "invalid_field"
	case Integrity:
		return "integrity"
	case Decompress:
		return "decompress"
	case Truncated:
		return "truncated"
	case DuplicateName:
		return "duplicate_name"
	case CountMismatch:
		return "count_mismatch"
	case KeyConflict:
		return "key_conflict"
	case SessionActive:
		return "session_active"
	case Misuse:
		return "misuse"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(kind))
	}
}

// Error makes a bare Kind usable as an errors.Is target.
func (kind Kind) Error() string {
	return kind.String()
}

// Error is the failure type for the whole codec.
type Error struct {
	Kind    Kind
	Origin  string
	Message string
	Err     error
}

// Error formats as "origin: message: cause".
func (e *Error) Error() string {
	text := e.Origin
	if e.Message != "" {
		if text != "" {
			text += ": "
		}
		text += e.Message
	}
	if e.Err != nil {
		if text != "" {
			text += ": "
		}
		text += e.Err.Error()
	}
	if text == "" {
		return e.Kind.String()
	}
	return text
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target against the error's kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// New creates an Error with a formatted message and no cause.
func New(kind Kind, origin, format string, args ...any) *Error {
	return &Error{Kind: kind, Origin: origin, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause. Returns nil when cause is nil so
// callers can wrap unconditionally at a return site.
func Wrap(kind Kind, origin string, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Origin: origin, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// Unknown.
func KindOf(err error) Kind {
	var codecError *Error
	if errors.As(err, &codecError) {
		return codecError.Kind
	}
	return Unknown
}
