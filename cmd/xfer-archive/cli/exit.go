// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/labinstrument/xfer/lib/fault"
)

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, main
// exits with the specified code without printing the error string.
// The command is expected to have already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Exit codes for archive failures, so bench scripts can tell a
// tampered archive from a missing file.
const (
	ExitFailure   = 1
	ExitPartial   = 2
	ExitIntegrity = 3
	ExitFormat    = 4
	ExitIO        = 5
	ExitBusy      = 6

	// ExitUsage follows sysexits.h EX_USAGE.
	ExitUsage = 64
)

// ExitCodeFor maps an error to the process exit code: the code of an
// ExitError or UsageError, otherwise one derived from the fault kind.
func ExitCodeFor(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return usage.ExitCode()
	}
	switch fault.KindOf(err) {
	case fault.Integrity:
		return ExitIntegrity
	case fault.Format, fault.InvalidField, fault.Decompress, fault.Truncated, fault.CountMismatch:
		return ExitFormat
	case fault.IO:
		return ExitIO
	case fault.SessionActive:
		return ExitBusy
	default:
		return ExitFailure
	}
}
