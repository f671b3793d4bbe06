// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{IO, "io"},
		{Integrity, "integrity"},
		{CountMismatch, "count_mismatch"},
		{SessionActive, "session_active"},
		{Kind(200), "unknown(200)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestErrorsIsMatchesKindThroughWrapping(t *testing.T) {
	inner := New(Integrity, "archive.Read", "entry %d HMAC mismatch", 3)
	wrapped := fmt.Errorf("importing configuration: %w", inner)

	if !errors.Is(wrapped, Integrity) {
		t.Error("errors.Is(wrapped, Integrity) = false, want true")
	}
	if errors.Is(wrapped, Truncated) {
		t.Error("errors.Is(wrapped, Truncated) = true, want false")
	}
	if got := KindOf(wrapped); got != Integrity {
		t.Errorf("KindOf = %v, want integrity", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(Truncated, "safefile.ReadFull", io.ErrUnexpectedEOF, "reading %d bytes", 4)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
	want := "safefile.ReadFull: reading 4 bytes: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(IO, "origin", nil, "nothing"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(io.EOF); got != Unknown {
		t.Errorf("KindOf(io.EOF) = %v, want unknown", got)
	}
}
