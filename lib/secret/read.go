// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxReadSize bounds ReadFrom. Identity files and sealed key material
// are a few hundred bytes.
const maxReadSize = 64 * 1024

// ReadFromPath reads a secret such as an age identity from path, or
// from stdin when path is "-". Surrounding whitespace is trimmed. The
// heap copy is zeroed before return.
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return ReadFrom(os.Stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFrom(file)
}

// ReadFrom reads at most 64 KiB from reader into a new Buffer, trimming
// surrounding whitespace. Empty input is an error.
func ReadFrom(reader io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxReadSize+1))
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	if len(data) > maxReadSize {
		Zero(data)
		return nil, fmt.Errorf("secret exceeds %d bytes", maxReadSize)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	return buffer, err
}
