// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package ctrstream applies AES-128 in counter mode as a continuous
// keystream.
//
// One Stream covers the whole entries section of an archive. The
// chunked writer transforms a 4-byte length prefix and then the chunk
// body in separate calls, and the reader mirrors that, so the keystream
// position must carry over between calls. Never create a new Stream per
// call.
package ctrstream

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// KeySize is the AES-128 key length.
const KeySize = 16

// Stream is a stateful CTR keystream. Encryption and decryption are the
// same operation.
type Stream struct {
	stream    cipher.Stream
	processed int64
}

// New creates a Stream for key with an all-zero initial counter block.
// The key is unique per archive (it derives from the rotating Viewer
// key), so the fixed IV never repeats under one key across archives.
func New(key []byte) (*Stream, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("ctrstream: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ctrstream: creating AES cipher: %w", err)
	}
	var iv [aes.BlockSize]byte
	return &Stream{stream: cipher.NewCTR(block, iv[:])}, nil
}

// XORInPlace transforms buffer in place and advances the keystream by
// len(buffer) bytes.
func (s *Stream) XORInPlace(buffer []byte) {
	s.stream.XORKeyStream(buffer, buffer)
	s.processed += int64(len(buffer))
}

// Processed returns the number of keystream bytes consumed so far.
func (s *Stream) Processed() int64 {
	return s.processed
}
