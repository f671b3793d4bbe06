// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyedhash provides the 20-byte hash and the incremental
// keyed digest (HMAC, RFC 2104) used to authenticate archives and to
// advance the key hash chain.
//
// The digest is SHA-1. The archive format and every key already
// provisioned on a device depend on that choice, so it is not
// configurable.
package keyedhash

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // fixed by the archive format and provisioned keys
	"hash"

	"github.com/labinstrument/xfer/lib/fault"
)

// Size is the digest length in bytes.
const Size = sha1.Size

// TruncatedSize is the number of digest bytes stored per role in an
// archive header or entry.
const TruncatedSize = 4

// Digest is a full 20-byte hash or HMAC value.
type Digest [Size]byte

// Truncated returns the leading TruncatedSize bytes of the digest.
func (d Digest) Truncated() [TruncatedSize]byte {
	var out [TruncatedSize]byte
	copy(out[:], d[:TruncatedSize])
	return out
}

// Sum hashes the concatenation of parts. This is the hash() of the key
// derivation rules: Sum(seed, deviceID) equals hashing seed‖deviceID.
func Sum(parts ...[]byte) Digest {
	hasher := sha1.New() //nolint:gosec // see package comment
	for _, part := range parts {
		hasher.Write(part)
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// HMAC is an incremental keyed digest. It may be finalized once; after
// Sum, Write fails with fault.Misuse. Create a new HMAC to start over.
type HMAC struct {
	mac       hash.Hash
	finalized bool
}

// New returns an HMAC keyed with key. The key is copied by the
// underlying implementation.
func New(key []byte) *HMAC {
	return &HMAC{mac: hmac.New(sha1.New, key)}
}

// Write feeds data into the digest.
func (h *HMAC) Write(data []byte) (int, error) {
	if h.finalized {
		return 0, fault.New(fault.Misuse, "keyedhash.HMAC", "write after Sum")
	}
	return h.mac.Write(data)
}

// Sum finalizes and returns the digest. A second call fails.
func (h *HMAC) Sum() (Digest, error) {
	if h.finalized {
		return Digest{}, fault.New(fault.Misuse, "keyedhash.HMAC", "Sum called twice")
	}
	h.finalized = true
	var digest Digest
	copy(digest[:], h.mac.Sum(nil))
	return digest, nil
}

// Equal compares two truncated digests in constant time.
func Equal(a, b [TruncatedSize]byte) bool {
	return hmac.Equal(a[:], b[:])
}
