// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration for
// archive manifests and other structured tool output.
//
// Archives themselves use a fixed big-endian binary layout and never
// pass through this package. CBOR is for what the tooling says about
// an archive: the manifest a service tool ingests, or a listing piped
// between tools. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items, so the same manifest always produces
// identical bytes.
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Types that implement encoding.TextMarshaler (digests, for example)
// serialize as CBOR text strings.
package codec
