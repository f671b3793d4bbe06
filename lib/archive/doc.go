// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive reads and writes transfer archives: authenticated,
// optionally encrypted, compressed containers that carry service data
// and configuration between an instrument and its external tools.
//
// An archive is a plaintext header followed by one chunked entries
// section (see lib/chunkstream). All integers are big-endian.
//
//	header
//	  4   magic            0x27182818
//	  2   file version
//	  1   format version   chunk codec tag
//	  1   encrypted flag   0 or 1
//	  2   key version      0
//	  4   hash-chain index before the writer's step
//	  2   entry count
//	  2   name length
//	  L   archive name
//	  12  header HMACs     Leica, Viewer, Import (4 bytes each)
//
//	entry (repeated, inside the chunked stream)
//	  4   magic            0x31415926, or 0 for the terminator
//	  2   name length
//	  M   base name
//	  4   size
//	  N   payload
//	  12  entry HMACs
//
// Each entry's HMACs are re-armed and seeded with the entry's 2-byte,
// 1-based index before its magic, so entries cannot be reordered. The
// stored HMACs and the terminator are not themselves authenticated.
//
// Every archive carries one truncated HMAC per role, so the device
// (Import), the Viewer tool, and the Leica service tool each
// authenticate it with only their own key. [Write] advances the
// device's key hash chain after the archive is synced to disk; external
// readers derive the keys for an archive from the index in its header
// (keystore.DeriveRoleKeys).
//
// [Read] delivers entries to a [Sink]: [DiskSink] for extraction,
// [MemorySink] for in-process consumers, [NameSink] for listings, and
// [DigestSink] for manifests ([Inspect]).
package archive
