// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkstream implements the chunked record layer of the
// transfer archive's entries section.
//
// A [Writer] accepts one continuous logical byte stream and cuts it
// into chunks of at most [ChunkSize] bytes. Chunk boundaries ignore
// whatever structure the caller writes; an archive entry routinely
// starts in one chunk and ends several chunks later. Each chunk is
// stored as:
//
//	4  length    big-endian length of the compressed bytes
//	L  payload   codec output
//
// When a [Cipher] is configured the length prefix and payload are both
// enciphered with one keystream that runs across all chunks, so the
// Reader must decipher the prefix and payload in the same order.
//
// Bytes written with [Writer.Write] are also fed to the [Auth]
// (normally the session's HMACs) before compression; [Writer.WriteRaw]
// bypasses it for stored HMACs and the terminator. The [Reader]
// mirrors this split with [Reader.Next] and [Reader.NextRaw].
package chunkstream
