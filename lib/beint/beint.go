// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package beint converts fixed-width unsigned integers to and from
// big-endian bytes. Every multi-byte integer in the archive format and
// the key stores uses this byte order.
package beint

import (
	"encoding/binary"
	"fmt"
)

// PutUint8 writes v into buffer[0].
func PutUint8(buffer []byte, v uint8) { buffer[0] = v }

// PutUint16 writes v big-endian into buffer[0:2].
func PutUint16(buffer []byte, v uint16) { binary.BigEndian.PutUint16(buffer, v) }

// PutUint32 writes v big-endian into buffer[0:4].
func PutUint32(buffer []byte, v uint32) { binary.BigEndian.PutUint32(buffer, v) }

// Uint8 reads buffer[0].
func Uint8(buffer []byte) uint8 { return buffer[0] }

// Uint16 reads a big-endian value from buffer[0:2].
func Uint16(buffer []byte) uint16 { return binary.BigEndian.Uint16(buffer) }

// Uint32 reads a big-endian value from buffer[0:4].
func Uint32(buffer []byte) uint32 { return binary.BigEndian.Uint32(buffer) }

// Append16 appends v as two big-endian bytes.
func Append16(buffer []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(buffer, v) }

// Append32 appends v as four big-endian bytes.
func Append32(buffer []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(buffer, v) }

// Put writes the low width bytes of v big-endian into buffer. Width
// must be 1, 2, or 4, and v must fit; anything else is a programming
// error and panics.
func Put(buffer []byte, width int, v uint32) {
	switch width {
	case 1:
		if v > 0xFF {
			panic(fmt.Sprintf("beint: value %d does not fit in 1 byte", v))
		}
		PutUint8(buffer, uint8(v))
	case 2:
		if v > 0xFFFF {
			panic(fmt.Sprintf("beint: value %d does not fit in 2 bytes", v))
		}
		PutUint16(buffer, uint16(v))
	case 4:
		PutUint32(buffer, v)
	default:
		panic(fmt.Sprintf("beint: unsupported width %d", width))
	}
}

// Get reads a width-byte big-endian value from buffer. Width must be
// 1, 2, or 4.
func Get(buffer []byte, width int) uint32 {
	switch width {
	case 1:
		return uint32(Uint8(buffer))
	case 2:
		return uint32(Uint16(buffer))
	case 4:
		return Uint32(buffer)
	default:
		panic(fmt.Sprintf("beint: unsupported width %d", width))
	}
}
