// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"math"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/keyedhash"
	"github.com/labinstrument/xfer/lib/keystore"
	"github.com/labinstrument/xfer/lib/safefile"
)

// Format constants. These are protocol values; changing them breaks
// every archive already on removable media.
const (
	// HeaderMagic opens every archive.
	HeaderMagic uint32 = 0x27182818

	// EntryMagic opens every entry. A zero magic is the terminator.
	EntryMagic uint32 = 0x31415926

	// KeyVersion is the only key-store version written.
	KeyVersion uint16 = 0
)

// fixedHeaderSize is the length of the header fields before the name.
const fixedHeaderSize = 4 + 2 + 1 + 1 + 2 + 4 + 2 + 2

// macBlockSize is the length of the three truncated HMACs that close
// the header and every entry.
const macBlockSize = len(keystore.Roles) * keyedhash.TruncatedSize

// MACs holds one truncated HMAC per role, in role order.
type MACs [3][keyedhash.TruncatedSize]byte

func truncateAll(digests [3]keyedhash.Digest) MACs {
	var macs MACs
	for index, digest := range digests {
		macs[index] = digest.Truncated()
	}
	return macs
}

func (m MACs) bytes() []byte {
	data := make([]byte, 0, macBlockSize)
	for _, mac := range m {
		data = append(data, mac[:]...)
	}
	return data
}

func parseMACs(data []byte) MACs {
	var macs MACs
	for index := range macs {
		copy(macs[index][:], data[index*keyedhash.TruncatedSize:])
	}
	return macs
}

// Header is the plaintext archive header.
type Header struct {
	FileVersion uint16

	// FormatVersion is the chunk codec tag (chunkstream.TagZstd or
	// chunkstream.TagLZ4).
	FormatVersion uint8

	Encrypted  bool
	KeyVersion uint16

	// HashChainIndex is the writer's index before its post-write step.
	// External tools derive the keys for this archive from it.
	HashChainIndex uint32

	EntryCount uint16

	// Name is the archive name exactly as passed to Write.
	Name string

	MACs MACs
}

// fields encodes every header field covered by the header HMACs.
func (h *Header) fields() ([]byte, error) {
	if len(h.Name) > math.MaxUint16 {
		return nil, fault.New(fault.InvalidField, "archive.Write", "archive name is %d bytes, limit %d", len(h.Name), math.MaxUint16)
	}
	data := make([]byte, 0, fixedHeaderSize+len(h.Name))
	data = beint.Append32(data, HeaderMagic)
	data = beint.Append16(data, h.FileVersion)
	data = append(data, h.FormatVersion)
	encrypted := uint8(0)
	if h.Encrypted {
		encrypted = 1
	}
	data = append(data, encrypted)
	data = beint.Append16(data, h.KeyVersion)
	data = beint.Append32(data, h.HashChainIndex)
	data = beint.Append16(data, h.EntryCount)
	data = beint.Append16(data, uint16(len(h.Name)))
	data = append(data, h.Name...)
	return data, nil
}

// readHeader reads and parses the header from file. It returns the
// covered field bytes alongside the header so the caller can
// authenticate them.
func readHeader(file *safefile.File) (Header, []byte, error) {
	fixed := make([]byte, fixedHeaderSize)
	if err := file.ReadFull(fixed); err != nil {
		return Header{}, nil, err
	}
	if magic := beint.Uint32(fixed[0:4]); magic != HeaderMagic {
		return Header{}, nil, fault.New(fault.Format, file.Path(), "header magic %#08x, want %#08x", magic, HeaderMagic)
	}
	var header Header
	header.FileVersion = beint.Uint16(fixed[4:6])
	header.FormatVersion = beint.Uint8(fixed[6:7])
	switch encrypted := beint.Uint8(fixed[7:8]); encrypted {
	case 0:
	case 1:
		header.Encrypted = true
	default:
		return Header{}, nil, fault.New(fault.InvalidField, file.Path(), "encrypted flag %d", encrypted)
	}
	header.KeyVersion = beint.Uint16(fixed[8:10])
	header.HashChainIndex = beint.Uint32(fixed[10:14])
	if header.HashChainIndex > keystore.MaxIndex {
		return Header{}, nil, fault.New(fault.InvalidField, file.Path(), "hash-chain index %d exceeds the limit %d", header.HashChainIndex, keystore.MaxIndex)
	}
	header.EntryCount = beint.Uint16(fixed[14:16])
	nameLength := int(beint.Uint16(fixed[16:18]))

	name := make([]byte, nameLength)
	if err := file.ReadFull(name); err != nil {
		return Header{}, nil, err
	}
	header.Name = string(name)

	macs := make([]byte, macBlockSize)
	if err := file.ReadFull(macs); err != nil {
		return Header{}, nil, err
	}
	header.MACs = parseMACs(macs)

	fields := append(fixed, name...)
	return header, fields, nil
}
