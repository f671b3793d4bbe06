// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"github.com/labinstrument/xfer/lib/chunkstream"
	"github.com/labinstrument/xfer/lib/codec"
)

// Manifest describes an authenticated archive: its header fields and
// the digest of every entry.
type Manifest struct {
	Archive        string        `cbor:"archive"`
	Device         string        `cbor:"device,omitempty"`
	FileVersion    uint16        `cbor:"file_version"`
	Codec          string        `cbor:"codec"`
	Encrypted      bool          `cbor:"encrypted"`
	HashChainIndex uint32        `cbor:"hash_chain_index"`
	Entries        []EntryDigest `cbor:"entries"`
}

// Inspect reads the archive like Read, hashing every selected entry
// instead of extracting it. request.Sink is ignored.
func Inspect(request ReadRequest) (*Manifest, error) {
	sink := &DigestSink{}
	request.Sink = sink
	result, err := Read(request)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Archive:        result.Header.Name,
		FileVersion:    result.Header.FileVersion,
		Encrypted:      result.Header.Encrypted,
		HashChainIndex: result.Header.HashChainIndex,
		Entries:        sink.Entries(),
	}
	// Read has already accepted the tag.
	if chunkCodec, err := chunkstream.CodecForTag(result.Header.FormatVersion); err == nil {
		manifest.Codec = chunkstream.CodecName(chunkCodec)
	}
	if device, err := DeviceID(result.Header.Name); err == nil {
		manifest.Device = string(device)
	}
	return manifest, nil
}

// MarshalCBOR encodes the manifest with deterministic CBOR.
func (m *Manifest) MarshalCBOR() ([]byte, error) {
	type plain Manifest
	return codec.Marshal((*plain)(m))
}
