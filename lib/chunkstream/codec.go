// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstream

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/labinstrument/xfer/lib/fault"
)

// Codec compresses whole chunks. Implementations are stateless and
// safe for concurrent use.
type Codec interface {
	// Tag is the value stored in the archive header's format-version
	// byte. Tags are protocol constants.
	Tag() uint8

	// Compress returns the compressed form of a non-empty chunk.
	Compress(data []byte) ([]byte, error)

	// Decompress reverses Compress. Output longer than limit is an
	// error.
	Decompress(compressed []byte, limit int) ([]byte, error)
}

// Codec tags. TagZstd is the format's original value and the default.
const (
	TagZstd uint8 = 0
	TagLZ4  uint8 = 1
)

// Zstd and LZ4 are the supported codecs.
var (
	Zstd Codec = zstdCodec{}
	LZ4  Codec = lz4Codec{}
)

// CodecForTag returns the codec stored under tag.
func CodecForTag(tag uint8) (Codec, error) {
	switch tag {
	case TagZstd:
		return Zstd, nil
	case TagLZ4:
		return LZ4, nil
	default:
		return nil, fault.New(fault.Format, "chunkstream", "unknown codec tag %d", tag)
	}
}

// ParseCodec returns the codec with the given name ("zstd" or "lz4").
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return nil, fault.New(fault.InvalidField, "chunkstream", "unknown codec %q", name)
	}
}

// CodecName returns the name ParseCodec accepts for codec.
func CodecName(codec Codec) string {
	switch codec.Tag() {
	case TagZstd:
		return "zstd"
	case TagLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", codec.Tag())
	}
}

// maxStoredChunk bounds the declared length of a stored chunk. It
// covers the worst-case expansion of both codecs on a full chunk.
var maxStoredChunk = lz4.CompressBlockBound(ChunkSize) + 64

// zstd at the default level. The encoder and decoder are shared;
// EncodeAll and DecodeAll are safe for concurrent use.

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("chunkstream: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(4*ChunkSize),
	)
	if err != nil {
		panic("chunkstream: zstd decoder initialization failed: " + err.Error())
	}
}

type zstdCodec struct{}

func (zstdCodec) Tag() uint8 { return TagZstd }

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(compressed []byte, limit int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) > limit {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, limit %d", len(result), limit)
	}
	return result, nil
}

// LZ4 block mode. Blocks do not record their uncompressed length, so
// decompression writes into a limit-sized buffer.

type lz4Codec struct{}

func (lz4Codec) Tag() uint8 { return TagLZ4 }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	// With a destination of CompressBlockBound bytes, CompressBlock
	// stores incompressible input as literals instead of returning 0.
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 && len(data) > 0 {
		return nil, fmt.Errorf("lz4 compress: no output for %d bytes", len(data))
	}
	return destination[:written], nil
}

func (lz4Codec) Decompress(compressed []byte, limit int) ([]byte, error) {
	destination := make([]byte, limit)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return destination[:read], nil
}
