// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstream

import (
	"errors"
	"io"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/fault"
)

// ReaderOptions configures a Reader. Auth, Cipher, and Codec must
// match the Writer that produced the stream.
type ReaderOptions struct {
	// Auth, if set, receives every byte returned by Next and CopyN.
	Auth Auth

	// Cipher, if set, deciphers each stored chunk.
	Cipher Cipher

	// Codec decompresses chunks. Nil selects Zstd.
	Codec Codec
}

// Reader reassembles the logical byte stream written by a Writer.
// Chunks are pulled from the source only as needed to satisfy a
// request; bytes beyond the request stay buffered for the next call.
type Reader struct {
	source  io.Reader
	options ReaderOptions
	pending []byte
	offset  int
	chunks  int
}

// NewReader returns a Reader pulling chunks from source.
func NewReader(source io.Reader, options ReaderOptions) *Reader {
	if options.Codec == nil {
		options.Codec = Zstd
	}
	return &Reader{source: source, options: options}
}

// Next returns exactly n bytes and feeds them to Auth. The returned
// slice is valid until the next call on the Reader.
func (r *Reader) Next(n int) ([]byte, error) {
	data, err := r.next(n)
	if err != nil {
		return nil, err
	}
	if r.options.Auth != nil {
		if err := r.options.Auth.UpdateHMACs(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// NextRaw returns exactly n bytes without feeding Auth. The returned
// slice is valid until the next call on the Reader.
func (r *Reader) NextRaw(n int) ([]byte, error) {
	return r.next(n)
}

// CopyN streams n bytes to destination in pieces of at most ChunkSize,
// feeding each piece to Auth. A nil destination discards the bytes.
func (r *Reader) CopyN(destination io.Writer, n int64) error {
	for n > 0 {
		piece := int(min(n, ChunkSize))
		data, err := r.Next(piece)
		if err != nil {
			return err
		}
		if destination != nil {
			if _, err := destination.Write(data); err != nil {
				return fault.Wrap(fault.IO, "chunkstream.Reader", err, "writing payload")
			}
		}
		n -= int64(piece)
	}
	return nil
}

// Chunks returns the number of chunks read so far.
func (r *Reader) Chunks() int {
	return r.chunks
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, fault.New(fault.Misuse, "chunkstream.Reader", "negative read size %d", n)
	}
	for len(r.pending)-r.offset < n {
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
	data := r.pending[r.offset : r.offset+n]
	r.offset += n
	return data, nil
}

// fill drops consumed bytes and appends the next decompressed chunk.
func (r *Reader) fill() error {
	remaining := copy(r.pending, r.pending[r.offset:])
	r.pending = r.pending[:remaining]
	r.offset = 0

	prefix := make([]byte, lengthSize)
	if err := r.readStored(prefix, "length prefix"); err != nil {
		return err
	}
	length := int(beint.Uint32(prefix))
	if length == 0 || length > maxStoredChunk {
		return fault.New(fault.Format, "chunkstream.Reader",
			"chunk %d declares %d stored bytes (limit %d)", r.chunks, length, maxStoredChunk)
	}

	stored := make([]byte, length)
	if err := r.readStored(stored, "payload"); err != nil {
		return err
	}
	decompressed, err := r.options.Codec.Decompress(stored, ChunkSize)
	if err != nil {
		return fault.Wrap(fault.Decompress, "chunkstream.Reader", err, "chunk %d", r.chunks)
	}
	if len(decompressed) == 0 {
		return fault.New(fault.Decompress, "chunkstream.Reader", "chunk %d decompressed to nothing", r.chunks)
	}
	r.pending = append(r.pending, decompressed...)
	r.chunks++
	return nil
}

// readStored reads and deciphers one stored field of a chunk.
func (r *Reader) readStored(buffer []byte, what string) error {
	if _, err := io.ReadFull(r.source, buffer); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fault.New(fault.Truncated, "chunkstream.Reader",
				"stream ended in chunk %d %s", r.chunks, what)
		}
		return fault.Wrap(fault.IO, "chunkstream.Reader", err, "reading chunk %d %s", r.chunks, what)
	}
	if r.options.Cipher != nil {
		return r.options.Cipher.EncryptInPlace(buffer)
	}
	return nil
}
