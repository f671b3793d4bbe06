// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstream

import (
	"io"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/fault"
)

// ChunkSize is the largest number of logical bytes in one chunk.
const ChunkSize = 1 << 20

// lengthSize is the width of a chunk's length prefix.
const lengthSize = 4

// Auth receives the logical bytes that are covered by the archive's
// HMACs. *session.Manager implements it.
type Auth interface {
	UpdateHMACs(data []byte) error
}

// Cipher transforms stored bytes in place with a keystream whose
// position persists across calls. *session.Manager implements it.
type Cipher interface {
	EncryptInPlace(buffer []byte) error
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Auth, if set, receives every byte passed to Write.
	Auth Auth

	// Cipher, if set, enciphers each stored chunk.
	Cipher Cipher

	// Codec compresses chunks. Nil selects Zstd.
	Codec Codec
}

// Writer splits a byte stream into compressed, length-prefixed chunks
// of at most ChunkSize logical bytes. The first error is sticky: every
// later call returns it.
type Writer struct {
	destination io.Writer
	options     WriterOptions
	pending     []byte
	chunks      int
	err         error
	closed      bool
}

// NewWriter returns a Writer emitting chunks to destination.
func NewWriter(destination io.Writer, options WriterOptions) *Writer {
	if options.Codec == nil {
		options.Codec = Zstd
	}
	return &Writer{
		destination: destination,
		options:     options,
		pending:     make([]byte, 0, ChunkSize),
	}
}

// Write buffers data and feeds it to Auth.
func (w *Writer) Write(data []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.options.Auth != nil {
		if err := w.options.Auth.UpdateHMACs(data); err != nil {
			w.err = err
			return 0, err
		}
	}
	if err := w.buffer(data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// WriteRaw buffers data without feeding Auth. Stored HMACs and the
// terminator go through here.
func (w *Writer) WriteRaw(data []byte) error {
	if w.err != nil {
		return w.err
	}
	return w.buffer(data)
}

func (w *Writer) buffer(data []byte) error {
	if w.closed {
		w.err = fault.New(fault.Misuse, "chunkstream.Writer", "write after close")
		return w.err
	}
	for len(data) > 0 {
		take := min(len(data), ChunkSize-len(w.pending))
		w.pending = append(w.pending, data[:take]...)
		data = data[take:]
		if len(w.pending) == ChunkSize {
			if err := w.emit(); err != nil {
				return err
			}
		}
	}
	return nil
}

// emit compresses, frames, enciphers, and writes the pending buffer.
func (w *Writer) emit() error {
	compressed, err := w.options.Codec.Compress(w.pending)
	if err != nil {
		w.err = fault.Wrap(fault.IO, "chunkstream.Writer", err, "compressing chunk %d", w.chunks)
		return w.err
	}
	record := make([]byte, lengthSize+len(compressed))
	beint.PutUint32(record, uint32(len(compressed)))
	copy(record[lengthSize:], compressed)
	if w.options.Cipher != nil {
		if err := w.options.Cipher.EncryptInPlace(record); err != nil {
			w.err = err
			return err
		}
	}
	if _, err := w.destination.Write(record); err != nil {
		w.err = fault.Wrap(fault.IO, "chunkstream.Writer", err, "writing chunk %d", w.chunks)
		return w.err
	}
	w.chunks++
	w.pending = w.pending[:0]
	return nil
}

// Chunks returns the number of chunks written so far.
func (w *Writer) Chunks() int {
	return w.chunks
}

// Close writes any buffered bytes as a final chunk. An empty buffer
// writes nothing, so no stored chunk ever decompresses to zero bytes.
// Close is idempotent; the first call's result is returned again.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil || len(w.pending) == 0 {
		return w.err
	}
	return w.emit()
}
