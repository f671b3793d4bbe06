// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstream

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/ctrstream"
	"github.com/labinstrument/xfer/lib/fault"
)

// recordingAuth captures every byte fed to the HMACs.
type recordingAuth struct {
	bytes.Buffer
}

func (a *recordingAuth) UpdateHMACs(data []byte) error {
	a.Write(data)
	return nil
}

// streamCipher adapts a ctrstream.Stream to the Cipher interface.
type streamCipher struct {
	stream *ctrstream.Stream
}

func (c streamCipher) EncryptInPlace(buffer []byte) error {
	c.stream.XORInPlace(buffer)
	return nil
}

func newCipher(t *testing.T) streamCipher {
	t.Helper()
	stream, err := ctrstream.New(bytes.Repeat([]byte{0x5A}, ctrstream.KeySize))
	if err != nil {
		t.Fatalf("ctrstream.New: %v", err)
	}
	return streamCipher{stream: stream}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	return data
}

// compressible returns n bytes of repetitive text.
func compressible(n int) []byte {
	pattern := []byte("temperature=62.5C reagent=xylene station=7\n")
	data := make([]byte, 0, n+len(pattern))
	for len(data) < n {
		data = append(data, pattern...)
	}
	return data[:n]
}

func TestRoundTrip(t *testing.T) {
	sizes := []struct {
		name string
		size int
	}{
		{"one byte", 1},
		{"small", 1000},
		{"exactly one chunk", ChunkSize},
		{"one chunk plus one", ChunkSize + 1},
		{"several chunks", 3*ChunkSize + 17},
	}
	for _, codec := range []Codec{Zstd, LZ4} {
		for _, encrypted := range []bool{false, true} {
			for _, size := range sizes {
				name := CodecName(codec) + "/" + size.name
				if encrypted {
					name += "/encrypted"
				}
				t.Run(name, func(t *testing.T) {
					payload := compressible(size.size)
					if size.size > ChunkSize {
						copy(payload[ChunkSize/2:], randomBytes(t, ChunkSize/4))
					}

					var stored bytes.Buffer
					writerOptions := WriterOptions{Codec: codec}
					readerOptions := ReaderOptions{Codec: codec}
					if encrypted {
						writerOptions.Cipher = newCipher(t)
						readerOptions.Cipher = newCipher(t)
					}

					writer := NewWriter(&stored, writerOptions)
					if _, err := writer.Write(payload); err != nil {
						t.Fatalf("Write: %v", err)
					}
					if err := writer.Close(); err != nil {
						t.Fatalf("Close: %v", err)
					}
					wantChunks := (size.size + ChunkSize - 1) / ChunkSize
					if writer.Chunks() != wantChunks {
						t.Errorf("Chunks = %d, want %d", writer.Chunks(), wantChunks)
					}

					reader := NewReader(&stored, readerOptions)
					var restored bytes.Buffer
					if err := reader.CopyN(&restored, int64(size.size)); err != nil {
						t.Fatalf("CopyN: %v", err)
					}
					if !bytes.Equal(restored.Bytes(), payload) {
						t.Fatal("restored bytes differ from payload")
					}
					if stored.Len() != 0 {
						t.Errorf("%d stored bytes left unread", stored.Len())
					}
				})
			}
		}
	}
}

func TestNextSpansChunkBoundaries(t *testing.T) {
	payload := randomBytes(t, 2*ChunkSize+100)

	var stored bytes.Buffer
	writer := NewWriter(&stored, WriterOptions{})
	// Write in pieces that never line up with chunk boundaries.
	for offset := 0; offset < len(payload); offset += 333333 {
		end := min(offset+333333, len(payload))
		if _, err := writer.Write(payload[offset:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader := NewReader(&stored, ReaderOptions{})
	var restored []byte
	for _, size := range []int{7, ChunkSize - 3, 10, ChunkSize + 50, 36} {
		data, err := reader.Next(size)
		if err != nil {
			t.Fatalf("Next(%d): %v", size, err)
		}
		if len(data) != size {
			t.Fatalf("Next(%d) returned %d bytes", size, len(data))
		}
		restored = append(restored, data...)
	}
	if !bytes.Equal(restored, payload) {
		t.Error("pieces do not reassemble the payload")
	}
}

func TestRawBytesBypassAuth(t *testing.T) {
	writerAuth := &recordingAuth{}
	var stored bytes.Buffer
	writer := NewWriter(&stored, WriterOptions{Auth: writerAuth})
	writer.Write([]byte("covered-"))
	writer.WriteRaw([]byte("RAW"))
	writer.Write([]byte("tail"))
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if writerAuth.String() != "covered-tail" {
		t.Errorf("writer auth saw %q", writerAuth.String())
	}

	readerAuth := &recordingAuth{}
	reader := NewReader(&stored, ReaderOptions{Auth: readerAuth})
	first, _ := reader.Next(8)
	if string(first) != "covered-" {
		t.Errorf("Next(8) = %q", first)
	}
	raw, _ := reader.NextRaw(3)
	if string(raw) != "RAW" {
		t.Errorf("NextRaw(3) = %q", raw)
	}
	reader.Next(4)
	if readerAuth.String() != "covered-tail" {
		t.Errorf("reader auth saw %q", readerAuth.String())
	}
}

func TestCloseEmptyWritesNothing(t *testing.T) {
	var stored bytes.Buffer
	writer := NewWriter(&stored, WriterOptions{})
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stored.Len() != 0 {
		t.Errorf("empty writer stored %d bytes", stored.Len())
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := writer.WriteRaw([]byte{1}); !errors.Is(err, fault.Misuse) {
		t.Errorf("WriteRaw after Close error = %v, want misuse", err)
	}
}

func TestTruncatedStream(t *testing.T) {
	var stored bytes.Buffer
	writer := NewWriter(&stored, WriterOptions{})
	writer.Write(compressible(5000))
	writer.Close()

	for _, cut := range []int{0, 2, 4, stored.Len() - 1} {
		reader := NewReader(bytes.NewReader(stored.Bytes()[:cut]), ReaderOptions{})
		if _, err := reader.Next(5000); !errors.Is(err, fault.Truncated) {
			t.Errorf("cut at %d: error = %v, want truncated", cut, err)
		}
	}

	reader := NewReader(bytes.NewReader(stored.Bytes()), ReaderOptions{})
	if _, err := reader.Next(5001); !errors.Is(err, fault.Truncated) {
		t.Errorf("reading past the last chunk: error = %v, want truncated", err)
	}
}

func TestDeclaredLengthOutOfRange(t *testing.T) {
	for _, length := range []uint32{0, uint32(maxStoredChunk) + 1} {
		record := make([]byte, lengthSize+8)
		beint.PutUint32(record, length)
		reader := NewReader(bytes.NewReader(record), ReaderOptions{})
		if _, err := reader.Next(1); !errors.Is(err, fault.Format) {
			t.Errorf("length %d: error = %v, want format", length, err)
		}
	}
}

func TestCorruptPayloadFailsDecompression(t *testing.T) {
	for _, codec := range []Codec{Zstd, LZ4} {
		t.Run(CodecName(codec), func(t *testing.T) {
			garbage := bytes.Repeat([]byte{0xFF}, 64)
			record := beint.Append32(nil, uint32(len(garbage)))
			record = append(record, garbage...)

			reader := NewReader(bytes.NewReader(record), ReaderOptions{Codec: codec})
			if _, err := reader.Next(1); !errors.Is(err, fault.Decompress) {
				t.Errorf("error = %v, want decompress", err)
			}
		})
	}
}

func TestEmptyChunkFailsDecompression(t *testing.T) {
	encoder, err := zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	if err != nil {
		t.Fatal(err)
	}
	compressed := encoder.EncodeAll(nil, nil)
	record := beint.Append32(nil, uint32(len(compressed)))
	record = append(record, compressed...)

	reader := NewReader(bytes.NewReader(record), ReaderOptions{})
	if _, err := reader.Next(1); !errors.Is(err, fault.Decompress) {
		t.Errorf("error = %v, want decompress", err)
	}
}

func TestWrongCipherKeyIsDetected(t *testing.T) {
	var stored bytes.Buffer
	writer := NewWriter(&stored, WriterOptions{Cipher: newCipher(t)})
	writer.Write(compressible(4096))
	writer.Close()

	other, _ := ctrstream.New(bytes.Repeat([]byte{0x11}, ctrstream.KeySize))
	reader := NewReader(&stored, ReaderOptions{Cipher: streamCipher{stream: other}})
	data, err := reader.Next(4096)
	if err == nil && bytes.Equal(data, compressible(4096)) {
		t.Fatal("wrong key reproduced the plaintext")
	}
}

func TestCodecTags(t *testing.T) {
	for _, tt := range []struct {
		name string
		tag  uint8
	}{
		{"zstd", TagZstd},
		{"lz4", TagLZ4},
	} {
		codec, err := ParseCodec(tt.name)
		if err != nil {
			t.Fatalf("ParseCodec(%q): %v", tt.name, err)
		}
		if codec.Tag() != tt.tag {
			t.Errorf("%s tag = %d, want %d", tt.name, codec.Tag(), tt.tag)
		}
		byTag, err := CodecForTag(tt.tag)
		if err != nil || byTag != codec {
			t.Errorf("CodecForTag(%d) = %v, %v", tt.tag, byTag, err)
		}
	}
	if _, err := CodecForTag(9); !errors.Is(err, fault.Format) {
		t.Errorf("CodecForTag(9) error = %v, want format", err)
	}
	if _, err := ParseCodec("gzip"); !errors.Is(err, fault.InvalidField) {
		t.Errorf("ParseCodec(gzip) error = %v, want invalid_field", err)
	}
}

func TestLZ4IncompressibleChunk(t *testing.T) {
	data := randomBytes(t, ChunkSize)
	compressed, err := LZ4.Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	restored, err := LZ4.Decompress(compressed, ChunkSize)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Error("incompressible chunk did not round-trip")
	}
	if len(compressed)+lengthSize > maxStoredChunk {
		t.Errorf("stored chunk of %d bytes exceeds bound %d", len(compressed), maxStoredChunk)
	}
}
