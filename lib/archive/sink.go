// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/safefile"
)

// Sink receives extracted entries. Read calls Create once per entry
// that passes the filter, writes exactly size bytes, then closes the
// writer. A Close error fails the read.
type Sink interface {
	Create(name string, size uint32) (io.WriteCloser, error)
}

// DiskSink writes entries as files under Dir, creating parent
// directories as needed. Names that are absolute or climb out of Dir
// are rejected.
type DiskSink struct {
	Dir string
}

// Create opens Dir/name for writing.
func (s DiskSink) Create(name string, size uint32) (io.WriteCloser, error) {
	relative := filepath.Clean(filepath.FromSlash(name))
	if relative == "." || filepath.IsAbs(relative) || relative == ".." ||
		strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return nil, fault.New(fault.InvalidField, "archive.DiskSink", "unsafe extraction path %q", name)
	}
	path := filepath.Join(s.Dir, relative)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fault.Wrap(fault.IO, "archive.DiskSink", err, "creating directory for %s", name)
	}
	return safefile.Create(path)
}

// MemorySink keeps extracted entries in memory. Safe for concurrent
// use.
type MemorySink struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte)}
}

// Create returns a writer that stores its bytes under name on Close.
func (s *MemorySink) Create(name string, size uint32) (io.WriteCloser, error) {
	writer := &memoryWriter{sink: s, name: name}
	writer.buffer.Grow(int(size))
	return writer, nil
}

// File returns the contents stored under name.
func (s *MemorySink) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

// Names returns the stored names in sorted order.
func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type memoryWriter struct {
	sink   *MemorySink
	name   string
	buffer bytes.Buffer
}

func (w *memoryWriter) Write(data []byte) (int, error) {
	return w.buffer.Write(data)
}

func (w *memoryWriter) Close() error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.files[w.name] = w.buffer.Bytes()
	return nil
}

// EntryInfo is an entry's name and declared size.
type EntryInfo struct {
	Name string `cbor:"name"`
	Size uint32 `cbor:"size"`
}

// NameSink records entry names and sizes and discards payloads.
type NameSink struct {
	mu      sync.Mutex
	entries []EntryInfo
}

// Create records the entry and returns a discarding writer.
func (s *NameSink) Create(name string, size uint32) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, EntryInfo{Name: name, Size: size})
	return nopCloser{io.Discard}, nil
}

// Entries returns the recorded entries in archive order.
func (s *NameSink) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Digest is a BLAKE3-256 digest of an entry's payload.
type Digest [32]byte

// String returns the hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(d) {
		return fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return nil
}

// DigestOf returns the BLAKE3-256 digest of data.
func DigestOf(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// EntryDigest is an entry's name, declared size, and payload digest.
type EntryDigest struct {
	Name   string `cbor:"name"`
	Size   uint32 `cbor:"size"`
	Digest Digest `cbor:"blake3"`
}

// DigestSink hashes each payload and records the result.
type DigestSink struct {
	mu      sync.Mutex
	entries []EntryDigest
}

// Create returns a hashing writer whose Close records the digest.
func (s *DigestSink) Create(name string, size uint32) (io.WriteCloser, error) {
	return &digestWriter{sink: s, name: name, size: size, hasher: blake3.New()}, nil
}

// Entries returns the recorded digests in archive order.
func (s *DigestSink) Entries() []EntryDigest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

type digestWriter struct {
	sink   *DigestSink
	name   string
	size   uint32
	hasher *blake3.Hasher
}

func (w *digestWriter) Write(data []byte) (int, error) {
	return w.hasher.Write(data)
}

func (w *digestWriter) Close() error {
	var digest Digest
	copy(digest[:], w.hasher.Sum(nil))
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.entries = append(w.sink.entries, EntryDigest{Name: w.name, Size: w.size, Digest: digest})
	return nil
}
