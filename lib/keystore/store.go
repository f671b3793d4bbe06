// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/safefile"
)

// LocalStore persists the full key material on the device.
type LocalStore interface {
	// Load returns the stored material. A store that was never written
	// loads as the zero Material.
	Load() (Material, error)
	// Save durably replaces the stored material.
	Save(Material) error
}

// MediaStore persists the hash-chain index on removable media.
type MediaStore interface {
	// LoadIndex returns the stored index, or 0 when the store was
	// never written.
	LoadIndex() (uint32, error)
	// SaveIndex durably replaces the stored index.
	SaveIndex(uint32) error
}

// FileLocalStore keeps the 64-byte key material in one file.
type FileLocalStore struct {
	Path string
}

// Load reads the key material from Path.
func (s FileLocalStore) Load() (Material, error) {
	var material Material
	data, err := readExact(s.Path, MaterialSize)
	if err != nil || data == nil {
		return material, err
	}
	if err := material.UnmarshalBinary(data); err != nil {
		return Material{}, err
	}
	return material, nil
}

// Save writes the key material to Path atomically.
func (s FileLocalStore) Save(material Material) error {
	data, _ := material.MarshalBinary()
	return writeAtomic(s.Path, data)
}

// FileMediaStore keeps the 4-byte hash-chain index in one file on the
// removable medium.
type FileMediaStore struct {
	Path string
}

// LoadIndex reads the index from Path.
func (s FileMediaStore) LoadIndex() (uint32, error) {
	data, err := readExact(s.Path, IndexSize)
	if err != nil || data == nil {
		return 0, err
	}
	return beint.Uint32(data), nil
}

// SaveIndex writes the index to Path atomically.
func (s FileMediaStore) SaveIndex(index uint32) error {
	return writeAtomic(s.Path, beint.Append32(nil, index))
}

// readExact reads a store file that must be exactly size bytes. A
// missing file returns (nil, nil).
func readExact(path string, size int) ([]byte, error) {
	file, err := safefile.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data := make([]byte, size)
	if err := file.ReadFull(data); err != nil {
		if errors.Is(err, fault.Truncated) {
			return nil, fault.New(fault.InvalidField, path, "key store shorter than %d bytes", size)
		}
		return nil, err
	}

	var extra [1]byte
	read, err := file.Read(extra[:])
	if read > 0 {
		return nil, fault.New(fault.InvalidField, path, "key store longer than %d bytes", size)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

// writeAtomic writes data to a temporary file beside path, fsyncs it,
// renames it into place, and fsyncs the directory. Readers see either
// the old contents or the new, never a partial write.
func writeAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := safefile.Create(temporaryPath)
	if err != nil {
		return err
	}

	// Write, sync, close in that order. On any failure remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return err
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fault.Wrap(fault.IO, path, err, "renaming key store into place")
	}

	// The rename is only durable once the directory entry is flushed.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
