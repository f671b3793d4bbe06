// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package safefile wraps an *os.File with fail-fast error reporting.
//
// Every failure is returned as a [fault.Error] naming the file path, so
// the archive layers can propagate I/O errors without decorating them
// again. Short writes are errors, and [File.ReadFull] loops until the
// buffer is filled or reports [fault.Truncated].
package safefile

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/labinstrument/xfer/lib/fault"
)

// File is an open file with fail-fast reads and writes. Close is
// idempotent so callers can defer it and still close explicitly on
// the success path to observe the error.
type File struct {
	file   *os.File
	path   string
	closed bool
}

// Create creates or truncates the file at path with mode 0600.
func Create(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fault.Wrap(fault.IO, path, err, "creating file")
	}
	return &File{file: file, path: path}, nil
}

// CreateExclusive creates the file at path with mode 0600 and fails
// if anything already exists there.
func CreateExclusive(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fault.Wrap(fault.IO, path, err, "creating file")
	}
	return &File{file: file, path: path}, nil
}

// Publish renames the closed file at temporaryPath to path and flushes
// the parent directory. It refuses to replace an existing path.
func Publish(temporaryPath, path string) error {
	if _, err := os.Lstat(path); err == nil {
		return fault.Wrap(fault.IO, path, os.ErrExist, "publishing file")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fault.Wrap(fault.IO, path, err, "publishing file")
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fault.Wrap(fault.IO, path, err, "renaming into place")
	}
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Open opens the file at path for reading.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.IO, path, err, "opening file")
	}
	return &File{file: file, path: path}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Size returns the current length of the file.
func (f *File) Size() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, fault.Wrap(fault.IO, f.path, err, "stat")
	}
	return info.Size(), nil
}

// Write writes all of data or fails.
func (f *File) Write(data []byte) (int, error) {
	written, err := f.file.Write(data)
	if err != nil {
		return written, fault.Wrap(fault.IO, f.path, err, "writing %d bytes", len(data))
	}
	if written != len(data) {
		return written, fault.New(fault.IO, f.path, "short write: %d of %d bytes", written, len(data))
	}
	return written, nil
}

// Read implements io.Reader. It returns io.EOF unwrapped so the file
// composes with standard readers; other failures are fault.IO.
func (f *File) Read(buffer []byte) (int, error) {
	read, err := f.file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return read, fault.Wrap(fault.IO, f.path, err, "reading")
	}
	return read, err
}

// ReadFull fills buffer completely. Reaching end of file first is
// fault.Truncated.
func (f *File) ReadFull(buffer []byte) error {
	read, err := io.ReadFull(f.file, buffer)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fault.New(fault.Truncated, f.path, "end of file after %d of %d bytes", read, len(buffer))
	}
	return fault.Wrap(fault.IO, f.path, err, "reading %d bytes", len(buffer))
}

// Sync commits the file's contents to stable storage.
func (f *File) Sync() error {
	return fault.Wrap(fault.IO, f.path, f.file.Sync(), "syncing")
}

// Close closes the file. Calls after the first return nil.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return fault.Wrap(fault.IO, f.path, f.file.Close(), "closing")
}
