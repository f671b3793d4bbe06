// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/chunkstream"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/safefile"
	"github.com/labinstrument/xfer/lib/session"
)

// WriteRequest describes one archive to write.
type WriteRequest struct {
	// Name is stored verbatim in the header and names the output file.
	// It should be a bare name: readers compare the stored name against
	// the base name of the path they open, so a name carrying a
	// directory never validates.
	Name string

	// Dir is the directory the archive is created in. Empty means the
	// current directory.
	Dir string

	// Paths are the source files, one entry each, in archive order.
	Paths []string

	FileVersion uint16
	Encrypt     bool

	// Codec compresses the entries section. Nil selects zstd.
	Codec chunkstream.Codec

	// Session configures the session manager. Write fills in DeviceID
	// from Name.
	Session session.Options
}

// WriteResult summarizes a completed write.
type WriteResult struct {
	// Path is the archive file created.
	Path string

	// HashChainIndex is the index the archive was written under.
	HashChainIndex uint32

	// Written counts entries stored; Skipped counts sources that could
	// not be opened.
	Written int
	Skipped []string
}

// Write creates the archive described by request and advances the
// key hash chain once the archive is durably on disk.
//
// A source that cannot be opened is logged and skipped. The header
// still declares every requested path, so the archive then fails the
// reader's entry count check.
//
// An existing file at the target path is never replaced or removed.
func Write(request WriteRequest) (*WriteResult, error) {
	logger := request.Session.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codec := request.Codec
	if codec == nil {
		codec = chunkstream.Zstd
	}
	if len(request.Paths) > math.MaxUint16 {
		return nil, fault.New(fault.InvalidField, "archive.Write", "%d sources exceed the entry limit %d", len(request.Paths), math.MaxUint16)
	}

	seen := make(map[string]string, len(request.Paths))
	for _, source := range request.Paths {
		base := filepath.Base(source)
		if previous, ok := seen[base]; ok {
			return nil, fault.New(fault.DuplicateName, "archive.Write", "%s and %s share the name %q", previous, source, base)
		}
		seen[base] = source
	}

	deviceID, err := DeviceID(request.Name)
	if err != nil {
		return nil, err
	}

	options := request.Session
	options.DeviceID = deviceID
	options.Logger = logger
	manager, err := session.New(options)
	if err != nil {
		return nil, err
	}
	defer manager.Close()

	// The archive is built beside its target and renamed into place on
	// commit. A failed write only ever removes the file it created.
	path := filepath.Join(request.Dir, request.Name)
	if _, err := os.Lstat(path); err == nil {
		return nil, fault.Wrap(fault.IO, path, os.ErrExist, "archive already exists")
	}
	temporaryPath := path + ".partial"
	file, err := safefile.CreateExclusive(temporaryPath)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		file.Close()
		if !committed {
			os.Remove(temporaryPath)
		}
	}()

	header := Header{
		FileVersion:    request.FileVersion,
		FormatVersion:  codec.Tag(),
		Encrypted:      request.Encrypt,
		KeyVersion:     KeyVersion,
		HashChainIndex: manager.Index(),
		EntryCount:     uint16(len(request.Paths)),
		Name:           request.Name,
	}
	fields, err := header.fields()
	if err != nil {
		return nil, err
	}
	if err := manager.UpdateHMACs(fields); err != nil {
		return nil, err
	}
	digests, err := manager.HMACs()
	if err != nil {
		return nil, err
	}
	if _, err := file.Write(fields); err != nil {
		return nil, err
	}
	if _, err := file.Write(truncateAll(digests).bytes()); err != nil {
		return nil, err
	}

	writerOptions := chunkstream.WriterOptions{Auth: manager, Codec: codec}
	if request.Encrypt {
		if err := manager.InitCipher(); err != nil {
			return nil, err
		}
		writerOptions.Cipher = manager
	}
	chunks := chunkstream.NewWriter(file, writerOptions)
	defer chunks.Close()

	result := &WriteResult{Path: path, HashChainIndex: header.HashChainIndex}
	for _, source := range request.Paths {
		input, err := safefile.Open(source)
		if err != nil {
			logger.Error("skipping unreadable archive source",
				"archive", request.Name,
				"source", source,
				"error", err)
			result.Skipped = append(result.Skipped, source)
			continue
		}
		err = writeEntry(chunks, manager, input, uint16(result.Written+1))
		input.Close()
		if err != nil {
			return nil, err
		}
		result.Written++
	}

	if err := chunks.WriteRaw(make([]byte, 4)); err != nil {
		return nil, err
	}
	if err := chunks.Close(); err != nil {
		return nil, err
	}
	if err := file.Sync(); err != nil {
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	if err := safefile.Publish(temporaryPath, path); err != nil {
		return nil, err
	}
	committed = true

	if err := manager.StepHashChain(); err != nil {
		return nil, err
	}
	logger.Info("wrote archive",
		"archive", path,
		"entries", result.Written,
		"skipped", len(result.Skipped),
		"encrypted", request.Encrypt,
		"hash_chain_index", header.HashChainIndex)
	return result, nil
}

// writeEntry streams one opened source through chunks as entry number
// index.
func writeEntry(chunks *chunkstream.Writer, manager *session.Manager, input *safefile.File, index uint16) error {
	source := input.Path()
	size, err := input.Size()
	if err != nil {
		return err
	}
	if size > math.MaxUint32 {
		return fault.New(fault.InvalidField, source, "%d bytes exceed the entry size limit", size)
	}
	name := filepath.Base(source)
	if len(name) > math.MaxUint16 {
		return fault.New(fault.InvalidField, source, "entry name is %d bytes", len(name))
	}

	manager.InitHMACs()
	if err := manager.UpdateHMACs(beint.Append16(nil, index)); err != nil {
		return err
	}

	entry := beint.Append32(nil, EntryMagic)
	entry = beint.Append16(entry, uint16(len(name)))
	entry = append(entry, name...)
	entry = beint.Append32(entry, uint32(size))
	if _, err := chunks.Write(entry); err != nil {
		return err
	}
	copied, err := io.CopyN(chunks, input, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fault.New(fault.Truncated, source, "source shrank to %d of %d bytes while archiving", copied, size)
		}
		return err
	}

	digests, err := manager.HMACs()
	if err != nil {
		return err
	}
	return chunks.WriteRaw(truncateAll(digests).bytes())
}
