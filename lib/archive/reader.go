// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/chunkstream"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/keyedhash"
	"github.com/labinstrument/xfer/lib/keystore"
	"github.com/labinstrument/xfer/lib/safefile"
	"github.com/labinstrument/xfer/lib/session"
)

// ReadRequest describes one archive to read.
type ReadRequest struct {
	// Path is the archive file. Its base name must equal the name
	// stored in the header.
	Path string

	// Role selects which of the three stored HMACs is verified.
	Role keystore.Role

	// Filter selects entries for the sink. Nil extracts everything.
	Filter *Filter

	// Sink receives selected entries. Nil reads and authenticates
	// without extracting.
	Sink Sink

	// Session configures the session manager. Set Session.Keys to read
	// with externally derived keys; leave it nil to use the device's
	// own stores. In device-local mode an empty Session.DeviceID is
	// taken from the archive name.
	Session session.Options
}

// ReadResult summarizes a completed read.
type ReadResult struct {
	Header Header

	// Entries counts entries authenticated; Extracted counts those
	// delivered to the sink.
	Entries   int
	Extracted int
}

// Read authenticates the archive at request.Path with the role's key
// and extracts the selected entries into the sink.
//
// Every entry is read in full and authenticated whether or not the
// filter selects it. An entry's payload reaches the sink before its
// HMAC is verified, so a sink must treat its output as unverified
// until Read returns without error.
func Read(request ReadRequest) (*ReadResult, error) {
	logger := request.Session.Logger
	if logger == nil {
		logger = slog.Default()
	}
	role := request.Role
	if int(role) >= len(keystore.Roles) {
		return nil, fault.New(fault.InvalidField, "archive.Read", "role %d", role)
	}

	file, err := safefile.Open(request.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	options := request.Session
	options.Logger = logger
	if options.Keys == nil && len(options.DeviceID) == 0 {
		deviceID, err := DeviceID(filepath.Base(request.Path))
		if err != nil {
			return nil, err
		}
		options.DeviceID = deviceID
	}
	manager, err := session.New(options)
	if err != nil {
		return nil, err
	}
	defer manager.Close()

	header, fields, err := readHeader(file)
	if err != nil {
		return nil, err
	}
	if expected := filepath.Base(request.Path); header.Name != expected {
		return nil, fault.New(fault.InvalidField, "archive.Read", "stored name %q does not match %q", header.Name, expected)
	}
	codec, err := chunkstream.CodecForTag(header.FormatVersion)
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
	if !keyedhash.Equal(digests[role].Truncated(), header.MACs[role]) {
		return nil, fault.New(fault.Integrity, "archive.Read", "header HMAC mismatch for role %s", role)
	}

	readerOptions := chunkstream.ReaderOptions{Auth: manager, Codec: codec}
	if header.Encrypted {
		if err := manager.InitCipher(); err != nil {
			return nil, err
		}
		readerOptions.Cipher = manager
	}
	chunks := chunkstream.NewReader(file, readerOptions)

	result := &ReadResult{Header: header}
	for {
		done, extracted, err := readEntry(chunks, manager, request, result.Entries+1)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		result.Entries++
		if extracted {
			result.Extracted++
		}
	}

	if result.Entries != int(header.EntryCount) {
		return nil, fault.New(fault.CountMismatch, "archive.Read",
			"header declares %d entries, archive holds %d", header.EntryCount, result.Entries)
	}
	logger.Info("read archive",
		"archive", request.Path,
		"role", role.String(),
		"entries", result.Entries,
		"extracted", result.Extracted,
		"hash_chain_index", header.HashChainIndex)
	return result, nil
}

// readEntry reads entry number index. It reports done when it finds
// the terminator instead.
func readEntry(chunks *chunkstream.Reader, manager *session.Manager, request ReadRequest, index int) (done, extracted bool, err error) {
	manager.InitHMACs()
	if err := manager.UpdateHMACs(beint.Append16(nil, uint16(index))); err != nil {
		return false, false, err
	}

	magicBytes, err := chunks.NextRaw(4)
	if err != nil {
		return false, false, err
	}
	magic := beint.Uint32(magicBytes)
	if magic == 0 {
		return true, false, nil
	}
	if magic != EntryMagic {
		return false, false, fault.New(fault.Format, "archive.Read", "entry %d magic %#08x, want %#08x", index, magic, EntryMagic)
	}
	if err := manager.UpdateHMACs(magicBytes); err != nil {
		return false, false, err
	}

	lengthBytes, err := chunks.Next(2)
	if err != nil {
		return false, false, err
	}
	nameBytes, err := chunks.Next(int(beint.Uint16(lengthBytes)))
	if err != nil {
		return false, false, err
	}
	name := string(nameBytes)
	sizeBytes, err := chunks.Next(4)
	if err != nil {
		return false, false, err
	}
	size := beint.Uint32(sizeBytes)

	// Entry names are base names. Anything else cannot have come from
	// the writer and must not steer a disk sink.
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false, false, fault.New(fault.InvalidField, "archive.Read", "entry %d has unsafe name %q", index, name)
	}

	if request.Sink != nil && request.Filter.Match(name) {
		output, err := request.Sink.Create(request.Filter.Target(name), size)
		if err != nil {
			return false, false, err
		}
		err = chunks.CopyN(output, int64(size))
		closeErr := output.Close()
		if err != nil {
			return false, false, err
		}
		if closeErr != nil {
			return false, false, fault.Wrap(fault.IO, "archive.Read", closeErr, "closing extracted %s", name)
		}
		extracted = true
	} else if err := chunks.CopyN(nil, int64(size)); err != nil {
		return false, false, err
	}

	digests, err := manager.HMACs()
	if err != nil {
		return false, false, err
	}
	stored, err := chunks.NextRaw(macBlockSize)
	if err != nil {
		return false, false, err
	}
	role := request.Role
	if !keyedhash.Equal(digests[role].Truncated(), parseMACs(stored)[role]) {
		return false, false, fault.New(fault.Integrity, "archive.Read", "entry %d (%s) HMAC mismatch for role %s", index, name, role)
	}
	return false, extracted, nil
}

// ReadHeader parses the plaintext header of the archive at path
// without authenticating it. The result is for diagnostics only.
func ReadHeader(path string) (Header, error) {
	file, err := safefile.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer file.Close()
	header, _, err := readHeader(file)
	return header, err
}
