// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/labinstrument/xfer/lib/clock"
	"github.com/labinstrument/xfer/lib/fault"
)

// TimestampLayout is the compact ISO 8601 form used in archive names.
const TimestampLayout = "20060102T150405"

// DefaultExtension is the file extension of archives named by
// FormatName.
const DefaultExtension = "lxa"

// Name is a parsed archive file name:
//
//	<product>_<kind>_<device>_<timestamp>.<extension>
type Name struct {
	Product   string
	Kind      string
	Device    string
	Time      time.Time
	Extension string
}

// String formats the name.
func (n Name) String() string {
	return n.Product + "_" + n.Kind + "_" + n.Device + "_" +
		n.Time.UTC().Format(TimestampLayout) + "." + n.Extension
}

// FormatName builds an archive name for device stamped with the
// current time of c, in UTC. Fields must be non-empty and must not
// contain underscores, dots, or path separators.
func FormatName(c clock.Clock, product, kind, device string) (string, error) {
	for _, field := range []struct{ label, value string }{
		{"product", product},
		{"kind", kind},
		{"device", device},
	} {
		if field.value == "" || strings.ContainsAny(field.value, "_./\\") {
			return "", fault.New(fault.InvalidField, "archive.FormatName",
				"%s %q must be non-empty without '_', '.', or path separators", field.label, field.value)
		}
	}
	name := Name{
		Product:   product,
		Kind:      kind,
		Device:    device,
		Time:      c.Now(),
		Extension: DefaultExtension,
	}
	return name.String(), nil
}

// ParseName splits a base archive name into its fields. A directory
// component is stripped first.
func ParseName(name string) (Name, error) {
	base := filepath.Base(name)
	stem, extension, found := strings.Cut(base, ".")
	if !found || extension == "" {
		return Name{}, fault.New(fault.InvalidField, "archive.ParseName", "%q has no extension", base)
	}
	fields := strings.Split(stem, "_")
	if len(fields) != 4 {
		return Name{}, fault.New(fault.InvalidField, "archive.ParseName",
			"%q has %d underscore fields, want 4", base, len(fields))
	}
	for index, field := range fields {
		if field == "" {
			return Name{}, fault.New(fault.InvalidField, "archive.ParseName", "%q field %d is empty", base, index)
		}
	}
	timestamp, err := time.Parse(TimestampLayout, fields[3])
	if err != nil {
		return Name{}, fault.Wrap(fault.InvalidField, "archive.ParseName", err, "%q timestamp", base)
	}
	return Name{
		Product:   fields[0],
		Kind:      fields[1],
		Device:    fields[2],
		Time:      timestamp,
		Extension: extension,
	}, nil
}

// DeviceID returns underscore field 2 of name exactly as written,
// which is how the writer and the device-local reader find the device
// identity for key provisioning. Unlike ParseName it does not strip a
// directory or validate the other fields.
func DeviceID(name string) ([]byte, error) {
	fields := strings.Split(name, "_")
	if len(fields) < 3 || fields[2] == "" {
		return nil, fault.New(fault.InvalidField, "archive", "name %q carries no device identity", name)
	}
	return []byte(fields[2]), nil
}
