// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"fmt"
	"strings"

	"github.com/labinstrument/xfer/lib/beint"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/keyedhash"
)

// KeySize is the length of each role key.
const KeySize = keyedhash.Size

// MaterialSize is the serialized KeyMaterial length: three role keys
// followed by the 4-byte hash-chain index.
const MaterialSize = 3*KeySize + 4

// IndexSize is the serialized length of a hash-chain index, which is
// all the removable-media store holds.
const IndexSize = 4

// Role identifies one of the three consumers that authenticate an
// archive. The numeric values are the HMAC slot order in the archive
// format and the key order in the local store.
type Role uint8

const (
	// Leica is the manufacturer service tool.
	Leica Role = iota
	// Viewer is the customer-side viewer. Its key also derives the
	// archive cipher key.
	Viewer
	// Import is the instrument itself restoring configuration.
	Import
)

// Roles lists every role in slot order.
var Roles = [3]Role{Leica, Viewer, Import}

// String returns the role name as it appears in the archive protocol.
func (role Role) String() string {
	switch role {
	case Leica:
		return "Leica"
	case Viewer:
		return "Viewer"
	case Import:
		return "Import"
	default:
		return fmt.Sprintf("Role(%d)", uint8(role))
	}
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(name string) (Role, error) {
	for _, role := range Roles {
		if strings.EqualFold(name, role.String()) {
			return role, nil
		}
	}
	return 0, fault.New(fault.InvalidField, "keystore.ParseRole", "unknown role %q (want Leica, Viewer, or Import)", name)
}

// Key is one 20-byte role key.
type Key [KeySize]byte

// Material is the complete key state of a device: the three role keys
// and the current hash-chain index.
type Material struct {
	Leica  Key
	Viewer Key
	Import Key
	Index  uint32
}

// Key returns the key for role.
func (m *Material) Key(role Role) Key {
	switch role {
	case Leica:
		return m.Leica
	case Viewer:
		return m.Viewer
	default:
		return m.Import
	}
}

// MarshalBinary returns the 64-byte store layout:
// Leica ‖ Viewer ‖ Import ‖ index (big-endian).
func (m *Material) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, MaterialSize)
	data = append(data, m.Leica[:]...)
	data = append(data, m.Viewer[:]...)
	data = append(data, m.Import[:]...)
	data = beint.Append32(data, m.Index)
	return data, nil
}

// UnmarshalBinary parses the 64-byte store layout.
func (m *Material) UnmarshalBinary(data []byte) error {
	if len(data) != MaterialSize {
		return fault.New(fault.InvalidField, "keystore.Material", "key material is %d bytes, want %d", len(data), MaterialSize)
	}
	copy(m.Leica[:], data[0:KeySize])
	copy(m.Viewer[:], data[KeySize:2*KeySize])
	copy(m.Import[:], data[2*KeySize:3*KeySize])
	m.Index = beint.Uint32(data[3*KeySize:])
	return nil
}

// Step advances the hash chain by one: Leica and Viewer are replaced
// by their own hash and the index increments. Import does not rotate.
func (m *Material) Step() {
	m.Leica = Key(keyedhash.Sum(m.Leica[:]))
	m.Viewer = Key(keyedhash.Sum(m.Viewer[:]))
	m.Index++
}
