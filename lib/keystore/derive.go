// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"encoding/hex"
	"fmt"

	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/keyedhash"
)

// MaxIndex bounds the hash-chain positions this package will derive.
// Deriving index n costs n hashes per chain, and the index usually
// comes from an unauthenticated archive header or a media store.
const MaxIndex uint32 = 1 << 20

// CheckIndex rejects hash-chain positions beyond [MaxIndex].
func CheckIndex(index uint32) error {
	if index > MaxIndex {
		return fault.New(fault.InvalidField, "keystore.CheckIndex", "hash-chain index %d exceeds the limit %d", index, MaxIndex)
	}
	return nil
}

// Seeds are the provisioning constants the role keys derive from.
// Every instrument and both external tools share them; only the device
// identity differs between devices.
type Seeds struct {
	// Leica seeds the manufacturer service key.
	Leica []byte
	// Viewer seeds the viewer key and the fresh-device Import key.
	Viewer []byte
	// S0 salts the Import key.
	S0 []byte
	// S1 salts the cipher key derived from the Viewer key.
	S1 []byte
}

// DefaultSeeds returns the built-in provisioning constants.
func DefaultSeeds() Seeds {
	return Seeds{
		Leica:  mustHex("6c3a91f04e2db8571a09c6e3f2547d18b09e3a65"),
		Viewer: mustHex("a4e1073b9c56d2f8108e4b7a3fd09562c1b7e843"),
		S0:     mustHex("39d0b6e25a1f7c84"),
		S1:     mustHex("f17e2c5093ab48d6"),
	}
}

// Validate reports an error when any seed is empty.
func (s Seeds) Validate() error {
	seeds := []struct {
		name  string
		value []byte
	}{
		{"leica", s.Leica},
		{"viewer", s.Viewer},
		{"s0", s.S0},
		{"s1", s.S1},
	}
	for _, seed := range seeds {
		if len(seed.value) == 0 {
			return fmt.Errorf("seed %q is empty", seed.name)
		}
	}
	return nil
}

// FreshImportKey is the Import key a freshly provisioned device starts
// with: hash(seedViewer ‖ S0). It does not depend on the device, so any
// instrument can import configuration exported by another.
func FreshImportKey(seeds Seeds) Key {
	return Key(keyedhash.Sum(seeds.Viewer, seeds.S0))
}

// ChainKey returns hash(seed ‖ deviceID) re-hashed index more times:
// the Leica or Viewer key of deviceID at hash-chain position index.
// Callers taking index from outside the process check it with
// [CheckIndex] first.
func ChainKey(seed, deviceID []byte, index uint32) Key {
	key := Key(keyedhash.Sum(seed, deviceID))
	for range index {
		key = Key(keyedhash.Sum(key[:]))
	}
	return key
}

// DeriveRoleKeys computes the key material a device with deviceID
// holds at hash-chain position index, assuming it was provisioned from
// a fresh store. External tools use this to build the keys for an
// archive from the device identity in its name and the index in its
// header.
func DeriveRoleKeys(seeds Seeds, deviceID []byte, index uint32) Material {
	return Material{
		Leica:  ChainKey(seeds.Leica, deviceID, index),
		Viewer: ChainKey(seeds.Viewer, deviceID, index),
		Import: FreshImportKey(seeds),
		Index:  index,
	}
}

// CipherKey derives the 16-byte archive cipher key from a Viewer key:
// the leading bytes of hash(Viewer ‖ S1).
func CipherKey(viewer Key, seeds Seeds) [16]byte {
	digest := keyedhash.Sum(viewer[:], seeds.S1)
	var key [16]byte
	copy(key[:], digest[:16])
	return key
}

func mustHex(text string) []byte {
	data, err := hex.DecodeString(text)
	if err != nil {
		panic("keystore: invalid built-in seed: " + err.Error())
	}
	return data
}
