// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package session manages the keys, HMAC state, cipher, and hash-chain
// commit of one archive operation.
//
// A [Manager] is built fresh for each archive read or write and closed
// when the operation ends; it is never reused. It works in one of two
// modes:
//
//   - Supplied keys ([Options].Keys set): an external tool (Viewer,
//     Leica) passes the key material it derived. The keys and index are
//     used as given and no store is touched.
//   - Device-local ([Options].Keys nil): the material is loaded from
//     the device's local store, its index is reconciled with the index
//     on the removable medium, and fresh or reset stores are
//     provisioned from the device identity.
//
// Only one Manager may be live per process. The [Lease] passed in
// [Options] enforces this.
//
// [Manager.StepHashChain] is the single commit point of a write. Call
// it only after the archive, terminator included, is flushed and
// synced: once both stores advance, readers expect the next archive
// under the rotated keys.
package session

import (
	"log/slog"

	"github.com/labinstrument/xfer/lib/ctrstream"
	"github.com/labinstrument/xfer/lib/fault"
	"github.com/labinstrument/xfer/lib/keyedhash"
	"github.com/labinstrument/xfer/lib/keystore"
	"github.com/labinstrument/xfer/lib/secret"
)

// Options configures a Manager.
type Options struct {
	// Lease is the process-wide exclusivity lease. Required.
	Lease *Lease

	// DeviceID is the device identity used to provision keys for a
	// fresh or reset local store. Required in device-local mode.
	DeviceID []byte

	// Keys selects supplied-keys mode when non-nil.
	Keys *keystore.Material

	// Local and Media are the device-local and removable-media stores.
	// Required in device-local mode, ignored otherwise.
	Local keystore.LocalStore
	Media keystore.MediaStore

	// Seeds are the provisioning constants. The zero value selects
	// keystore.DefaultSeeds().
	Seeds keystore.Seeds

	// Logger receives provisioning and reconciliation events. Nil
	// selects slog.Default().
	Logger *slog.Logger
}

// Manager owns the key material and HMAC state of one archive
// operation.
type Manager struct {
	lease    *Lease
	keys     *secret.Buffer
	supplied bool
	local    keystore.LocalStore
	media    keystore.MediaStore
	seeds    keystore.Seeds
	logger   *slog.Logger

	macs      [3]*keyedhash.HMAC
	finalized bool
	cipher    *ctrstream.Stream
	closed    bool
}

// New acquires the lease and prepares the key material. In device-local
// mode this loads and reconciles both stores. The HMACs are armed on
// return. The caller must Close the Manager on every path.
func New(options Options) (*Manager, error) {
	if options.Lease == nil {
		return nil, fault.New(fault.Misuse, "session.New", "lease is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seeds := options.Seeds
	if seeds.Leica == nil && seeds.Viewer == nil && seeds.S0 == nil && seeds.S1 == nil {
		seeds = keystore.DefaultSeeds()
	}
	if err := seeds.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidField, "session.New", err, "provisioning seeds")
	}

	holder := "device-local"
	if options.Keys != nil {
		holder = "supplied keys"
	}
	if err := options.Lease.acquire(holder); err != nil {
		return nil, err
	}

	manager := &Manager{
		lease:    options.Lease,
		supplied: options.Keys != nil,
		local:    options.Local,
		media:    options.Media,
		seeds:    seeds,
		logger:   logger,
	}

	var material keystore.Material
	if options.Keys != nil {
		material = *options.Keys
	} else {
		loaded, err := manager.reconcile(options.DeviceID)
		if err != nil {
			manager.lease.release()
			return nil, err
		}
		material = loaded
	}

	data, _ := material.MarshalBinary()
	keys, err := secret.NewFromBytes(data)
	if err != nil {
		manager.lease.release()
		return nil, fault.Wrap(fault.IO, "session.New", err, "protecting key material")
	}
	manager.keys = keys
	manager.InitHMACs()
	return manager, nil
}

// reconcile loads the local material and media index and applies the
// provisioning rules.
func (m *Manager) reconcile(deviceID []byte) (keystore.Material, error) {
	if m.local == nil || m.media == nil {
		return keystore.Material{}, fault.New(fault.Misuse, "session.New", "device-local mode requires both key stores")
	}

	material, err := m.local.Load()
	if err != nil {
		return keystore.Material{}, err
	}
	mediaIndex, err := m.media.LoadIndex()
	if err != nil {
		return keystore.Material{}, err
	}
	localIndex := material.Index

	switch {
	case localIndex == 0 && mediaIndex == 0:
		if len(deviceID) == 0 {
			return keystore.Material{}, fault.New(fault.InvalidField, "session.New", "device identity required to provision keys")
		}
		material = keystore.Material{
			Leica:  keystore.ChainKey(m.seeds.Leica, deviceID, 0),
			Viewer: keystore.ChainKey(m.seeds.Viewer, deviceID, 0),
			Import: keystore.FreshImportKey(m.seeds),
		}
		if err := m.local.Save(material); err != nil {
			return keystore.Material{}, err
		}
		m.logger.Info("provisioned key material for fresh device")

	case localIndex == 0:
		if len(deviceID) == 0 {
			return keystore.Material{}, fault.New(fault.InvalidField, "session.New", "device identity required to restore keys")
		}
		if err := keystore.CheckIndex(mediaIndex); err != nil {
			return keystore.Material{}, fault.Wrap(fault.InvalidField, "session.New", err, "restoring from media key index")
		}
		// The local store was reset while the medium kept advancing.
		// Rebuild the chain up to the medium's position.
		material = keystore.Material{
			Leica:  keystore.ChainKey(m.seeds.Leica, deviceID, mediaIndex),
			Viewer: keystore.ChainKey(m.seeds.Viewer, deviceID, mediaIndex),
			Import: keystore.Key(keyedhash.Sum(material.Import[:], m.seeds.S0)),
			Index:  mediaIndex,
		}
		if err := m.local.Save(material); err != nil {
			return keystore.Material{}, err
		}
		m.logger.Warn("restored local key material from removable media index",
			"hash_chain_index", mediaIndex)

	case mediaIndex == localIndex:
		// Steady state.

	case mediaIndex == 0:
		m.logger.Warn("removable media carries no key index, keeping local keys",
			"hash_chain_index", localIndex)

	default:
		conflict := fault.New(fault.KeyConflict, "session.New",
			"local index %d disagrees with media index %d", localIndex, mediaIndex)
		m.logger.Error("key store conflict left unresolved, using local keys",
			"local_index", localIndex,
			"media_index", mediaIndex,
			"error", conflict)
	}
	return material, nil
}

// material decodes the guarded key material into a temporary copy.
func (m *Manager) material() keystore.Material {
	var material keystore.Material
	material.UnmarshalBinary(m.keys.Bytes())
	return material
}

// keyBytes returns the slice of guarded memory holding role's key.
func (m *Manager) keyBytes(role keystore.Role) []byte {
	offset := int(role) * keystore.KeySize
	return m.keys.Bytes()[offset : offset+keystore.KeySize]
}

// Material returns a copy of the current key material.
func (m *Manager) Material() keystore.Material {
	return m.material()
}

// Index returns the current hash-chain index.
func (m *Manager) Index() uint32 {
	return m.material().Index
}

// InitHMACs discards the current HMAC state and arms fresh instances,
// one per role.
func (m *Manager) InitHMACs() {
	for _, role := range keystore.Roles {
		m.macs[role] = keyedhash.New(m.keyBytes(role))
	}
	m.finalized = false
}

// UpdateHMACs feeds data into all three HMACs. It fails once the HMACs
// are finalized until InitHMACs re-arms them.
func (m *Manager) UpdateHMACs(data []byte) error {
	if m.finalized {
		return fault.New(fault.Misuse, "session.UpdateHMACs", "HMACs already finalized")
	}
	for _, mac := range m.macs {
		if _, err := mac.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// HMACs finalizes and returns the three digests in role order.
func (m *Manager) HMACs() ([3]keyedhash.Digest, error) {
	var digests [3]keyedhash.Digest
	if m.finalized {
		return digests, fault.New(fault.Misuse, "session.HMACs", "HMACs already finalized")
	}
	m.finalized = true
	for index, mac := range m.macs {
		digest, err := mac.Sum()
		if err != nil {
			return digests, err
		}
		digests[index] = digest
	}
	return digests, nil
}

// InitCipher derives the archive cipher key from the Viewer key and
// starts the keystream at position zero.
func (m *Manager) InitCipher() error {
	var viewer keystore.Key
	copy(viewer[:], m.keyBytes(keystore.Viewer))
	key := keystore.CipherKey(viewer, m.seeds)
	stream, err := ctrstream.New(key[:])
	secret.Zero(key[:])
	secret.Zero(viewer[:])
	if err != nil {
		return fault.Wrap(fault.Misuse, "session.InitCipher", err, "creating cipher")
	}
	m.cipher = stream
	return nil
}

// EncryptInPlace applies the keystream to buffer, continuing from where
// the previous call stopped. Decryption is the same operation.
func (m *Manager) EncryptInPlace(buffer []byte) error {
	if m.cipher == nil {
		return fault.New(fault.Misuse, "session.EncryptInPlace", "cipher not initialized")
	}
	m.cipher.XORInPlace(buffer)
	return nil
}

// StepHashChain advances Leica and Viewer one position and increments
// the index. In device-local mode the local store is saved first, then
// the media index.
func (m *Manager) StepHashChain() error {
	material := m.material()
	material.Step()
	data, _ := material.MarshalBinary()
	copy(m.keys.Bytes(), data)
	secret.Zero(data)

	if m.supplied {
		return nil
	}
	if err := m.local.Save(material); err != nil {
		return err
	}
	if err := m.media.SaveIndex(material.Index); err != nil {
		return err
	}
	m.logger.Info("advanced key hash chain", "hash_chain_index", material.Index)
	return nil
}

// Close zeroes the key material and releases the lease. Idempotent.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.cipher = nil
	err := m.keys.Close()
	m.lease.release()
	return err
}
