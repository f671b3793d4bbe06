// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore holds the key material that authenticates and
// encrypts transfer archives, the rules that derive it, and the two
// stores that persist it.
//
// A device owns three 20-byte role keys, one per consumer of its
// archives ([Leica], [Viewer], [Import]), plus a hash-chain index.
// Each successful archive write advances the chain: the Leica and
// Viewer keys are replaced by their own hash and the index increments
// ([Material.Step]). External tools recompute the keys for any index
// from the shared [Seeds] and the device identity ([DeriveRoleKeys]).
//
// Persistence is split across two stores that must agree:
//
//   - [LocalStore] on the device holds all 64 bytes
//     (Leica ‖ Viewer ‖ Import ‖ index).
//   - [MediaStore] on the removable medium holds only the 4-byte index.
//
// The file-backed implementations write atomically (temporary file,
// fsync, rename, directory fsync). Reconciling the two indices is the
// session manager's job (lib/session).
package keystore
