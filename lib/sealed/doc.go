// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed escrows key material with age encryption.
//
// A device's 64-byte key material is the only way to authenticate its
// archives. Service staff escrow it to an age x25519 recipient so a
// replacement controller board can be restored, and the service tool
// receives keys derived for one device and index the same way rather
// than as plaintext files. Sealed output is ASCII-armored so it can be
// pasted into a service ticket.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [SealMaterial] -- encrypt keystore.Material to recipients
//   - [OpenMaterial] -- decrypt with a secret.Buffer identity
//   - [ParsePublicKey] -- recipient validation
//
// Private keys and decrypted material live in [secret.Buffer] values
// only.
package sealed
