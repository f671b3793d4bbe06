// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/labinstrument/xfer/lib/keystore"
	"github.com/labinstrument/xfer/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key is stored in a
// secret.Buffer; the public key is safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding recipient in age1... format.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// age returns the key as a string; the heap copy is unavoidable.
	// NewFromBytes zeroes the byte copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// SealMaterial encrypts material to one or more age recipients and
// returns the armored ciphertext.
func SealMaterial(material keystore.Material, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	plaintext, _ := material.MarshalBinary()
	defer secret.Zero(plaintext)

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing key material to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return output.Bytes(), nil
}

// OpenMaterial decrypts armored key material with privateKey. The
// private key is borrowed, not closed. The decrypted bytes are held
// in a secret.Buffer until decoded.
func OpenMaterial(sealed []byte, privateKey *secret.Buffer) (keystore.Material, error) {
	identity, err := age.ParseX25519Identity(string(privateKey.Bytes()))
	if err != nil {
		return keystore.Material{}, fmt.Errorf("parsing private key: %w", err)
	}

	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(sealed)), identity)
	if err != nil {
		return keystore.Material{}, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := secret.New(keystore.MaterialSize)
	if err != nil {
		return keystore.Material{}, fmt.Errorf("protecting key material: %w", err)
	}
	defer plaintext.Close()
	if _, err := io.ReadFull(reader, plaintext.Bytes()); err != nil {
		return keystore.Material{}, fmt.Errorf("reading decrypted key material: %w", err)
	}
	var extra [1]byte
	if n, _ := reader.Read(extra[:]); n != 0 {
		return keystore.Material{}, fmt.Errorf("sealed key material exceeds %d bytes", keystore.MaterialSize)
	}

	var material keystore.Material
	if err := material.UnmarshalBinary(plaintext.Bytes()); err != nil {
		return keystore.Material{}, err
	}
	return material, nil
}

// ParsePublicKey validates an age recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}
