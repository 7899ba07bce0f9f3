// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package enclave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	gcmIVSize  = 12
	gcmTagSize = 16
)

// sealDetached AES-GCM-encrypts plaintext under key with the given aad and
// a fresh random 12-byte IV, returning the ciphertext and the 16-byte
// authentication tag as separate slices (the wire protocol transmits them
// in separate fields rather than the usual ciphertext||tag concatenation).
func sealDetached(key, plaintext, aad []byte) (iv, ciphertext, mac []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("enclave: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("enclave: new gcm: %w", err)
	}

	iv = make([]byte, gcmIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, fmt.Errorf("enclave: generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - gcmTagSize
	ciphertext = sealed[:split]
	mac = sealed[split:]
	return iv, ciphertext, mac, nil
}

// openDetached is the inverse of sealDetached: it reassembles
// ciphertext||mac and decrypts/authenticates it under key, iv and aad.
func openDetached(key, iv, ciphertext, mac, aad []byte) ([]byte, error) {
	if len(iv) != gcmIVSize {
		return nil, fmt.Errorf("enclave: iv must be %d bytes, got %d", gcmIVSize, len(iv))
	}
	if len(mac) != gcmTagSize {
		return nil, fmt.Errorf("enclave: mac must be %d bytes, got %d", gcmTagSize, len(mac))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("enclave: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("enclave: new gcm: %w", err)
	}

	sealed := append(append([]byte(nil), ciphertext...), mac...)
	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("enclave: decryption failed: %w", err)
	}
	return plaintext, nil
}
