// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package envelope seals and opens the 32-byte master key under a
// PIN-derived encryption key, producing the deterministic 48-byte
// ciphertext the enclave stores.
//
// No AES-SIV implementation is available anywhere in this module's
// dependency stack (golang.org/x/crypto ships neither RFC 5297 SIV nor
// AES-CMAC), so this package builds the SIV construction by hand from two
// primitives that are already wired in: HMAC-SHA-256 (stdlib) for the
// synthetic IV, and AES-CTR (stdlib) keyed by a key stream derived from
// that IV. This mirrors the construction described in the data model
// directly: "HMAC-SHA-256 deterministic authenticated encryption."
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// AssertionError marks a length violation or authentication failure, per
// the shared error taxonomy.
type AssertionError struct{ msg string }

func (e *AssertionError) Error() string { return e.msg }

func assertionf(format string, args ...any) error {
	return &AssertionError{msg: fmt.Sprintf(format, args...)}
}

const (
	ivSize         = 16
	masterKeySize  = 32
	envelopeSize   = ivSize + masterKeySize
	sivMacKeySize  = 32
	sivEncKeySize  = 32
)

// Seal deterministically encrypts a 32-byte masterKey under a 32-byte
// encKey, returning a 48-byte envelope: a 16-byte synthetic IV followed by
// a 32-byte ciphertext. Sealing the same (masterKey, encKey) pair always
// produces the same envelope.
//
// Construction: the synthetic IV is HMAC-SHA-256(macSubkey, masterKey),
// truncated to 16 bytes, where macSubkey and the AES-CTR encryption key are
// themselves both derived from encKey via domain-separated HMAC. The IV
// both authenticates the plaintext (it cannot be recomputed without
// masterKey) and seeds the keystream, so any bit flip in the ciphertext
// changes the plaintext recovered on Open in a way the caller can detect by
// recomputing the synthetic IV and comparing.
func Seal(masterKey, encKey []byte) ([]byte, error) {
	if len(masterKey) != masterKeySize {
		return nil, assertionf("envelope: masterKey must be %d bytes, got %d", masterKeySize, len(masterKey))
	}
	if len(encKey) != 32 {
		return nil, assertionf("envelope: encKey must be 32 bytes, got %d", len(encKey))
	}

	macKey, ctrKey := subkeys(encKey)

	iv := syntheticIV(macKey, masterKey)

	ciphertext, err := ctrXOR(ctrKey, iv, masterKey)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, envelopeSize)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open decrypts a 48-byte envelope under encKey and returns the original
// 32-byte master key. It fails with an *AssertionError if env is not
// exactly 48 bytes, if encKey is not 32 bytes, or if the embedded
// synthetic IV does not match the one recomputed from the recovered
// plaintext (authentication failure).
func Open(env, encKey []byte) ([]byte, error) {
	if len(env) != envelopeSize {
		return nil, assertionf("envelope: envelope must be %d bytes, got %d", envelopeSize, len(env))
	}
	if len(encKey) != 32 {
		return nil, assertionf("envelope: encKey must be 32 bytes, got %d", len(encKey))
	}

	iv, ciphertext := env[:ivSize], env[ivSize:]

	macKey, ctrKey := subkeys(encKey)

	plaintext, err := ctrXOR(ctrKey, iv, ciphertext)
	if err != nil {
		return nil, err
	}

	wantIV := syntheticIV(macKey, plaintext)
	if subtle.ConstantTimeCompare(wantIV, iv) != 1 {
		return nil, assertionf("envelope: authentication failed (iv mismatch)")
	}

	return plaintext, nil
}

// subkeys splits encKey into an independent MAC subkey and CTR subkey via
// domain-separated HMAC-SHA-256, so that the same encKey never directly
// keys two different primitives.
func subkeys(encKey []byte) (macKey, ctrKey []byte) {
	mac1 := hmac.New(sha256.New, encKey)
	mac1.Write([]byte("envelope-siv-mac"))
	macKey = mac1.Sum(nil)[:sivMacKeySize]

	mac2 := hmac.New(sha256.New, encKey)
	mac2.Write([]byte("envelope-siv-enc"))
	ctrKey = mac2.Sum(nil)[:sivEncKeySize]

	return macKey, ctrKey
}

func syntheticIV(macKey, plaintext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(plaintext)
	return mac.Sum(nil)[:ivSize]
}

func ctrXOR(ctrKey, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(ctrKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: new cipher: %w", err)
	}

	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}
