// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package derivedkey is the public surface client code uses to obtain and
// use application-level keys derived from (or synced alongside) the master
// key, without ever handling the master key directly.
package derivedkey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/vaultkey/kbsclient/internal/kdf"
	"github.com/vaultkey/kbsclient/internal/keystore"
	"github.com/vaultkey/kbsclient/models"
)

const gcmIVSize = 12

// Service resolves a DerivedKey to key material and provides AES-GCM
// encrypt/decrypt under any derivable slot.
type Service struct {
	cache           *keystore.Cache
	isPrimaryDevice bool
	testMode        bool
}

// New constructs a Service bound to ks's cache.
func New(ks *keystore.KeyStore) *Service {
	return &Service{
		cache:           ks.Cache(),
		isPrimaryDevice: ks.IsPrimaryDevice(),
		testMode:        ks.IsTestMode(),
	}
}

// DataFor resolves the key material for derivedKey. It reads masterKey,
// storageServiceKey and syncedDerivedKeys as one consistent snapshot, so a
// concurrent Store/ClearKeys can never hand back a master key paired with
// a sync entry from before (or after) that write. On a linked device (or
// in test mode) syncedDerivedKeys is consulted first. storageService has a
// transitional special case: if the primary device holds an independent
// storage-service key, that value is returned directly rather than derived
// from the master key. Otherwise the parent-derivation chain is walked,
// deriving HMAC-SHA-256(parent, label) one hop at a time. A nil, nil return
// means no parent is available yet (e.g. no master key and no sync entry).
func (s *Service) DataFor(dk models.DerivedKey) ([]byte, error) {
	snap := s.cache.Snapshot()

	if !s.isPrimaryDevice || s.testMode {
		if v, ok := snap.SyncedDerivedKeys[dk.Kind]; ok {
			return v, nil
		}
	}

	if dk.Kind == models.DerivedKeyStorageService && snap.StorageServiceKey != nil {
		return snap.StorageServiceKey, nil
	}

	parent, err := s.parentFor(dk, snap)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	return kdf.DeriveNamed(parent, dk.Label()), nil
}

// parentFor returns the key material one hop up the derivation chain from
// dk within snap, or nil if that parent is itself unavailable.
func (s *Service) parentFor(dk models.DerivedKey, snap keystore.Snapshot) ([]byte, error) {
	switch dk.Kind {
	case models.DerivedKeyRegistrationLock, models.DerivedKeyStorageService:
		if snap.MasterKey == nil {
			return nil, nil
		}
		return snap.MasterKey.Bytes(), nil
	case models.DerivedKeyStorageServiceManifest, models.DerivedKeyStorageServiceRecord:
		return s.DataFor(models.StorageService())
	default:
		return nil, fmt.Errorf("derivedkey: unknown kind %d", dk.Kind)
	}
}

// Encrypt seals plaintext under the key resolved for derivedKey, returning
// iv||ciphertext||tag. A fresh random 12-byte IV is generated per call.
func (s *Service) Encrypt(dk models.DerivedKey, plaintext []byte) ([]byte, error) {
	key, err := s.DataFor(dk)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: resolve key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("derivedkey: no key material available for %q", dk.Label())
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: new gcm: %w", err)
	}

	iv := make([]byte, gcmIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("derivedkey: generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	return append(iv, sealed...), nil
}

// Decrypt is the inverse of Encrypt. It reports a plain decryption-failure
// error without surfacing any crypto-internal detail.
func (s *Service) Decrypt(dk models.DerivedKey, ciphertext []byte) ([]byte, error) {
	key, err := s.DataFor(dk)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: resolve key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("derivedkey: no key material available for %q", dk.Label())
	}
	if len(ciphertext) < gcmIVSize {
		return nil, fmt.Errorf("derivedkey: decryption failed")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: decryption failed")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: decryption failed")
	}

	iv, sealed := ciphertext[:gcmIVSize], ciphertext[gcmIVSize:]
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("derivedkey: decryption failed")
	}
	return plaintext, nil
}

// RegistrationLockToken returns the uppercase hex encoding of the
// registration-lock key, or "" if no key material is currently available.
func (s *Service) RegistrationLockToken() (string, error) {
	data, err := s.DataFor(models.RegistrationLock())
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", nil
	}
	return strings.ToUpper(hex.EncodeToString(data)), nil
}
