// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package keystore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vaultkey/kbsclient/internal/events"
	"github.com/vaultkey/kbsclient/internal/kbslog"
	"github.com/vaultkey/kbsclient/models"
)

// Persisted key names under the keyBackupService/keys collection.
const (
	keyMasterKey                 = "masterKey"
	keyStorageServiceKey         = "storageServiceKey"
	keyPinType                   = "pinType"
	keyEncodedVerificationString = "encodedVerificationString"
	keyHasBackupKeyRequestFailed = "hasBackupKeyRequestFailed"
	keyStorageServiceEncryption  = "Storage Service Encryption" // DerivedKeyStorageService.Label()
)

// AssertionError marks a caller-side invariant violation, e.g. a linked
// device attempting a primary-only write.
type AssertionError struct{ msg string }

func (e *AssertionError) Error() string { return e.msg }

// KeyStore is the durable + in-memory cache of keys, pin type, and
// verification string, guarded by Cache's serial critical section and
// backed by Repository for durability. It also owns the TokenStore (§4.5
// is a sub-component of KeyStore) and publishes downstream notifications
// through an events.Sink.
type KeyStore struct {
	repo  Repository
	cache *Cache
	sink  *events.Sink
	log   *kbslog.Logger

	isPrimaryDevice bool
	testMode        bool

	Tokens *TokenStore
}

// New constructs a KeyStore. isPrimaryDevice and testMode gate the
// storeSyncedKey invariant; testMode additionally allows a primary device
// to populate syncedDerivedKeys for test fixtures.
func New(repo Repository, sink *events.Sink, log *kbslog.Logger, isPrimaryDevice, testMode bool) *KeyStore {
	ks := &KeyStore{
		repo:            repo,
		cache:           newCache(),
		sink:            sink,
		log:             log,
		isPrimaryDevice: isPrimaryDevice,
		testMode:        testMode,
	}
	ks.Tokens = newTokenStore(repo, log)
	return ks
}

// Cache exposes the underlying in-memory cache handle for DerivedKeyService
// and other read-only collaborators.
func (ks *KeyStore) Cache() *Cache { return ks.cache }

// IsPrimaryDevice reports whether this KeyStore was constructed in the
// primary-device role.
func (ks *KeyStore) IsPrimaryDevice() bool { return ks.isPrimaryDevice }

// IsTestMode reports whether this KeyStore was constructed in test mode.
func (ks *KeyStore) IsTestMode() bool { return ks.testMode }

// WarmCaches reads all persisted fields into the in-memory cache. On a
// primary device, if no storageServiceKey is present, it generates 32
// random bytes and persists them — the transitional behavior documented in
// the design notes. This does not emit manifestNeedsRebuild (decided open
// question: current behavior does not).
func (ks *KeyStore) WarmCaches(ctx context.Context) error {
	mkBytes, ok, err := ks.repo.GetKey(ctx, keyMasterKey)
	if err != nil {
		return fmt.Errorf("keystore: warm master key: %w", err)
	}
	if ok && len(mkBytes) == models.MasterKeySize {
		var mk models.MasterKey
		copy(mk[:], mkBytes)
		ks.cache.mu.Lock()
		ks.cache.masterKey = &mk
		ks.cache.mu.Unlock()
	}

	ssk, ok, err := ks.repo.GetKey(ctx, keyStorageServiceKey)
	if err != nil {
		return fmt.Errorf("keystore: warm storage service key: %w", err)
	}
	if !ok && ks.isPrimaryDevice {
		generated := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, generated); err != nil {
			return fmt.Errorf("keystore: generate storage service key: %w", err)
		}
		if err := ks.repo.PutKey(ctx, keyStorageServiceKey, generated); err != nil {
			return fmt.Errorf("keystore: persist storage service key: %w", err)
		}
		ssk = generated
	}
	ks.cache.mu.Lock()
	ks.cache.storageServiceKey = ssk
	ks.cache.mu.Unlock()

	pinTypeBytes, ok, err := ks.repo.GetKey(ctx, keyPinType)
	if err != nil {
		return fmt.Errorf("keystore: warm pin type: %w", err)
	}
	if ok && len(pinTypeBytes) == 4 {
		ks.cache.mu.Lock()
		ks.cache.pinType = models.PinType(binary.BigEndian.Uint32(pinTypeBytes))
		ks.cache.mu.Unlock()
	}

	verificationBytes, ok, err := ks.repo.GetKey(ctx, keyEncodedVerificationString)
	if err != nil {
		return fmt.Errorf("keystore: warm verification string: %w", err)
	}
	if ok {
		ks.cache.mu.Lock()
		ks.cache.verificationString = string(verificationBytes)
		ks.cache.mu.Unlock()
	}

	failedBytes, ok, err := ks.repo.GetKey(ctx, keyHasBackupKeyRequestFailed)
	if err != nil {
		return fmt.Errorf("keystore: warm backup-failed flag: %w", err)
	}
	if ok {
		ks.cache.mu.Lock()
		ks.cache.hasBackupKeyRequestFailed = len(failedBytes) == 1 && failedBytes[0] == 1
		ks.cache.mu.Unlock()
	}

	syncedBytes, ok, err := ks.repo.GetKey(ctx, keyStorageServiceEncryption)
	if err != nil {
		return fmt.Errorf("keystore: warm synced storage service key: %w", err)
	}
	if ok {
		ks.cache.mu.Lock()
		ks.cache.syncedDerivedKeys[models.DerivedKeyStorageService] = syncedBytes
		ks.cache.mu.Unlock()
	}

	ks.log.Debug().Bool("has_master_key", mkBytes != nil).Msg("warmed key backup service cache")
	return nil
}

// Store atomically persists masterKey, pinType and verificationString. If
// none of the three differ from the cached values, Store is a no-op. On any
// change, hasBackupKeyRequestFailed is also reset to false. The four
// fields are written inside a single Repository transaction, so a crash
// mid-write can never leave masterKey persisted without its pinType and
// verificationString. If the new masterKey differs from the previous one
// and isAccountReady is true, manifestNeedsRebuild and sendKeysSyncMessage
// are published after the write completes.
func (ks *KeyStore) Store(ctx context.Context, masterKey models.MasterKey, pinType models.PinType, verificationString string, isAccountReady bool) error {
	snap := ks.cache.Snapshot()
	unchanged := snap.MasterKey != nil && *snap.MasterKey == masterKey &&
		snap.PinType == pinType && snap.VerificationString == verificationString
	masterKeyChanged := snap.MasterKey == nil || *snap.MasterKey != masterKey

	if unchanged {
		return nil
	}

	pinTypeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(pinTypeBytes, uint32(pinType))

	if err := ks.repo.PutKeys(ctx, map[string][]byte{
		keyMasterKey:                 masterKey.Bytes(),
		keyPinType:                   pinTypeBytes,
		keyEncodedVerificationString: []byte(verificationString),
		keyHasBackupKeyRequestFailed: {0},
	}); err != nil {
		return fmt.Errorf("keystore: store master key group: %w", err)
	}

	mkCopy := masterKey
	ks.cache.mu.Lock()
	ks.cache.masterKey = &mkCopy
	ks.cache.pinType = pinType
	ks.cache.verificationString = verificationString
	ks.cache.hasBackupKeyRequestFailed = false
	ks.cache.mu.Unlock()

	if masterKeyChanged && isAccountReady {
		ks.sink.PublishManifestNeedsRebuild()
		ks.sink.PublishSendKeysSyncMessage()
	}

	return nil
}

// ClearKeys removes every persisted field except the transitional
// storageServiceKey, and clears the cache atomically.
func (ks *KeyStore) ClearKeys(ctx context.Context) error {
	if err := ks.repo.DeleteKeysExcept(ctx, keyStorageServiceKey); err != nil {
		return fmt.Errorf("keystore: clear keys: %w", err)
	}

	ks.cache.mu.Lock()
	preserved := ks.cache.storageServiceKey
	ks.cache.masterKey = nil
	ks.cache.storageServiceKey = preserved
	ks.cache.pinType = models.PinTypeUnknown
	ks.cache.verificationString = ""
	ks.cache.syncedDerivedKeys = make(map[models.DerivedKeyKind][]byte)
	ks.cache.hasBackupKeyRequestFailed = false
	ks.cache.mu.Unlock()

	return nil
}

// SetBackupKeyRequestFailed records whether the last backup network call
// rejected, for retry-scheduling by higher layers.
func (ks *KeyStore) SetBackupKeyRequestFailed(ctx context.Context, failed bool) error {
	var v byte
	if failed {
		v = 1
	}
	if err := ks.repo.PutKey(ctx, keyHasBackupKeyRequestFailed, []byte{v}); err != nil {
		return fmt.Errorf("keystore: set backup-failed flag: %w", err)
	}
	ks.cache.mu.Lock()
	ks.cache.hasBackupKeyRequestFailed = failed
	ks.cache.mu.Unlock()
	return nil
}

// HasBackupKeyRequestFailed reports the last-recorded backup failure flag.
func (ks *KeyStore) HasBackupKeyRequestFailed() bool {
	ks.cache.mu.Lock()
	defer ks.cache.mu.Unlock()
	return ks.cache.hasBackupKeyRequestFailed
}

// allowedSyncedKeys is the syncable-key allow-list: only storageService may
// be written via StoreSyncedKey today.
var allowedSyncedKeys = map[models.DerivedKeyKind]bool{
	models.DerivedKeyStorageService: true,
}

// StoreSyncedKey is a linked-device-only write: a primary device calling
// this (outside test mode) gets an *AssertionError. Writing a kind outside
// the allow-list is also rejected. A change to the storageService entry
// triggers manifestNeedsRebuild.
func (ks *KeyStore) StoreSyncedKey(ctx context.Context, kind models.DerivedKeyKind, data []byte) error {
	if ks.isPrimaryDevice && !ks.testMode {
		return &AssertionError{msg: "keystore: storeSyncedKey is linked-device-only"}
	}
	if !allowedSyncedKeys[kind] {
		return &AssertionError{msg: fmt.Sprintf("keystore: derived key kind %d is not syncable", kind)}
	}

	ks.cache.mu.Lock()
	previous, had := ks.cache.syncedDerivedKeys[kind]
	changed := !had || string(previous) != string(data)
	ks.cache.mu.Unlock()

	if !changed {
		return nil
	}

	if kind == models.DerivedKeyStorageService {
		if err := ks.repo.PutKey(ctx, keyStorageServiceEncryption, data); err != nil {
			return fmt.Errorf("keystore: store synced storage service key: %w", err)
		}
	}

	ks.cache.mu.Lock()
	ks.cache.syncedDerivedKeys[kind] = data
	ks.cache.mu.Unlock()

	if kind == models.DerivedKeyStorageService {
		ks.sink.PublishManifestNeedsRebuild()
	}

	return nil
}
