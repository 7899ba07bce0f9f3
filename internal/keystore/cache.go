// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package keystore implements the local cache and durable persistence of
// the key-backup-service state: the master key, pin type, verification
// string, the transitional storage-service key, synced derived keys, and
// the one-shot enclave token. A single mutex guards the in-memory cache so
// readers always observe either the pre-state or the post-state of a
// multi-field write, mirroring the "serial critical section" the
// concurrency model calls for.
package keystore

import (
	"sync"

	"github.com/vaultkey/kbsclient/models"
)

// Cache is the process-wide in-memory state described in the data model.
// It is never a package-level singleton; callers obtain a handle from
// KeyStore and pass that handle to collaborators, per the design notes.
type Cache struct {
	mu sync.Mutex

	masterKey          *models.MasterKey
	storageServiceKey  []byte
	pinType            models.PinType
	verificationString string
	syncedDerivedKeys  map[models.DerivedKeyKind][]byte

	hasBackupKeyRequestFailed bool
}

func newCache() *Cache {
	return &Cache{syncedDerivedKeys: make(map[models.DerivedKeyKind][]byte)}
}

// Snapshot is an immutable, consistently-read copy of the cache fields a
// multi-field reader needs, so a caller comparing or deriving from more
// than one field never observes a torn update from a concurrent write.
type Snapshot struct {
	MasterKey          *models.MasterKey
	StorageServiceKey  []byte
	PinType            models.PinType
	VerificationString string
	SyncedDerivedKeys  map[models.DerivedKeyKind][]byte
}

// Snapshot takes the cache's lock once and copies every field under it,
// the consistent-read primitive Store's unchanged-check and
// DerivedKeyService's key resolution are built on.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	synced := make(map[models.DerivedKeyKind][]byte, len(c.syncedDerivedKeys))
	for k, v := range c.syncedDerivedKeys {
		synced[k] = v
	}

	var mk *models.MasterKey
	if c.masterKey != nil {
		cp := *c.masterKey
		mk = &cp
	}

	return Snapshot{
		MasterKey:          mk,
		StorageServiceKey:  append([]byte(nil), c.storageServiceKey...),
		PinType:            c.pinType,
		VerificationString: c.verificationString,
		SyncedDerivedKeys:  synced,
	}
}

// HasMasterKey reports whether the cache currently holds a master key.
func (c *Cache) HasMasterKey() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masterKey != nil
}

// CurrentPinType returns the cached PinType, or PinTypeUnknown if no
// master key (and therefore no pin type) is cached.
func (c *Cache) CurrentPinType() models.PinType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinType
}

// MasterKey returns the cached master key, or nil if the device holds none
// (a linked device, or before the first generateAndBackup).
func (c *Cache) MasterKey() *models.MasterKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.masterKey == nil {
		return nil
	}
	mk := *c.masterKey
	return &mk
}

// StorageServiceKey returns the transitional independent storage-service
// key held by a primary device, or nil if none has been generated yet.
func (c *Cache) StorageServiceKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storageServiceKey == nil {
		return nil
	}
	return append([]byte(nil), c.storageServiceKey...)
}

// SyncedDerivedKey returns the key a linked device received over the sync
// channel for the given kind, if any.
func (c *Cache) SyncedDerivedKey(kind models.DerivedKeyKind) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.syncedDerivedKeys[kind]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}
