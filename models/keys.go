// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package models holds the data types shared between the kbsclient
// components: the master key, PIN classification, the envelope wire
// format, the one-shot enclave token, and the derived-key tagged variant.
// None of these types know how to talk to the enclave or to disk; they are
// pure value types passed between internal/kdf, internal/envelope,
// internal/keystore, internal/enclave and internal/backup.
package models

import (
	"encoding/base64"
	"fmt"
)

// MasterKeySize is the length in bytes of a MasterKey.
const MasterKeySize = 32

// MasterKey is 32 random bytes that seed every application-level derived
// key. It is created on the first successful generateAndBackup and is
// mutated only by wholesale replacement (rotation), never in place.
type MasterKey [MasterKeySize]byte

// Bytes returns the key as a plain byte slice.
func (k MasterKey) Bytes() []byte { return k[:] }

// PinType classifies a normalized PIN as either purely numeric or
// alphanumeric. It is computed once at store time and cached alongside the
// master key.
type PinType int

const (
	// PinTypeUnknown is the zero value; never persisted.
	PinTypeUnknown PinType = iota
	// PinTypeNumeric marks a PIN whose normalized form is all ASCII digits.
	PinTypeNumeric
	// PinTypeAlphanumeric marks any other normalized PIN.
	PinTypeAlphanumeric
)

func (t PinType) String() string {
	switch t {
	case PinTypeNumeric:
		return "numeric"
	case PinTypeAlphanumeric:
		return "alphanumeric"
	default:
		return "unknown"
	}
}

// PinTypeOf classifies a normalized PIN: numeric iff every rune in
// the normalized string is an ASCII digit.
func PinTypeOf(normalized string) PinType {
	if normalized == "" {
		return PinTypeAlphanumeric
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return PinTypeAlphanumeric
		}
	}
	return PinTypeNumeric
}

// EnvelopeSize is the length in bytes of a sealed MasterKey envelope:
// a 16-byte synthetic IV followed by a 32-byte ciphertext.
const EnvelopeSize = 48

// Envelope is the deterministic authenticated ciphertext of a MasterKey
// under a PIN-derived encryption key. See internal/envelope for the seal
// and open operations.
type Envelope [EnvelopeSize]byte

func (e Envelope) Bytes() []byte { return e[:] }

// TokenIDSize is the length in bytes of a Token's backupId and data fields.
const TokenIDSize = 32

// MaximumKeyAttempts is the ceiling on Token.Tries enforced by the enclave.
const MaximumKeyAttempts = 10

// Token is the enclave's single-use anti-replay cookie. Every request
// consumes the current token and the response carries the next one; a
// token is never reused by this client.
type Token struct {
	BackupID [TokenIDSize]byte
	Data     [TokenIDSize]byte
	Tries    uint32
}

// Validate checks the structural invariants required at construction:
// both ID fields fixed at TokenIDSize (guaranteed by the array types) and
// Tries bounded by MaximumKeyAttempts.
func (t Token) Validate() error {
	if t.Tries > MaximumKeyAttempts {
		return fmt.Errorf("token: tries %d exceeds maximum %d", t.Tries, MaximumKeyAttempts)
	}
	return nil
}

// DerivedKeyKind tags the variants of DerivedKey.
type DerivedKeyKind int

const (
	DerivedKeyRegistrationLock DerivedKeyKind = iota
	DerivedKeyStorageService
	DerivedKeyStorageServiceManifest
	DerivedKeyStorageServiceRecord
)

// DerivedKey is the tagged variant describing which application key to
// derive or fetch. Manifest and Record carry the extra field their label
// needs; the other two variants leave it unused.
type DerivedKey struct {
	Kind    DerivedKeyKind
	Version uint64 // only meaningful for DerivedKeyStorageServiceManifest
	ID      []byte // only meaningful for DerivedKeyStorageServiceRecord
}

// RegistrationLock, StorageService are convenience constructors for the
// two parentless variants.
func RegistrationLock() DerivedKey { return DerivedKey{Kind: DerivedKeyRegistrationLock} }
func StorageService() DerivedKey   { return DerivedKey{Kind: DerivedKeyStorageService} }

// StorageServiceManifest constructs the per-manifest-version variant.
func StorageServiceManifest(version uint64) DerivedKey {
	return DerivedKey{Kind: DerivedKeyStorageServiceManifest, Version: version}
}

// StorageServiceRecord constructs the per-record variant.
func StorageServiceRecord(id []byte) DerivedKey {
	return DerivedKey{Kind: DerivedKeyStorageServiceRecord, ID: id}
}

// Label returns the fixed domain-separation string HMAC-SHA-256 is keyed
// with for this variant, per the derivation formula in the data model.
func (d DerivedKey) Label() string {
	switch d.Kind {
	case DerivedKeyRegistrationLock:
		return "Registration Lock"
	case DerivedKeyStorageService:
		return "Storage Service Encryption"
	case DerivedKeyStorageServiceManifest:
		return fmt.Sprintf("Manifest_%d", d.Version)
	case DerivedKeyStorageServiceRecord:
		return "Item_" + base64.StdEncoding.EncodeToString(d.ID)
	default:
		return ""
	}
}

// Syncable reports whether this variant is ever sent to linked devices
// over the key-sync channel. Only storageService is, today.
func (d DerivedKey) Syncable() bool {
	return d.Kind == DerivedKeyStorageService
}
