// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"

	"github.com/vaultkey/kbsclient/internal/kdf"
)

// StructuredConfig is the top-level configuration container.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type StructuredConfig struct {
	// Enclave holds the address and timeout for the remote attested enclave.
	Enclave Enclave `envPrefix:"ENCLAVE_"`

	// Storage holds the local key/token store's connection settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Device describes this client's role in the key hierarchy.
	Device Device `envPrefix:"DEVICE_"`

	// KDF carries Argon2 tuning overrides, honored only in test mode.
	KDF KDF `envPrefix:"KDF_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables and flags.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// Enclave holds the address and timeout for the remote attested enclave.
type Enclave struct {
	// Address is the enclave's base HTTP URL. Env: ENCLAVE_ADDRESS
	Address string `env:"ADDRESS"`
	// Name identifies the enclave to the attestation handshake.
	// Env: ENCLAVE_NAME
	Name string `env:"NAME"`
	// RequestTimeout bounds every attested round trip.
	// Env: ENCLAVE_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Storage holds the local SQLite key/token store's connection settings.
type Storage struct {
	// DSN is the SQLite data source name, e.g. "file:kbs.db?_fk=1".
	// Env: STORAGE_DSN
	DSN string `env:"DSN"`
}

// Device describes this client's role, which gates several KeyStore
// invariants (synced-key writes, storage-service key generation).
type Device struct {
	// IsPrimary marks this device as the one that owns the master key
	// directly, as opposed to a linked device that only ever receives
	// derived keys over the sync channel. Env: DEVICE_IS_PRIMARY
	IsPrimary bool `env:"IS_PRIMARY"`
}

// KDF carries Argon2 tuning overrides. Overrides are only honored when
// TestMode is true; validate rejects a non-test config with any override
// field set, and production code always gets the package defaults.
type KDF struct {
	// TestMode relaxes KeyStore.StoreSyncedKey's primary-device restriction
	// so test fixtures can populate syncedDerivedKeys on a primary device,
	// and gates every override field below. Env: KDF_TEST_MODE
	TestMode bool `env:"TEST_MODE"`

	EncIterations  uint32 `env:"ENC_ITERATIONS"`
	EncMemoryKiB   uint32 `env:"ENC_MEMORY_KIB"`
	EncParallelism uint8  `env:"ENC_PARALLELISM"`

	VerIterations  uint32 `env:"VER_ITERATIONS"`
	VerMemoryKiB   uint32 `env:"VER_MEMORY_KIB"`
	VerParallelism uint8  `env:"VER_PARALLELISM"`
}

// EncryptionAccessParams resolves the Argon2id parameters for
// DeriveEncryptionAndAccessKey. The override only applies in test mode and
// only once every override field is set; otherwise the package defaults win.
func (cfg *StructuredConfig) EncryptionAccessParams() kdf.EncryptionAccessParams {
	d := kdf.DefaultEncryptionAccessParams()
	if !cfg.KDF.TestMode || cfg.KDF.EncIterations == 0 || cfg.KDF.EncMemoryKiB == 0 || cfg.KDF.EncParallelism == 0 {
		return d
	}
	return kdf.EncryptionAccessParams{
		Iterations:  cfg.KDF.EncIterations,
		MemoryKiB:   cfg.KDF.EncMemoryKiB,
		Parallelism: cfg.KDF.EncParallelism,
		KeyLen:      d.KeyLen,
	}
}

// VerificationParams resolves the Argon2i parameters for
// DeriveVerificationString / VerifyPin, under the same test-mode gate.
func (cfg *StructuredConfig) VerificationParams() kdf.VerificationParams {
	d := kdf.DefaultVerificationParams()
	if !cfg.KDF.TestMode || cfg.KDF.VerIterations == 0 || cfg.KDF.VerMemoryKiB == 0 || cfg.KDF.VerParallelism == 0 {
		return d
	}
	return kdf.VerificationParams{
		Iterations:  cfg.KDF.VerIterations,
		MemoryKiB:   cfg.KDF.VerMemoryKiB,
		Parallelism: cfg.KDF.VerParallelism,
		KeyLen:      d.KeyLen,
	}
}

// GetStructuredConfig loads, merges, and validates the configuration from
// all available sources in the following priority order (last source wins
// for non-zero fields):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON file (path resolved from sources 1 and 2)
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		build()
}
