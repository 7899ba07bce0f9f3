// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package kdf implements the three layers of key derivation that sit
// between a user's PIN and the application's key hierarchy:
//
//  1. DeriveEncryptionAndAccessKey — Argon2id over the PIN, split into the
//     server-visible access key and the local encryption key;
//  2. DeriveVerificationString / VerifyPin — Argon2i, for offline PIN
//     re-verification without ever contacting the enclave;
//  3. DeriveNamed — the HMAC-SHA-256 domain-separation step used to walk
//     the derived-key parent chain (registration lock, storage service,
//     manifest, record).
//
// All three are CPU-bound; callers on a UI or request-handling goroutine
// should run them via a worker pool or a plain `go` statement bounded by a
// semaphore, keeping Argon2 off latency-sensitive paths.
package kdf

// EncryptionAccessParams are the Argon2id tuning knobs for
// DeriveEncryptionAndAccessKey. Production code must use
// DefaultEncryptionAccessParams; tests may construct a cheaper instance,
// which internal/config rejects outside test mode.
type EncryptionAccessParams struct {
	Iterations  uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32 // total output length; split into two equal halves
}

// VerificationParams are the Argon2i tuning knobs for
// DeriveVerificationString / VerifyPin.
type VerificationParams struct {
	Iterations  uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultEncryptionAccessParams are the fixed production parameters:
// iterations=32, memory=16 MiB, parallelism=1, outputLen=64.
func DefaultEncryptionAccessParams() EncryptionAccessParams {
	return EncryptionAccessParams{
		Iterations:  32,
		MemoryKiB:   16 * 1024,
		Parallelism: 1,
		KeyLen:      64,
	}
}

// DefaultVerificationParams are the fixed production parameters:
// iterations=64, memory=512 KiB, parallelism=1, outputLen=32.
func DefaultVerificationParams() VerificationParams {
	return VerificationParams{
		Iterations:  64,
		MemoryKiB:   512,
		Parallelism: 1,
		KeyLen:      32,
	}
}
