// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import "strings"

// validate checks that the final merged [StructuredConfig] satisfies all
// client invariants before it is used at startup.
func (cfg *StructuredConfig) validate() error {
	if cfg.Enclave.Address == "" || cfg.Enclave.RequestTimeout <= 0 {
		return ErrInvalidEnclaveConfig
	}

	if cfg.Storage.DSN == "" || strings.Contains(cfg.Storage.DSN, "memory") {
		return ErrInvalidStorageConfig
	}

	if !cfg.KDF.TestMode {
		k := cfg.KDF
		if k.EncIterations != 0 || k.EncMemoryKiB != 0 || k.EncParallelism != 0 ||
			k.VerIterations != 0 || k.VerMemoryKiB != 0 || k.VerParallelism != 0 {
			return ErrInvalidKDFConfig
		}
	}

	return nil
}
