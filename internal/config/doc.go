// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package config provides configuration loading, merging, and validation for
// the KBS client: the enclave's address and request timeout, the local
// SQLite DSN backing the key/token store, this device's role, and Argon2
// tuning overrides for test environments.
//
// Configuration is assembled from multiple sources in the following priority
// order (later sources override earlier non-zero fields):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON config file
//
// The entry point for production use is [GetStructuredConfig].
package config
