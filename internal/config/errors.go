package config

import "errors"

// Validation errors returned by [StructuredConfig.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidEnclaveConfig indicates a missing enclave address or a
	// non-positive request timeout.
	ErrInvalidEnclaveConfig = errors.New("invalid enclave configuration")
	// ErrInvalidStorageConfig indicates an empty or in-memory-only DSN.
	ErrInvalidStorageConfig = errors.New("invalid storage configuration")
	// ErrInvalidKDFConfig indicates an Argon2 override was supplied outside
	// test mode. A partial override in test mode is not rejected; it is
	// ignored in favour of the package defaults.
	ErrInvalidKDFConfig = errors.New("invalid kdf configuration")
)
