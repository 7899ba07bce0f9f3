// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_AllFields(t *testing.T) {
	envVars := map[string]string{
		"CONFIG": "/path/to/config.json",

		"ENCLAVE_ADDRESS":         "https://enclave.example",
		"ENCLAVE_NAME":            "svr2",
		"ENCLAVE_REQUEST_TIMEOUT": "30s",

		"STORAGE_DSN": "file:kbs.db",

		"DEVICE_IS_PRIMARY": "true",

		"KDF_TEST_MODE":       "true",
		"KDF_ENC_ITERATIONS":  "1",
		"KDF_ENC_MEMORY_KIB":  "8",
		"KDF_ENC_PARALLELISM": "1",
	}
	setEnvVars(t, envVars)

	cfg := &StructuredConfig{}
	err := parseEnv(cfg)

	require.NoError(t, err)

	assert.Equal(t, "/path/to/config.json", cfg.JSONFilePath)

	assert.Equal(t, "https://enclave.example", cfg.Enclave.Address)
	assert.Equal(t, "svr2", cfg.Enclave.Name)
	assert.Equal(t, 30*time.Second, cfg.Enclave.RequestTimeout)

	assert.Equal(t, "file:kbs.db", cfg.Storage.DSN)

	assert.True(t, cfg.Device.IsPrimary)

	assert.True(t, cfg.KDF.TestMode)
	assert.Equal(t, uint32(1), cfg.KDF.EncIterations)
	assert.Equal(t, uint32(8), cfg.KDF.EncMemoryKiB)
	assert.Equal(t, uint8(1), cfg.KDF.EncParallelism)
}

func TestParseEnv_PartialFields(t *testing.T) {
	envVars := map[string]string{
		"ENCLAVE_ADDRESS": "https://enclave.example",
	}
	setEnvVars(t, envVars)

	cfg := &StructuredConfig{}
	err := parseEnv(cfg)

	require.NoError(t, err)

	assert.Equal(t, "https://enclave.example", cfg.Enclave.Address)
	assert.Empty(t, cfg.Enclave.Name)
	assert.Zero(t, cfg.Enclave.RequestTimeout)
	assert.Empty(t, cfg.Storage.DSN)
	assert.False(t, cfg.Device.IsPrimary)
	assert.Empty(t, cfg.JSONFilePath)
}

func TestParseEnv_EmptyEnv(t *testing.T) {
	clearEnvVars(t)

	cfg := &StructuredConfig{}
	err := parseEnv(cfg)

	require.NoError(t, err)

	assert.Equal(t, "", cfg.JSONFilePath)
	assert.Equal(t, Enclave{}, cfg.Enclave)
	assert.Equal(t, Storage{}, cfg.Storage)
	assert.Equal(t, Device{}, cfg.Device)
	assert.Equal(t, KDF{}, cfg.KDF)
}

func TestParseEnv_InvalidDuration(t *testing.T) {
	envVars := map[string]string{
		"ENCLAVE_REQUEST_TIMEOUT": "invalid_duration",
	}
	setEnvVars(t, envVars)

	cfg := &StructuredConfig{}
	err := parseEnv(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "env")
}

func TestParseEnv_DurationFormats(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{"hours", "2h", 2 * time.Hour},
		{"minutes", "45m", 45 * time.Minute},
		{"seconds", "30s", 30 * time.Second},
		{"combined", "1h30m", 90 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envVars := map[string]string{
				"ENCLAVE_REQUEST_TIMEOUT": tt.envValue,
			}
			setEnvVars(t, envVars)

			cfg := &StructuredConfig{}
			err := parseEnv(cfg)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg.Enclave.RequestTimeout)
		})
	}
}

// Helpers

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	clearEnvVars(t)
	for k, v := range vars {
		require.NoError(t, os.Setenv(k, v))
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG",

		"ENCLAVE_ADDRESS",
		"ENCLAVE_NAME",
		"ENCLAVE_REQUEST_TIMEOUT",

		"STORAGE_DSN",

		"DEVICE_IS_PRIMARY",

		"KDF_TEST_MODE",
		"KDF_ENC_ITERATIONS",
		"KDF_ENC_MEMORY_KIB",
		"KDF_ENC_PARALLELISM",
		"KDF_VER_ITERATIONS",
		"KDF_VER_MEMORY_KIB",
		"KDF_VER_PARALLELISM",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
