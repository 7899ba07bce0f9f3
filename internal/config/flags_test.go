package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(t *testing.T, cfg *StructuredConfig)
	}{
		{
			name: "all flags set",
			args: []string{
				"-enclave-address", "https://enclave.example",
				"-enclave-name", "svr2",
				"-request-timeout", "30s",
				"-d", "file:kbs.db",
				"-primary",
				"-c", "/path/to/config.json",
			},
			validate: func(t *testing.T, cfg *StructuredConfig) {
				assert.Equal(t, "https://enclave.example", cfg.Enclave.Address)
				assert.Equal(t, "svr2", cfg.Enclave.Name)
				assert.Equal(t, 30*time.Second, cfg.Enclave.RequestTimeout)
				assert.Equal(t, "file:kbs.db", cfg.Storage.DSN)
				assert.True(t, cfg.Device.IsPrimary)
				assert.Equal(t, "/path/to/config.json", cfg.JSONFilePath)
			},
		},
		{
			name: "config alias flag",
			args: []string{
				"-config", "/path/to/config.json",
			},
			validate: func(t *testing.T, cfg *StructuredConfig) {
				assert.Equal(t, "/path/to/config.json", cfg.JSONFilePath)
			},
		},
		{
			name: "partial flags",
			args: []string{
				"-enclave-address", "https://enclave.example",
			},
			validate: func(t *testing.T, cfg *StructuredConfig) {
				assert.Equal(t, "https://enclave.example", cfg.Enclave.Address)
				assert.Empty(t, cfg.Storage.DSN)
				assert.False(t, cfg.Device.IsPrimary)
			},
		},
		{
			name: "no flags",
			args: []string{},
			validate: func(t *testing.T, cfg *StructuredConfig) {
				assert.Empty(t, cfg.Enclave.Address)
				assert.Empty(t, cfg.Storage.DSN)
				assert.Empty(t, cfg.JSONFilePath)
				assert.False(t, cfg.Device.IsPrimary)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flag.CommandLine for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

			oldArgs := os.Args
			os.Args = append([]string{"cmd"}, tt.args...)
			defer func() { os.Args = oldArgs }()

			cfg := ParseFlags()
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}
