package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-enclave-address enclave base URL
//	-enclave-name enclave attestation name
//	-request-timeout enclave request timeout (e.g., "30s", "1m")
//	-d SQLite DSN for the key/token store
//	-primary mark this device as the primary key owner
//	-c/-config json file path with configs
func ParseFlags() *StructuredConfig {
	var enclaveAddress string
	var enclaveName string
	var requestTimeout time.Duration
	var storageDSN string
	var isPrimary bool
	var jsonConfigPath string

	flag.StringVar(&enclaveAddress, "enclave-address", "", "Enclave base URL")
	flag.StringVar(&enclaveName, "enclave-name", "", "Enclave attestation name")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Enclave request timeout (e.g., 30s, 1m)")
	flag.StringVar(&storageDSN, "d", "", "SQLite DSN")
	flag.BoolVar(&isPrimary, "primary", false, "Mark this device as the primary key owner")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")

	flag.Parse()

	return &StructuredConfig{
		Enclave: Enclave{
			Address:        enclaveAddress,
			Name:           enclaveName,
			RequestTimeout: requestTimeout,
		},
		Storage: Storage{
			DSN: storageDSN,
		},
		Device: Device{
			IsPrimary: isPrimary,
		},
		JSONFilePath: jsonConfigPath,
	}
}
