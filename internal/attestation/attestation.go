// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package attestation declares the RemoteAttestation collaborator the
// EnclaveClient consumes. The real attested enclave handshake is out of
// scope (see the module's non-goals); only the interface and a
// deterministic test double live here.
package attestation

import (
	"context"

	"github.com/vaultkey/kbsclient/models"
)

// AuthOption carries the caller-supplied basic-auth credentials for a
// round trip, when the caller already has them (e.g. a previously bound
// account). A nil AuthOption lets the implementation negotiate fresh
// credentials itself.
type AuthOption struct {
	Username string
	Password string
}

// RemoteAttestation performs (or fakes) the remote attestation handshake
// for one key-backup round trip, yielding the request ID, enclave name,
// the negotiated AES-GCM keys, and the session's auth/cookie material.
type RemoteAttestation interface {
	PerformForKeyBackup(ctx context.Context, auth *AuthOption) (models.Attestation, error)
}
