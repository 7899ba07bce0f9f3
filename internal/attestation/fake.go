// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package attestation

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/vaultkey/kbsclient/models"
)

// Fake is a deterministic RemoteAttestation test double: it never talks to
// a real enclave. Each call generates a fresh request ID and random
// session keys, and always reports the configured EnclaveName.
type Fake struct {
	EnclaveName string
}

// NewFake constructs a Fake for the given enclave name.
func NewFake(enclaveName string) *Fake {
	return &Fake{EnclaveName: enclaveName}
}

func (f *Fake) PerformForKeyBackup(_ context.Context, auth *AuthOption) (models.Attestation, error) {
	var keys models.AttestationKeys
	if _, err := io.ReadFull(rand.Reader, keys.ClientKey[:]); err != nil {
		return models.Attestation{}, fmt.Errorf("attestation: generate client key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, keys.ServerKey[:]); err != nil {
		return models.Attestation{}, fmt.Errorf("attestation: generate server key: %w", err)
	}

	a := models.Attestation{
		RequestID:   uuid.NewString(),
		EnclaveName: f.EnclaveName,
		Keys:        keys,
	}
	if auth != nil {
		a.Auth = models.AttestationAuth{Username: auth.Username, Password: auth.Password}
	}
	return a, nil
}
