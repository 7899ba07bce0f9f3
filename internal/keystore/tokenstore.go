// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package keystore

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/vaultkey/kbsclient/internal/kbslog"
	"github.com/vaultkey/kbsclient/models"
)

// TokenStore is the sub-component of KeyStore persisting the one-shot
// enclave token under its own collection. Length invariants (backupId and
// data each exactly 32 bytes) are enforced at every write.
type TokenStore struct {
	repo Repository
	log  *kbslog.Logger
}

func newTokenStore(repo Repository, log *kbslog.Logger) *TokenStore {
	return &TokenStore{repo: repo, log: log}
}

// Current reads all three token fields under one snapshot. It returns
// (nil, nil) — not an error — if any field is missing or if a persisted
// length is corrupt; the caller is expected to refetch from the enclave in
// either case.
func (t *TokenStore) Current(ctx context.Context) (*models.Token, error) {
	backupID, data, tries, found, err := t.repo.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: current: %w", err)
	}
	if !found {
		return nil, nil
	}
	if len(backupID) != models.TokenIDSize || len(data) != models.TokenIDSize {
		t.log.Warn().Int("backup_id_len", len(backupID)).Int("data_len", len(data)).
			Msg("tokenstore: corrupt persisted token, treating as absent")
		return nil, nil
	}

	var tok models.Token
	copy(tok.BackupID[:], backupID)
	copy(tok.Data[:], data)
	tok.Tries = tries
	return &tok, nil
}

// UpdateNext merges the supplied fields with the persisted backupId/tries
// when those arguments are omitted (nil), then writes all three. It fails
// if neither the argument nor a persisted value is present for backupId or
// for tries.
func (t *TokenStore) UpdateNext(ctx context.Context, data []byte, backupID []byte, tries *uint32) error {
	if len(data) != models.TokenIDSize {
		return fmt.Errorf("tokenstore: data must be %d bytes, got %d", models.TokenIDSize, len(data))
	}

	existing, err := t.Current(ctx)
	if err != nil {
		return err
	}

	resolvedBackupID := backupID
	if len(resolvedBackupID) == 0 {
		if existing == nil {
			return fmt.Errorf("tokenstore: updateNext: no backupId supplied and none persisted")
		}
		resolvedBackupID = existing.BackupID[:]
	}
	if len(resolvedBackupID) != models.TokenIDSize {
		return fmt.Errorf("tokenstore: backupId must be %d bytes, got %d", models.TokenIDSize, len(resolvedBackupID))
	}

	resolvedTries := uint32(0)
	switch {
	case tries != nil:
		resolvedTries = *tries
	case existing != nil:
		resolvedTries = existing.Tries
	default:
		return fmt.Errorf("tokenstore: updateNext: no tries supplied and none persisted")
	}

	if err := t.repo.PutToken(ctx, resolvedBackupID, data, resolvedTries); err != nil {
		return fmt.Errorf("tokenstore: updateNext: %w", err)
	}
	return nil
}

// UpdateNextFromServerBootstrap parses the enclave's bootstrap-endpoint
// payload (base64 backupId/token fields, numeric tries) and persists it as
// the next token.
func (t *TokenStore) UpdateNextFromServerBootstrap(ctx context.Context, boot models.ServerBootstrapToken) error {
	backupID, err := base64.StdEncoding.DecodeString(boot.BackupID)
	if err != nil {
		return fmt.Errorf("tokenstore: decode bootstrap backupId: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(boot.Token)
	if err != nil {
		return fmt.Errorf("tokenstore: decode bootstrap token: %w", err)
	}

	tries := boot.Tries
	return t.UpdateNext(ctx, data, backupID, &tries)
}

// ClearNext removes all three persisted token fields.
func (t *TokenStore) ClearNext(ctx context.Context) error {
	if err := t.repo.DeleteToken(ctx); err != nil {
		return fmt.Errorf("tokenstore: clearNext: %w", err)
	}
	return nil
}
