// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package backup implements the backup / restore / delete state machine
// over EnclaveClient and KeyStore: the orchestration layer that turns a
// user's PIN into recovered (or newly escrowed) master-key material while
// enforcing the enclave's one-shot token and rate-limit discipline.
package backup

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/vaultkey/kbsclient/internal/attestation"
	"github.com/vaultkey/kbsclient/internal/enclave"
	"github.com/vaultkey/kbsclient/internal/envelope"
	"github.com/vaultkey/kbsclient/internal/kbslog"
	"github.com/vaultkey/kbsclient/internal/kdf"
	"github.com/vaultkey/kbsclient/internal/keystore"
	pinnorm "github.com/vaultkey/kbsclient/internal/pin"
	"github.com/vaultkey/kbsclient/models"
)

// EnclaveRequester is the slice of EnclaveClient's contract Protocol needs.
// Keeping it narrow lets tests supply a fake without standing up a real
// Transport or RemoteAttestation.
type EnclaveRequester interface {
	Request(ctx context.Context, opt enclave.RequestOption, reqCtx enclave.RequestContext, auth *attestation.AuthOption) (models.InnerResponse, error)
	FetchBackupID(ctx context.Context, tokenStore enclave.TokenReader, auth *attestation.AuthOption) ([]byte, error)
}

// Protocol is the backup/restore/delete state machine. It owns no network
// or storage resources directly; every effect goes through KeyStore or
// EnclaveRequester.
type Protocol struct {
	keyStore *keystore.KeyStore
	enclave  EnclaveRequester
	log      *kbslog.Logger

	encParams kdf.EncryptionAccessParams
	verParams kdf.VerificationParams

	isAccountReady bool
}

// New constructs a Protocol with production Argon2 parameters.
// isAccountReady gates whether a successful generateAndBackup/restore
// triggers the manifestNeedsRebuild/sendKeysSyncMessage events (it reflects
// account state external to this module).
func New(ks *keystore.KeyStore, enclaveClient EnclaveRequester, log *kbslog.Logger, isAccountReady bool) *Protocol {
	return &Protocol{
		keyStore:       ks,
		enclave:        enclaveClient,
		log:            log,
		encParams:      kdf.DefaultEncryptionAccessParams(),
		verParams:      kdf.DefaultVerificationParams(),
		isAccountReady: isAccountReady,
	}
}

// WithParams overrides the Argon2 tuning, for tests that need cheap hashing.
func (p *Protocol) WithParams(enc kdf.EncryptionAccessParams, ver kdf.VerificationParams) *Protocol {
	p.encParams = enc
	p.verParams = ver
	return p
}

// Restore is the canonical restore flow: fetch the backupId, derive keys
// from the pin, make an attested restore request, branch on the response
// status, and on success open the envelope, immediately re-back-up to reset
// the server's attempt counter, and persist the recovered master key.
func (p *Protocol) Restore(ctx context.Context, rawPin string, auth *attestation.AuthOption) error {
	backupID, err := p.enclave.FetchBackupID(ctx, p.keyStore.Tokens, auth)
	if err != nil {
		return fmt.Errorf("backup: restore: fetch backupId: %w", err)
	}

	encKey, accessKey, err := kdf.DeriveEncryptionAndAccessKey(p.encParams, rawPin, backupID)
	if err != nil {
		return fmt.Errorf("backup: restore: derive keys: %w", err)
	}

	tok, err := p.currentToken(ctx)
	if err != nil {
		return err
	}

	resp, err := p.enclave.Request(ctx, enclave.RestoreOption, enclave.RequestContext{
		Token:     tok,
		BackupID:  backupID,
		AccessKey: accessKey,
	}, auth)
	if err != nil {
		return fmt.Errorf("backup: restore: %w", err)
	}

	if resp.Status != models.StatusMissing {
		tries := resp.Tries
		if err := p.keyStore.Tokens.UpdateNext(ctx, resp.Token, nil, &tries); err != nil {
			return fmt.Errorf("backup: restore: update token: %w", err)
		}
	}

	switch resp.Status {
	case models.StatusTokenMismatch:
		return assertionf("backup: restore: spent token; retry with a fresh token")
	case models.StatusPinMismatch:
		return &InvalidPin{TriesRemaining: resp.Tries}
	case models.StatusMissing:
		return &BackupMissing{}
	case models.StatusNotYetValid:
		return assertionf("backup: restore: server rejected request as not yet valid (clock skew)")
	case models.StatusOk:
		// handled below
	default:
		return assertionf("backup: restore: unrecognized response status %q", resp.Status)
	}

	if len(resp.Data) == 0 {
		return assertionf("backup: restore: ok response missing envelope data")
	}
	masterKeyBytes, err := envelope.Open(resp.Data, encKey)
	if err != nil {
		return assertionf("backup: restore: open envelope: %v", err)
	}
	var masterKey models.MasterKey
	copy(masterKey[:], masterKeyBytes)

	if err := p.rebackup(ctx, backupID, accessKey, resp.Data, auth); err != nil {
		return err
	}

	verificationString, err := p.deriveVerificationString(rawPin)
	if err != nil {
		return fmt.Errorf("backup: restore: derive verification string: %w", err)
	}

	if err := p.keyStore.Store(ctx, masterKey, models.PinTypeOf(pinnorm.Normalize(rawPin)), verificationString, p.isAccountReady); err != nil {
		return fmt.Errorf("backup: restore: store recovered key: %w", err)
	}
	return nil
}

// GenerateAndBackup escrows the current (or a freshly generated) master key
// under a key derived from rawPin, with a full attempt budget.
func (p *Protocol) GenerateAndBackup(ctx context.Context, rawPin string, auth *attestation.AuthOption) error {
	backupID, err := p.enclave.FetchBackupID(ctx, p.keyStore.Tokens, auth)
	if err != nil {
		return fmt.Errorf("backup: generateAndBackup: fetch backupId: %w", err)
	}

	var masterKey models.MasterKey
	if cached := p.keyStore.Cache().MasterKey(); cached != nil {
		masterKey = *cached
	} else if _, err := io.ReadFull(rand.Reader, masterKey[:]); err != nil {
		return fmt.Errorf("backup: generateAndBackup: generate master key: %w", err)
	}

	encKey, accessKey, err := kdf.DeriveEncryptionAndAccessKey(p.encParams, rawPin, backupID)
	if err != nil {
		return fmt.Errorf("backup: generateAndBackup: derive keys: %w", err)
	}

	env, err := envelope.Seal(masterKey[:], encKey)
	if err != nil {
		return fmt.Errorf("backup: generateAndBackup: seal envelope: %w", err)
	}

	tok, err := p.currentToken(ctx)
	if err != nil {
		return err
	}

	resp, err := p.enclave.Request(ctx, enclave.BackupOption, enclave.RequestContext{
		Token:     tok,
		BackupID:  backupID,
		AccessKey: accessKey,
		Data:      env,
		Tries:     models.MaximumKeyAttempts,
	}, auth)
	if err != nil {
		if setErr := p.keyStore.SetBackupKeyRequestFailed(ctx, true); setErr != nil {
			p.log.Error().Err(setErr).Msg("backup: generateAndBackup: failed to record backup-failed flag")
		}
		return fmt.Errorf("backup: generateAndBackup: %w", err)
	}

	tries := resp.Tries
	if err := p.keyStore.Tokens.UpdateNext(ctx, resp.Token, nil, &tries); err != nil {
		return fmt.Errorf("backup: generateAndBackup: update token: %w", err)
	}

	if err := p.classifyBackupResponse(resp.Status); err != nil {
		return err
	}
	if resp.Status == models.StatusAlreadyExists {
		return nil
	}

	verificationString, err := p.deriveVerificationString(rawPin)
	if err != nil {
		return fmt.Errorf("backup: generateAndBackup: derive verification string: %w", err)
	}

	if err := p.keyStore.Store(ctx, masterKey, models.PinTypeOf(pinnorm.Normalize(rawPin)), verificationString, p.isAccountReady); err != nil {
		return fmt.Errorf("backup: generateAndBackup: store key: %w", err)
	}
	return nil
}

// DeleteKeys sends a best-effort delete request to the enclave, then
// unconditionally clears local key and token state regardless of the
// enclave outcome.
func (p *Protocol) DeleteKeys(ctx context.Context, auth *attestation.AuthOption) error {
	tok, err := p.keyStore.Tokens.Current(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("backup: deleteKeys: failed to read current token, clearing locally only")
	} else if tok != nil {
		if _, reqErr := p.enclave.Request(ctx, enclave.DeleteOption, enclave.RequestContext{
			Token:    *tok,
			BackupID: tok.BackupID[:],
		}, auth); reqErr != nil {
			p.log.Warn().Err(reqErr).Msg("backup: deleteKeys: enclave request failed, clearing local state anyway")
		}
	}

	if err := p.keyStore.ClearKeys(ctx); err != nil {
		return fmt.Errorf("backup: deleteKeys: clear keys: %w", err)
	}
	if err := p.keyStore.Tokens.ClearNext(ctx); err != nil {
		return fmt.Errorf("backup: deleteKeys: clear token: %w", err)
	}
	return nil
}

// rebackup re-escrows the just-restored envelope to reset the server's
// attempt counter to the maximum, per the restore flow's rationale: a
// successful restore alone does not reset tries.
func (p *Protocol) rebackup(ctx context.Context, backupID, accessKey, envelopeData []byte, auth *attestation.AuthOption) error {
	tok, err := p.currentToken(ctx)
	if err != nil {
		return err
	}

	resp, err := p.enclave.Request(ctx, enclave.BackupOption, enclave.RequestContext{
		Token:     tok,
		BackupID:  backupID,
		AccessKey: accessKey,
		Data:      envelopeData,
		Tries:     models.MaximumKeyAttempts,
	}, auth)
	if err != nil {
		return fmt.Errorf("backup: rebackup: %w", err)
	}

	tries := resp.Tries
	if err := p.keyStore.Tokens.UpdateNext(ctx, resp.Token, nil, &tries); err != nil {
		return fmt.Errorf("backup: rebackup: update token: %w", err)
	}

	return p.classifyBackupResponse(resp.Status)
}

// classifyBackupResponse applies the branching a backup response gets in
// both generateAndBackup and the restore flow's rebackup step: ok and
// alreadyExists both continue (alreadyExists only logs, since the token was
// already spent and the next token is now fresh); anything else is fatal.
func (p *Protocol) classifyBackupResponse(status models.ResponseStatus) error {
	switch status {
	case models.StatusOk:
		return nil
	case models.StatusAlreadyExists:
		p.log.Info().Msg("backup: server already held a record under the spent token; continuing with the fresh token")
		return nil
	case models.StatusNotYetValid:
		return assertionf("backup: server rejected request as not yet valid (clock skew)")
	default:
		return assertionf("backup: unrecognized backup response status %q", status)
	}
}

// currentToken requires a token to already be present, which FetchBackupID
// guarantees before either entry point reaches here.
func (p *Protocol) currentToken(ctx context.Context) (models.Token, error) {
	tok, err := p.keyStore.Tokens.Current(ctx)
	if err != nil {
		return models.Token{}, fmt.Errorf("backup: read current token: %w", err)
	}
	if tok == nil {
		return models.Token{}, assertionf("backup: no token available; fetchBackupId must run first")
	}
	return *tok, nil
}

func (p *Protocol) deriveVerificationString(rawPin string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("backup: generate verification salt: %w", err)
	}
	return kdf.DeriveVerificationString(p.verParams, rawPin, salt)
}
