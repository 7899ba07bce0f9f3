// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package enclave

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vaultkey/kbsclient/internal/attestation"
	"github.com/vaultkey/kbsclient/internal/kbslog"
	"github.com/vaultkey/kbsclient/internal/transport"
	"github.com/vaultkey/kbsclient/models"
)

// AssertionError marks any malformed field, MAC failure, or absent inner
// option — the fatal-by-design class of error this pipeline raises.
type AssertionError struct{ msg string }

func (e *AssertionError) Error() string { return e.msg }

func assertionf(format string, args ...any) error {
	return &AssertionError{msg: fmt.Sprintf(format, args...)}
}

// Client is the generic attested-request pipeline over Transport,
// parameterized per call by a RequestOption.
type Client struct {
	transport transport.Transport
	attester  attestation.RemoteAttestation
	log       *kbslog.Logger
}

// New constructs a Client.
func New(t transport.Transport, attester attestation.RemoteAttestation, log *kbslog.Logger) *Client {
	return &Client{transport: t, attester: attester, log: log}
}

// Request runs the per-call protocol described in the component design:
// obtain a fresh attestation, build and encrypt the inner request, POST
// it, then decrypt and decode the inner response.
func (c *Client) Request(ctx context.Context, opt RequestOption, reqCtx RequestContext, auth *attestation.AuthOption) (models.InnerResponse, error) {
	att, err := c.attester.PerformForKeyBackup(ctx, auth)
	if err != nil {
		return models.InnerResponse{}, fmt.Errorf("enclave: attestation failed: %w", err)
	}

	inner := opt.Attach(reqCtx)
	payload, err := json.Marshal(inner)
	if err != nil {
		return models.InnerResponse{}, fmt.Errorf("enclave: marshal inner request: %w", err)
	}

	iv, ciphertext, mac, err := sealDetached(att.Keys.ClientKey[:], payload, []byte(att.RequestID))
	if err != nil {
		return models.InnerResponse{}, fmt.Errorf("enclave: seal request: %w", err)
	}

	outer := models.OuterRequest{
		RequestID:      att.RequestID,
		Ciphertext:     ciphertext,
		IV:             iv,
		Mac:            mac,
		EnclaveName:    att.EnclaveName,
		AuthUsername:   att.Auth.Username,
		AuthPassword:   att.Auth.Password,
		Cookies:        att.Cookies,
		RequestTypeTag: opt.Tag(),
	}

	outerResp, err := c.transport.MakeRequest(ctx, outer)
	if err != nil {
		return models.InnerResponse{}, fmt.Errorf("enclave: transport: %w", err)
	}
	if len(outerResp.IV) != 12 {
		return models.InnerResponse{}, assertionf("enclave: response iv must be 12 bytes, got %d", len(outerResp.IV))
	}
	if len(outerResp.Mac) != 16 {
		return models.InnerResponse{}, assertionf("enclave: response mac must be 16 bytes, got %d", len(outerResp.Mac))
	}

	plaintext, err := openDetached(att.Keys.ServerKey[:], outerResp.IV, outerResp.Data, outerResp.Mac, nil)
	if err != nil {
		return models.InnerResponse{}, assertionf("enclave: response authentication failed: %v", err)
	}

	var innerResp models.InnerResponse
	if err := json.Unmarshal(plaintext, &innerResp); err != nil {
		return models.InnerResponse{}, assertionf("enclave: malformed inner response: %v", err)
	}
	if innerResp.Status == "" {
		return models.InnerResponse{}, assertionf("enclave: response missing status")
	}

	return innerResp, nil
}

// FetchBackupID returns the backupId to use for the next round trip: the
// one already recorded by a stored token if present, otherwise a fresh
// attestation + bootstrap round trip, whose resulting token is persisted
// via tokenStore before returning.
func (c *Client) FetchBackupID(ctx context.Context, tokenStore TokenReader, auth *attestation.AuthOption) ([]byte, error) {
	existing, err := tokenStore.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("enclave: fetchBackupId: read current token: %w", err)
	}
	if existing != nil {
		return existing.BackupID[:], nil
	}

	att, err := c.attester.PerformForKeyBackup(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("enclave: fetchBackupId: attestation failed: %w", err)
	}

	boot, err := c.transport.Bootstrap(ctx, att.EnclaveName)
	if err != nil {
		return nil, fmt.Errorf("enclave: fetchBackupId: bootstrap: %w", err)
	}

	if err := tokenStore.UpdateNextFromServerBootstrap(ctx, boot); err != nil {
		return nil, fmt.Errorf("enclave: fetchBackupId: persist bootstrap token: %w", err)
	}

	backupID, err := base64.StdEncoding.DecodeString(boot.BackupID)
	if err != nil {
		return nil, assertionf("enclave: fetchBackupId: malformed bootstrap backupId: %v", err)
	}
	return backupID, nil
}

// TokenReader is the slice of TokenStore's contract FetchBackupID needs,
// kept narrow so tests can supply a minimal fake without depending on the
// full keystore package.
type TokenReader interface {
	Current(ctx context.Context) (*models.Token, error)
	UpdateNextFromServerBootstrap(ctx context.Context, boot models.ServerBootstrapToken) error
}
