// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package transport is the concrete HTTP implementation of the
// EnclaveClient's Transport collaborator, built on resty the way the
// teacher's internal/adapter builds its ServerAdapter.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vaultkey/kbsclient/models"
)

// Transport is the collaborator abstraction EnclaveClient calls through,
// per the external-interfaces contract: makeRequest(request) -> (response,
// body).
type Transport interface {
	MakeRequest(ctx context.Context, req models.OuterRequest) (models.OuterResponse, error)
	Bootstrap(ctx context.Context, enclaveName string) (models.ServerBootstrapToken, error)
}

type httpTransport struct {
	client *resty.Client
}

// New constructs an HTTP Transport POSTing to baseURL + "/v1/backup/{tag}".
// baseURL is normalized before use (scheme defaulted to https, trailing
// slash trimmed).
func New(baseURL string, requestTimeout time.Duration) (Transport, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid enclave address: %w", err)
	}

	client := resty.New().
		SetBaseURL(normalized).
		SetTimeout(requestTimeout)

	return &httpTransport{client: client}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// MakeRequest POSTs the outer request to /v1/backup/{requestTypeTag} with
// the enclave's basic-auth credentials and cookie header attached, and
// decodes the outer response.
func (h *httpTransport) MakeRequest(ctx context.Context, req models.OuterRequest) (models.OuterResponse, error) {
	var out models.OuterResponse

	r := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBasicAuth(req.AuthUsername, req.AuthPassword).
		SetBody(req).
		SetResult(&out)

	if req.Cookies != "" {
		r.SetHeader("Cookie", req.Cookies)
	}

	resp, err := r.Post("/v1/backup/" + string(req.RequestTypeTag))
	if err != nil {
		return models.OuterResponse{}, fmt.Errorf("transport: request failed: %w", err)
	}
	if resp.IsError() {
		return models.OuterResponse{}, fmt.Errorf("transport: enclave returned %s", resp.Status())
	}

	return out, nil
}

// Bootstrap fetches the initial token for a fresh backupId from the
// enclave's bootstrap endpoint.
func (h *httpTransport) Bootstrap(ctx context.Context, enclaveName string) (models.ServerBootstrapToken, error) {
	var boot models.ServerBootstrapToken

	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("enclaveName", enclaveName).
		SetResult(&boot).
		Get("/v1/backup/bootstrap")
	if err != nil {
		return models.ServerBootstrapToken{}, fmt.Errorf("transport: bootstrap failed: %w", err)
	}
	if resp.IsError() {
		return models.ServerBootstrapToken{}, fmt.Errorf("transport: bootstrap returned %s", resp.Status())
	}

	return boot, nil
}
