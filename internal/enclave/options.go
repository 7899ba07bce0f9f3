// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package enclave implements the generic attested-request pipeline of
// EnclaveClient, parameterized by a RequestOption capability per operation
// (backup, restore, delete). Static dispatch is preferred over a runtime
// enum switch, per the design notes: three package-level values
// (BackupOption, RestoreOption, DeleteOption) each know their own wire tag
// and how to shape the inner request.
package enclave

import (
	"github.com/vaultkey/kbsclient/models"
)

// RequestContext carries every field a RequestOption might need to build
// an InnerRequest. Not every field is used by every option (e.g. Data and
// Tries are backup-only); unused fields are simply left at their zero
// value, which InnerRequest's `omitempty` tags drop from the wire payload.
type RequestContext struct {
	Token     models.Token
	BackupID  []byte
	ServiceID []byte
	ValidFrom int64
	AccessKey []byte // the PIN-derived access key, sent as InnerRequest.Pin
	Data      []byte // the sealed envelope; backup-only
	Tries     uint32 // backup-only
}

// RequestOption abstracts the three concrete inner requests with two
// affordances: a stable wire tag, and attaching the per-operation fields
// to an outer-request builder context.
type RequestOption interface {
	Tag() models.RequestTag
	Attach(ctx RequestContext) models.InnerRequest
}

type backupOption struct{}

func (backupOption) Tag() models.RequestTag { return models.RequestTagBackup }
func (backupOption) Attach(ctx RequestContext) models.InnerRequest {
	return models.InnerRequest{
		Data:      ctx.Data,
		Pin:       ctx.AccessKey,
		Token:     ctx.Token.Data[:],
		BackupID:  ctx.BackupID,
		Tries:     ctx.Tries,
		ServiceID: ctx.ServiceID,
		ValidFrom: ctx.ValidFrom,
	}
}

type restoreOption struct{}

func (restoreOption) Tag() models.RequestTag { return models.RequestTagRestore }
func (restoreOption) Attach(ctx RequestContext) models.InnerRequest {
	return models.InnerRequest{
		Pin:       ctx.AccessKey,
		Token:     ctx.Token.Data[:],
		BackupID:  ctx.BackupID,
		ServiceID: ctx.ServiceID,
		ValidFrom: ctx.ValidFrom,
	}
}

type deleteOption struct{}

func (deleteOption) Tag() models.RequestTag { return models.RequestTagDelete }
func (deleteOption) Attach(ctx RequestContext) models.InnerRequest {
	return models.InnerRequest{
		Pin:       ctx.AccessKey,
		Token:     ctx.Token.Data[:],
		BackupID:  ctx.BackupID,
		ServiceID: ctx.ServiceID,
		ValidFrom: ctx.ValidFrom,
	}
}

// BackupOption, RestoreOption, DeleteOption are the three concrete
// RequestOption implementations BackupProtocol selects between.
var (
	BackupOption  RequestOption = backupOption{}
	RestoreOption RequestOption = restoreOption{}
	DeleteOption  RequestOption = deleteOption{}
)
