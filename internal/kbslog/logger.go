// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package kbslog provides a thin wrapper around zerolog.Logger used
// throughout the kbsclient packages: a role field, a caller field, and a
// Nop() constructor for tests.
//
// Log statements in this module never include PIN material, master keys,
// derived keys, or access keys — only identifiers (backupId, requestId)
// and status fields are logged.
package kbslog

import (
	"context"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger embeds zerolog.Logger so the full zerolog API is available
// directly on *Logger.
type Logger struct {
	zerolog.Logger
}

// New constructs a *Logger for the given role (e.g. "enclave-client",
// "keystore"), writing JSON to stdout with a caller field recording the
// fully-qualified function name.
func New(role string) *Logger {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return runtime.FuncForPC(pc).Name()
	}
	zerolog.CallerFieldName = "func"

	logger := zerolog.New(os.Stdout).With().
		Str("role", role).
		Timestamp().
		Caller().
		Logger()

	return &Logger{logger}
}

// Nop returns a *Logger that discards all output. Tests use this so a
// failing assertion's output isn't buried in JSON log lines.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// FromContext extracts the zerolog.Logger stored in ctx, falling back to
// zerolog.DefaultContextLogger if none was attached, or to a disabled logger
// when that is nil as well.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}

// Child returns a new *Logger inheriting the receiver's fields.
func (l *Logger) Child() *Logger {
	return &Logger{l.With().Logger()}
}
