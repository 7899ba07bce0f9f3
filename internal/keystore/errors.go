// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package keystore

import "errors"

var (
	// ErrBeginningTransaction is returned when the database driver cannot
	// open a transaction for a multi-key write.
	ErrBeginningTransaction = errors.New("keystore: failed to begin transaction")

	// ErrCommitingTransaction is returned when committing an open
	// transaction for a multi-key write fails.
	ErrCommitingTransaction = errors.New("keystore: failed to commit transaction")
)
