// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package backup

import "fmt"

// InvalidPin is returned when the enclave authoritatively rejects the
// derived access key: the caller's PIN was wrong. TriesRemaining is the
// server's count of remaining attempts before the backup is destroyed.
type InvalidPin struct {
	TriesRemaining uint32
}

func (e *InvalidPin) Error() string {
	return fmt.Sprintf("backup: invalid pin, %d tries remaining", e.TriesRemaining)
}

// BackupMissing is returned when the enclave reports no record exists for
// the current backupId: the master key is unrecoverable via this service.
type BackupMissing struct{}

func (e *BackupMissing) Error() string { return "backup: no backup exists for this account" }

// AssertionError marks any unexpected shape violation this protocol
// encounters: a spent token, clock skew, decryption failure, or a response
// status it has no other classification for.
type AssertionError struct{ msg string }

func (e *AssertionError) Error() string { return e.msg }

func assertionf(format string, args ...any) error {
	return &AssertionError{msg: fmt.Sprintf(format, args...)}
}
