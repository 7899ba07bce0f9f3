// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/vaultkey/kbsclient/internal/pin"
)

// AssertionError marks an unexpected shape violation: a length check that
// should never fail outside a caller bug.
type AssertionError struct{ msg string }

func (e *AssertionError) Error() string { return e.msg }

func assertionf(format string, args ...any) error {
	return &AssertionError{msg: fmt.Sprintf(format, args...)}
}

const argon2Version = 0x13

// DeriveEncryptionAndAccessKey computes Argon2id over the normalized PIN
// with salt=backupID, using p, and splits the output into two equal
// halves: encKey (bytes [0, n/2)) and accessKey (bytes [n/2, n)).
// backupID must be exactly 32 bytes.
func DeriveEncryptionAndAccessKey(p EncryptionAccessParams, rawPin string, backupID []byte) (encKey, accessKey []byte, err error) {
	if len(backupID) != 32 {
		return nil, nil, assertionf("kdf: backupId must be 32 bytes, got %d", len(backupID))
	}
	if p.KeyLen%2 != 0 {
		return nil, nil, assertionf("kdf: keyLen must be even, got %d", p.KeyLen)
	}

	normalized := pin.Normalize(rawPin)
	out := argon2.IDKey([]byte(normalized), backupID, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLen)

	half := p.KeyLen / 2
	encKey = append([]byte(nil), out[:half]...)
	accessKey = append([]byte(nil), out[half:]...)
	return encKey, accessKey, nil
}

// verificationString is the PHC-style encoded form of an Argon2i hash:
// $argon2i$v=19$m=<kib>,t=<iter>,p=<par>$<salt-b64>$<hash-b64>
const verificationStringFormat = "$argon2i$v=%d$m=%d,t=%d,p=%d$%s$%s"

// DeriveVerificationString hashes the normalized PIN with Argon2i under the
// given 16-byte salt and p, and returns the PHC-style encoded string: a
// self-describing salt + parameters + hash, suitable for storage and later
// comparison by VerifyPin.
func DeriveVerificationString(p VerificationParams, rawPin string, salt []byte) (string, error) {
	if len(salt) != 16 {
		return "", assertionf("kdf: verification salt must be 16 bytes, got %d", len(salt))
	}

	normalized := pin.Normalize(rawPin)
	hash := argon2.Key([]byte(normalized), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLen)

	return fmt.Sprintf(verificationStringFormat,
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPin recomputes the Argon2i hash for rawPin using the parameters and
// salt encoded in encoded, and compares it in constant time against the
// stored hash. It never returns an error: any parse failure, any
// unsupported parameter set, or a hash mismatch all simply yield false.
func VerifyPin(rawPin string, encoded string) bool {
	version, memKiB, iterations, parallelism, salt, wantHash, ok := parseVerificationString(encoded)
	if !ok || version != argon2Version {
		return false
	}
	// argon2.Key panics on these; an encoded string carrying them cannot verify.
	if iterations < 1 || parallelism < 1 || len(wantHash) == 0 {
		return false
	}

	normalized := pin.Normalize(rawPin)
	gotHash := argon2.Key([]byte(normalized), salt, iterations, memKiB, parallelism, uint32(len(wantHash)))

	return subtle.ConstantTimeCompare(gotHash, wantHash) == 1
}

func parseVerificationString(encoded string) (version int, memKiB, iterations uint32, parallelism uint8, salt, hash []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	// parts[0] is "" because the string starts with "$".
	if len(parts) != 6 || parts[1] != "argon2i" {
		return
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return
	}
	v, err := strconv.Atoi(parts[2][len("v="):])
	if err != nil {
		return
	}

	var m, t uint64
	var par uint64
	for _, kv := range strings.Split(parts[3], ",") {
		pieces := strings.SplitN(kv, "=", 2)
		if len(pieces) != 2 {
			return
		}
		val, convErr := strconv.ParseUint(pieces[1], 10, 32)
		if convErr != nil {
			return
		}
		switch pieces[0] {
		case "m":
			m = val
		case "t":
			t = val
		case "p":
			par = val
		default:
			return
		}
	}

	s, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return
	}
	h, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return
	}

	return v, uint32(m), uint32(t), uint8(par), s, h, true
}

// DeriveNamed computes HMAC-SHA-256(parentKey, label), the domain
// separation primitive used to walk the DerivedKey parent chain.
func DeriveNamed(parentKey []byte, label string) []byte {
	mac := hmac.New(sha256.New, parentKey)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}
