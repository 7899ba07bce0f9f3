// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package pin canonicalizes user-entered PIN strings so that the same
// logical PIN always hashes identically regardless of surrounding
// whitespace, digit script, or Unicode composition.
package pin

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// digitScriptStarts lists the first code point (the digit zero) of common
// non-ASCII decimal digit scripts. Each entry covers a contiguous ten-digit
// block.
var digitScriptStarts = []rune{
	0x0660, // Arabic-Indic
	0x06F0, // Extended Arabic-Indic
	0x0966, // Devanagari
	0x09E6, // Bengali
	0x0E50, // Thai
	0xFF10, // Fullwidth
}

// Normalize canonicalizes a PIN per three steps, applied in order:
//
//  1. trim leading/trailing whitespace;
//  2. if the trimmed string consists entirely of decimal digits (in any
//     script), map every digit to its ASCII equivalent;
//  3. apply Unicode NFKD normalization.
//
// Normalize is pure, deterministic, and total: it never errors.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if allDigits(trimmed) {
		trimmed = toASCIIDigits(trimmed)
	}

	return norm.NFKD.String(trimmed)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if digitValue(r) < 0 {
			return false
		}
	}
	return true
}

func toASCIIDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		v := digitValue(r)
		b.WriteRune('0' + rune(v))
	}
	return b.String()
}

// digitValue returns 0-9 if r is a Unicode decimal digit (category Nd, ASCII
// included), or -1 otherwise.
func digitValue(r rune) int {
	if r >= '0' && r <= '9' {
		return int(r - '0')
	}
	for _, start := range digitScriptStarts {
		if r >= start && r < start+10 {
			return int(r - start)
		}
	}
	if unicode.IsDigit(r) {
		// Unicode lays out every decimal digit script as contiguous runs of
		// 0-9, so the offset from the start of the run gives the value.
		n := 0
		for unicode.IsDigit(r - rune(n) - 1) {
			n++
		}
		return n % 10
	}
	return -1
}
