// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

// Package fingerprint computes stable content hashes over row values.
//
// The fingerprint is the sole equality test for change detection: two rows
// with identical business content (ignoring case, surrounding whitespace, and
// null representation) always produce the same digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NullToken is the sentinel substituted for empty or missing values before
// hashing, so that "", NULL, and whitespace-only values hash identically.
const NullToken = "<NULL>"

// separator joins normalized values. Values are trimmed and upper-cased
// first, so the token cannot be produced by normalization itself.
const separator = "||"

// Row computes the fingerprint of an ordered list of column values.
// Each value is trimmed and upper-cased; empty values become NullToken.
// The result is a lowercase hex SHA-256 digest.
func Row(values []string) string {
	normalized := make([]string, len(values))
	for i, v := range values {
		normalized[i] = Normalize(v)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, separator)))
	return hex.EncodeToString(sum[:])
}

// RowAny computes the fingerprint of scanned database values, stringifying
// each via fmt. Nil values become NullToken.
func RowAny(values []any) string {
	strs := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			strs[i] = ""
			continue
		}
		strs[i] = fmt.Sprint(v)
	}
	return Row(strs)
}

// Normalize returns the canonical form of a single value as used in
// fingerprinting: trimmed, upper-cased, with empty mapped to NullToken.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NullToken
	}
	return strings.ToUpper(v)
}

// Checksum computes the lowercase hex SHA-256 digest of raw bytes.
// Used for file-level integrity records in the intake audit log.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
