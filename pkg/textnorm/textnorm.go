// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// Package textnorm normalizes free-form Unicode text for storage and search.
//
// # Usage
//
// Operator-entered full names arrive from several front-ends with mixed
// Unicode composition (NFC vs NFD) and stray whitespace. Storing and searching
// in one canonical composition keeps ILIKE lookups deterministic across
// clients.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean trims surrounding whitespace, collapses internal runs of whitespace to
// a single space, and recomposes the string to NFC.
//
// It is applied to every persisted display name so that equality and prefix
// search behave identically regardless of which client produced the input.
func Clean(s string) string {
	trimmed := strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(trimmed)
}

// FoldSearch prepares a user-supplied search term for ILIKE matching.
//
// # Transformation Pipeline
//
// 1. Decomposes to NFD and strips combining marks (é → e).
// 2. Lowercases the result.
// 3. Collapses whitespace.
//
// Latin names entered with accents then match their unaccented stored form;
// Ge'ez script passes through untouched.
func FoldSearch(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	return Clean(strings.ToLower(folded))
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
