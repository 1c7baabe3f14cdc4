// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

// Package slug derives URL-safe ASCII identifiers from tenant names.
//
// # Usage
//
// Every tenant gets a workspace slug at registration: "Büro Müller GmbH"
// becomes "buro-muller-gmbh", which then appears in workspace URLs and must
// be unique. Uniqueness (numbered suffixes on collision) is the registration
// service's job; this package only handles the text transformation.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// nonAlphanumeric matches runs of characters that survive the rune map
	// but are not legal in a slug.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9-]+`)
	// multiHyphen collapses consecutive hyphens left by adjacent separators.
	multiHyphen = regexp.MustCompile(`-{2,}`)
)

// From converts an arbitrary Unicode string into a lowercase ASCII slug.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD so accented letters decompose (é → e + combining acute).
// 2. Strips the combining marks, leaving the base letters.
// 3. Lowercases the result.
// 4. Maps every non-letter, non-digit rune to a hyphen.
// 5. Collapses hyphen runs and trims hyphens from both ends.
//
// The empty string comes back for input with no usable characters; callers
// decide what a tenant with an all-punctuation name should be called.
func From(s string) string {
	// 1. Normalize and remove accents
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	result, _, _ := transform.String(t, s)

	// 2. Lowercase
	result = strings.ToLower(result)

	// 3. Replace whitespace and punctuation with hyphens
	result = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, result)

	// 4. Clean up hyphenation
	result = nonAlphanumeric.ReplaceAllString(result, "-")
	result = multiHyphen.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	return result
}

// isMn reports whether r is a Unicode non-spacing mark (accents and the like).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
