// Package text provides utilities for text processing shared by the aggregation
// pipeline and the summarizers: rune counting, cleaning, truncation and hashing.
package text

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// CountRunes counts the number of Unicode characters (runes) in the given text.
// Multi-byte characters and emoji count as one.
//
//	CountRunes("hello")  // 5
//	CountRunes("naïve")  // 5
//	CountRunes("")       // 0
func CountRunes(text string) int {
	return len([]rune(text))
}

var whitespace = regexp.MustCompile(`\s+`)

// boilerplateMarkers are interstitial strings left behind by extraction.
var boilerplateMarkers = []string{"Advertisement"}

// Clean collapses whitespace runs into a single space, removes boilerplate
// markers and trims the result.
func Clean(text string) string {
	text = whitespace.ReplaceAllString(text, " ")
	for _, marker := range boilerplateMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}
	// removing a marker can leave a double space behind
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate returns at most maxRunes runes of text. A non-positive limit disables truncation.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}

// Ellipsize shortens text to at most maxRunes runes, cutting at the last word
// boundary and appending "...".
func Ellipsize(text string, maxRunes int) string {
	runes := []rune(text)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return text
	}
	cut := string(runes[:maxRunes])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// HashEmail returns a short, stable pseudonym for an address so logs never carry it in clear.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])[:12]
}
