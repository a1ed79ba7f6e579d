// Package textnorm canonicalizes free chat text so that player messages,
// quest keywords and channel names can be compared regardless of case,
// accents, typographic apostrophes or stray whitespace.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// apostrophes lists the typographic variants that players' keyboards and
// phones substitute for a plain ASCII apostrophe.
var apostrophes = map[rune]bool{
	'’': true, // right single quotation mark
	'‘': true, // left single quotation mark
	'ʼ': true, // modifier letter apostrophe
	'′': true, // prime
	'`': true, // grave accent
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}

func straightenApostrophe(r rune) rune {
	if apostrophes[r] {
		return '\''
	}
	return r
}

// newChain builds a fresh transformer; transformers carry state and are not
// safe to share across goroutines. Lower rather than Fold: folding maps
// Cherokee to its uppercase block, which Fold does not map back.
func newChain() transform.Transformer {
	return transform.Chain(
		cases.Lower(language.Und),
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(isZeroWidth)),
		runes.Map(straightenApostrophe),
		norm.NFC,
	)
}

// Normalize returns the canonical comparison form of text: lower-cased,
// diacritics removed, apostrophes straightened, zero-width characters
// dropped and whitespace collapsed to single spaces. It never fails and is
// idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	out, _, err := transform.String(newChain(), text)
	if err != nil {
		// Only reachable on malformed input; degrade to plain lower-casing.
		out = strings.ToLower(text)
	}

	return strings.Join(strings.Fields(out), " ")
}

// Contains reports whether the normalized form of needle occurs inside the
// already-normalized haystack. An empty needle always matches.
func Contains(normalizedHaystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return true
	}
	return strings.Contains(normalizedHaystack, n)
}
