// Package text implements the normalization primitives used to prepare
// entity names and dates for indexing: token folding, fingerprint keys,
// phonetic keys, and date prefix expansion.
package text

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLen drops single-character tokens from name parts.
const minTokenLen = 2

// minKeyLen drops fingerprint keys too short to block on.
const minKeyLen = 4

var folder = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases a string and strips diacritical marks.
func Fold(value string) string {
	folded, _, err := transform.String(folder, value)
	if err != nil {
		folded = value
	}
	return strings.ToLower(folded)
}

// tokenize folds a name and splits it into cleaned tokens. Punctuation is
// stripped, tokens shorter than minTokenLen are dropped.
func tokenize(name string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return ' '
	}, Fold(name))
	var tokens []string
	for _, token := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(token) >= minTokenLen {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// NameParts tokenizes all names and returns the deduplicated, sorted union
// of their parts.
func NameParts(names []string) []string {
	seen := make(map[string]bool)
	for _, name := range names {
		for _, token := range tokenize(name) {
			seen[token] = true
		}
	}
	return sortedKeys(seen)
}

// NameKeys computes one order-invariant fingerprint per name: the unique
// tokens of the name, sorted and concatenated. Keys shorter than minKeyLen
// are dropped.
func NameKeys(names []string) []string {
	seen := make(map[string]bool)
	for _, name := range names {
		tokens := tokenize(name)
		unique := make(map[string]bool, len(tokens))
		for _, token := range tokens {
			unique[token] = true
		}
		key := strings.Join(sortedKeys(unique), "")
		if len(key) >= minKeyLen {
			seen[key] = true
		}
	}
	return sortedKeys(seen)
}

// PhoneticNames computes double metaphone codes over the parts of each name.
// Short or unencodable parts are skipped.
func PhoneticNames(names []string) []string {
	seen := make(map[string]bool)
	for _, name := range names {
		for _, token := range tokenize(name) {
			if len(token) < 3 {
				continue
			}
			primary, _ := matchr.DoubleMetaphone(token)
			if len(primary) > 1 {
				seen[primary] = true
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
