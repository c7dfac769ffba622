// Package tokenizer splits document text into the distinct tokens that get
// a posting. Text is split on maximal runs of non-word characters; a word
// character is a Unicode letter, mark, decimal digit, letter number,
// connector punctuation (which includes '_') or a zero-width joiner or
// non-joiner. Token text is returned unmodified: case
// folding happens only when a token is turned into a storage key.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"
)

// Tokenize returns the set of distinct tokens in text. Repeated occurrences
// collapse to one entry.
func Tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(text, isSeparator)
	tokens := make(map[string]struct{}, len(words)/2+1)
	for _, word := range words {
		tokens[word] = struct{}{}
	}
	return tokens
}

const (
	zeroWidthNonJoiner = '\u200c'
	zeroWidthJoiner    = '\u200d'
)

// IsWordRune reports whether r belongs inside a token.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) ||
		unicode.IsDigit(r) ||
		unicode.IsMark(r) ||
		unicode.Is(unicode.Nl, r) ||
		unicode.Is(unicode.Pc, r) ||
		r == zeroWidthNonJoiner ||
		r == zeroWidthJoiner
}

// Sorted returns the tokens of a set in lexical order.
func Sorted(tokens map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for tok := range tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func isSeparator(r rune) bool {
	return !IsWordRune(r)
}
