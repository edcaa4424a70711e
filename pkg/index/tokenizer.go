// Package index turns stored books into entries in the distributed inverted
// index and keeps the index consistent across restarts.
package index

import (
	"strings"
	"unicode"
)

// stopwords are never indexed. The set is fixed so that every indexer node
// produces identical postings for identical text.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {},
	"for": {}, "from": {},
	"has": {}, "have": {}, "he": {}, "her": {}, "hers": {}, "him": {}, "his": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"me": {}, "my": {},
	"not": {},
	"of":  {}, "on": {}, "or": {}, "our": {},
	"she": {}, "so": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "with": {},
	"you": {}, "your": {},
}

// Tokenize lowercases the text, splits on every non-letter rune and returns
// the distinct terms of length three or more that are not stopwords. Order
// is first occurrence.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// IsStopword reports whether the lowercased word is in the fixed stopword
// set.
func IsStopword(word string) bool {
	_, ok := stopwords[strings.ToLower(word)]
	return ok
}
