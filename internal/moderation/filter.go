// Package moderation provides content filtering for chat messages and display
// names. It screens text for prohibited content before delivery to a partner
// and flags abuse reports for human review.
package moderation

import (
	"strings"
	"unicode"
)

// FilterResult describes the outcome of a content check.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched blocklist term or spam check name
}

// Filter screens text against a keyword blocklist and spam heuristics.
// All state is immutable after construction, so a single Filter is safe
// for concurrent use.
type Filter struct {
	words   map[string]struct{} // single-word blocklist terms
	phrases [][]string          // multi-word terms as token sequences
	terms   map[string]string   // normalized first token -> canonical term (single words)
}

// defaultBlocklist covers slurs, harassment, sexual exploitation, extremism,
// violence and common scam bait. Multi-word entries are matched as exact
// token sequences.
var defaultBlocklist = []string{
	// slurs
	"nigger", "nigga", "faggot", "kike", "spic", "chink", "tranny", "wetback",
	// harassment / self-harm
	"kill yourself", "go die", "kys", "neck yourself",
	// sexual exploitation
	"child porn", "child pornography", "cp trade", "send nudes", "underage nudes",
	// extremism
	"heil hitler", "white power", "gas the jews", "race war",
	// violence
	"bomb threat", "school shooting", "shoot up",
	// scams
	"free bitcoin", "free crypto", "crypto giveaway", "cash app flip",
}

// NewFilter creates a Filter with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultBlocklist)
}

// NewFilterWithTerms creates a Filter from the given terms. Empty and
// whitespace-only terms are ignored. Terms containing spaces are treated as
// phrases and matched as consecutive token sequences.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{
		words: make(map[string]struct{}),
		terms: make(map[string]string),
	}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		tokens := tokenizePlain(term)
		switch len(tokens) {
		case 0:
			continue
		case 1:
			f.words[tokens[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, tokens)
		}
	}
	return f
}

// Check screens text and returns a blocking FilterResult on the first match.
// Keyword matches take priority over spam patterns. Matching is
// case-insensitive, ignores punctuation and catches common leetspeak
// substitutions; blocklist words only match whole tokens, so "class" never
// trips on an embedded term.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)

	plain := tokenizePlain(lower)
	for _, tok := range plain {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}

	// Second pass with leetspeak normalization. Tokens are split on
	// whitespace only so substitution characters like "$" and "!" stay
	// inside the token.
	for _, tok := range tokenizeLeet(lower) {
		norm := normalizeLeet(tok)
		norm = strings.TrimFunc(norm, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if _, ok := f.words[norm]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}

	if term, ok := f.matchPhrase(plain); ok {
		return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term}
	}

	return f.checkSpamPatterns(text)
}

// CheckDisplayName screens a proposed display name. It reuses the keyword
// blocklist but skips the spam heuristics, which are tuned for sentences.
func (f *Filter) CheckDisplayName(name string) FilterResult {
	lower := strings.ToLower(name)

	plain := tokenizePlain(lower)
	for _, tok := range plain {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}
	for _, tok := range tokenizeLeet(lower) {
		norm := normalizeLeet(tok)
		if _, ok := f.words[norm]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}
	if term, ok := f.matchPhrase(plain); ok {
		return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term}
	}
	return FilterResult{}
}

// matchPhrase scans the token sequence for any blocklisted phrase.
func (f *Filter) matchPhrase(tokens []string) (string, bool) {
	for _, phrase := range f.phrases {
		if len(tokens) < len(phrase) {
			continue
		}
		for i := 0; i+len(phrase) <= len(tokens); i++ {
			match := true
			for j, want := range phrase {
				if tokens[i+j] != want {
					match = false
					break
				}
			}
			if match {
				return strings.Join(phrase, " "), true
			}
		}
	}
	return "", false
}

// leetMap holds the character substitutions undone by normalizeLeet.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// normalizeLeet replaces common leetspeak substitution characters with the
// letters they stand in for.
func normalizeLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := leetMap[r]; ok {
			b.WriteRune(sub)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokenizePlain splits text into tokens on any non-alphanumeric rune.
func tokenizePlain(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// tokenizeLeet splits text on whitespace only, preserving substitution
// characters inside tokens.
func tokenizeLeet(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
