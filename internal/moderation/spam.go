package moderation

import (
	"regexp"
	"strings"
)

// Links are legal in chat (the partner gets a preview for them), so the link
// checks below target only the classes with no conversational value between
// strangers: shorteners that hide the destination, and links on throwaway
// TLDs. Patterns compile once at init and are safe for concurrent use.
var (
	// shortenerPattern matches known redirector/shortener hosts. A shortened
	// link hides its target, which the preview fetcher cannot compensate for.
	shortenerPattern = regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|t\.me|wa\.me|goo\.gl|is\.gd|cutt\.ly|rb\.gy|tiny\.cc)/\S+`)

	// riskyLinkPattern matches domains on disposable TLDs. The TLD set is
	// drawn from what shows up in reported rooms; mainstream TLDs pass so an
	// ordinary link still gets its preview.
	riskyLinkPattern = regexp.MustCompile(`(?i)\b(https?://)?([a-z0-9-]+\.)+(xyz|tk|ml|ga|cf|gq|top|click|loan)(/\S*)?\b`)

	// phonePattern matches North-American number shapes with an optional
	// country code, e.g. +1-555-123-4567, (555) 123-4567, 555.123.4567.
	// Looser shapes flagged too many scores, years and timestamps.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}(?:\s|$)`)
)

// maxCharRun is the longest run of a single character tolerated before a
// message counts as keyboard flooding. Five in a row ("nooooo") is still
// ordinary chat emphasis.
const maxCharRun = 5

// maxWordRun is how many consecutive identical words are tolerated.
const maxWordRun = 2

// longestCharRun returns the length of the longest run of one rune in text.
func longestCharRun(text string) int {
	longest, run := 0, 0
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// hasWordRun reports whether the same word repeats more than maxWordRun times
// in a row. Comparison is case-insensitive and ignores trailing punctuation,
// so "Buy! buy! BUY!" counts as a run of three.
func hasWordRun(text string) bool {
	run := 0
	prev := ""
	for _, w := range strings.Fields(text) {
		word := strings.Trim(strings.ToLower(w), ".,!?")
		if word == "" {
			continue
		}
		if word == prev {
			run++
			if run > maxWordRun {
				return true
			}
		} else {
			run = 1
			prev = word
		}
	}
	return false
}

func spamResult(term string) FilterResult {
	return FilterResult{Blocked: true, Reason: "spam_pattern", Term: term}
}

// checkSpamPatterns applies the spam heuristics in order of confidence and
// returns a blocking FilterResult for the first hit, or a zero value when the
// text is clean.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	switch {
	case shortenerPattern.MatchString(text):
		return spamResult("link_shortener")
	case riskyLinkPattern.MatchString(text):
		return spamResult("risky_link")
	case phonePattern.MatchString(text):
		return spamResult("phone")
	case longestCharRun(text) > maxCharRun:
		return spamResult("char_repeat")
	case hasWordRun(text):
		return spamResult("word_repeat")
	}
	return FilterResult{}
}
