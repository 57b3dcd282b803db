package moderation

import "testing"

// TestSpam_LinkShorteners verifies that shortened links are blocked while the
// shortener hostname alone (no path, nothing to redirect to) is not.
func TestSpam_LinkShorteners(t *testing.T) {
	f := NewFilterWithTerms(nil) // no keyword blocklist — isolate spam checks

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"bitly", "check out bit.ly/3xYz123", true, "link_shortener"},
		{"tinyurl", "visit tinyurl.com/abc", true, "link_shortener"},
		{"telegram invite", "join t.me/freemoney", true, "link_shortener"},
		{"whatsapp invite", "wa.me/15551234 hit me up", true, "link_shortener"},
		{"uppercase host", "BIT.LY/promo", true, "link_shortener"},
		{"bare host no path", "I heard bit.ly shut down", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
			if tt.blocked && result.Reason != "spam_pattern" {
				t.Errorf("Check(%q).Reason = %q, want %q", tt.input, result.Reason, "spam_pattern")
			}
		})
	}
}

// TestSpam_RiskyLinks verifies that links on throwaway TLDs are blocked while
// ordinary links pass through to the preview fetcher.
func TestSpam_RiskyLinks(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"xyz with scheme", "visit https://spam.xyz/click", true, "risky_link"},
		{"tk bare domain", "go to free-stuff.tk now", true, "risky_link"},
		{"click tld", "prize.click/win", true, "risky_link"},
		{"subdomained", "login.secure.gq/verify", true, "risky_link"},
		{"mainstream https", "look at https://example.com/page", false, ""},
		{"mainstream bare", "my site is example.org/about", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

// TestSpam_PhoneNumbers verifies that phone number shapes are blocked.
func TestSpam_PhoneNumbers(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"intl dashed", "+1-555-123-4567", true, "phone"},
		{"parenthesized area code", "(555) 123-4567", true, "phone"},
		{"dotted format", "555.123.4567", true, "phone"},
		{"spaced format", "555 123 4567", true, "phone"},
		{"in sentence", "call me at 555-123-4567 okay?", true, "phone"},
		{"too few digits", "dial 123-4567", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

// TestSpam_CharRepeat verifies the character-run threshold: five in a row is
// chat emphasis, six is flooding.
func TestSpam_CharRepeat(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"long o run", "hellooooooo", true, "char_repeat"},
		{"shouted As", "AAAAAAA", true, "char_repeat"},
		{"exclamation flood", "wow!!!!!!", true, "char_repeat"},
		{"run of five ok", "noooo way", false, ""},
		{"emphasis ok", "sooo cool!!!", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

// TestSpam_WordRepeat verifies the consecutive-word threshold, including
// punctuation and case variants of the same word.
func TestSpam_WordRepeat(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"triple word", "buy buy buy", true, "word_repeat"},
		{"in sentence", "hey buy buy buy now", true, "word_repeat"},
		{"case insensitive", "BUY buy Buy", true, "word_repeat"},
		{"punctuated repeats", "Buy! buy! BUY!", true, "word_repeat"},
		{"double word ok", "yeah yeah whatever", false, ""},
		{"interrupted run ok", "go fast go fast go", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

// TestSpam_CleanMessages ensures normal chat traffic is not flagged.
func TestSpam_CleanMessages(t *testing.T) {
	f := NewFilterWithTerms(nil)

	clean := []struct {
		name  string
		input string
	}{
		{"short number", "I have 3 cats"},
		{"score", "My score is 100"},
		{"casual chat", "lol that's cool"},
		{"version string", "upgrade to v2.0"},
		{"decimal number", "pi is about 3.14"},
		{"normal sentence", "how are you doing today?"},
		{"year reference", "see you in 2025"},
		{"money amount", "it costs $5.99"},
		{"regular link", "have you seen https://go.dev/blog"},
		{"empty string", ""},
		{"single word", "hello"},
		{"stutter ok", "no no I meant the other one"},
	}

	for _, tt := range clean {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked {
				t.Errorf("Check(%q) was blocked (reason=%q, term=%q), expected clean",
					tt.input, result.Reason, result.Term)
			}
		})
	}
}

// TestSpam_KeywordTakesPriority ensures the keyword blocklist is consulted
// before the spam heuristics.
func TestSpam_KeywordTakesPriority(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	result := f.Check("badword")
	if !result.Blocked {
		t.Fatal("expected blocked for keyword")
	}
	if result.Reason != "blocked_keyword" {
		t.Errorf("Reason = %q, want %q", result.Reason, "blocked_keyword")
	}

	result = f.Check("grab it at bit.ly/deal")
	if !result.Blocked {
		t.Fatal("expected blocked for shortened link")
	}
	if result.Reason != "spam_pattern" || result.Term != "link_shortener" {
		t.Errorf("got reason=%q term=%q, want spam_pattern/link_shortener", result.Reason, result.Term)
	}
}

func TestLongestCharRun(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"aabba", 2},
		{"aaaaa", 5},
		{"xaaaaaax", 6},
	}

	for _, tt := range tests {
		if got := longestCharRun(tt.input); got != tt.want {
			t.Errorf("longestCharRun(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
