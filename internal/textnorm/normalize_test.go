package textnorm

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	n := New(0)

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "lowercases and collapses whitespace",
			input:  "  Senior   Data\n\tAnalyst ",
			expect: "senior data analyst",
		},
		{
			name:   "strips markup",
			input:  "<p>Strong <b>SQL</b> skills</p>",
			expect: "strong sql skills",
		},
		{
			name:   "unescapes entities",
			input:  "analysis &amp; reporting",
			expect: "analysis & reporting",
		},
		{
			name:   "empty stays empty",
			input:  "   ",
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Normalize(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestNormalizeIsFixedPoint(t *testing.T) {
	t.Parallel()

	n := New(0)
	inputs := []string{
		"<div>Looking for a Java developer</div>",
		"Plain text already",
		"  MIXED  Case\tAnd   Gaps  ",
		"&lt;b&gt;Strong SQL skills&lt;/b&gt;",
		"&amp;lt;p&amp;gt;doubly escaped&amp;lt;/p&amp;gt;",
		"dangling entity &amp",
	}

	for _, input := range inputs {
		once := n.Normalize(input)
		twice := n.Normalize(once)
		if once != twice {
			t.Fatalf("normalize is not a fixed point: %q -> %q", once, twice)
		}
	}
}

func TestNormalizeStripsEscapedMarkup(t *testing.T) {
	t.Parallel()

	n := New(0)
	if got := n.Normalize("&lt;b&gt;Strong SQL skills&lt;/b&gt;"); got != "strong sql skills" {
		t.Fatalf("expected escaped markup to be stripped, got %q", got)
	}
}

func TestNormalizeLengthCap(t *testing.T) {
	t.Parallel()

	n := New(10)

	atLimit := strings.Repeat("a", 10)
	if got := n.Normalize(atLimit); got != atLimit {
		t.Fatalf("text at the cap must pass unchanged, got %q", got)
	}

	over := strings.Repeat("a", 11)
	if got := n.Normalize(over); len([]rune(got)) != 10 {
		t.Fatalf("expected truncation to 10 runes, got %d", len([]rune(got)))
	}
}
