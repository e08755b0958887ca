package textnorm

import (
	"html"
	"regexp"
	"strings"
)

// DefaultMaxRunes bounds the normalized text length. Longer inputs are
// truncated so a single request cannot blow up embedding cost.
const DefaultMaxRunes = 10000

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalizer prepares raw request text for embedding. The output is a pure
// function of the input, which keeps cache fingerprints stable across calls.
type Normalizer struct {
	maxRunes int
}

// New creates a Normalizer capping output at maxRunes. Non-positive values
// fall back to DefaultMaxRunes.
func New(maxRunes int) *Normalizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Normalizer{maxRunes: maxRunes}
}

// MaxRunes returns the configured length cap.
func (n *Normalizer) MaxRunes() int { return n.maxRunes }

// Normalize strips markup, collapses whitespace, lowercases and truncates the
// text to the configured rune cap. The pipeline repeats until the text stops
// changing: entity-escaped markup unescapes into fresh tags, and entities can
// themselves be escaped, so a single pass would give the same input a
// different fingerprint on re-normalization.
func (n *Normalizer) Normalize(text string) string {
	for {
		next := n.pass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func (n *Normalizer) pass(text string) string {
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.ToLower(strings.TrimSpace(text))

	runes := []rune(text)
	if len(runes) > n.maxRunes {
		text = strings.TrimSpace(string(runes[:n.maxRunes]))
	}
	return text
}
