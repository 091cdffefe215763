package assistant

import (
	"strings"
	"unicode/utf8"

	"github.com/muesli/reflow/wordwrap"
)

// Chunk splits text into radio-sized pieces of at most limit bytes,
// preferring whitespace boundaries and never cutting a multi-byte rune
// in half. Order is preserved; empty pieces are dropped.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	// wordwrap counts cells, not bytes, so a wrapped line can still
	// overflow the byte limit (multi-byte text, long unbroken words).
	// hardSplit cleans those up on rune boundaries.
	var chunks []string
	for _, line := range strings.Split(wordwrap.String(text, limit), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		chunks = append(chunks, hardSplit(line, limit)...)
	}
	return chunks
}

// hardSplit cuts s into byte-bounded pieces on rune boundaries.
func hardSplit(s string, limit int) []string {
	var out []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
