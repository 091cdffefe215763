package mesh

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int // expected byte length
	}{
		{"short", "hello", 5},
		{"exact", strings.Repeat("a", MaxMessageLen), MaxMessageLen},
		{"over", strings.Repeat("a", MaxMessageLen+50), MaxMessageLen},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateBody(tt.in)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
			if !strings.HasPrefix(tt.in, got) {
				t.Error("truncation changed content")
			}
		})
	}
}

func TestTruncateBody_RuneBoundary(t *testing.T) {
	// 3-byte runes; 200 is not a multiple of 3, so a byte slice at 200
	// would land mid-rune.
	in := strings.Repeat("日", 100) // 300 bytes
	got := TruncateBody(in)

	if len(got) > MaxMessageLen {
		t.Errorf("len = %d, want <= %d", len(got), MaxMessageLen)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
	if utf8.RuneCountInString(got) != 66 {
		t.Errorf("rune count = %d, want 66", utf8.RuneCountInString(got))
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"long name wins", Node{ID: "!a", ShortName: "AL", LongName: "Alpha"}, "Alpha"},
		{"short name next", Node{ID: "!a", ShortName: "AL"}, "AL"},
		{"id fallback", Node{ID: "!a"}, "!a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.DisplayName(); got != tt.want {
				t.Errorf("DisplayName = %q, want %q", got, tt.want)
			}
		})
	}
}
