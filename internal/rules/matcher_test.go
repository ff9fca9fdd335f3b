package rules

import (
	"strings"
	"testing"

	"github.com/orbitwire/newsclean/internal/domain"
)

func lowercase(s string) string {
	return strings.ToLower(s)
}

func TestCompile_Literal(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		text    string
		want    bool
	}{
		{
			name:    "exact substring",
			pattern: "nasa",
			text:    "nasa launches new probe",
			want:    true,
		},
		{
			name:    "case folded at compile time",
			pattern: "NASA",
			text:    "breaking: nasa confirms launch window",
			want:    true,
		},
		{
			name:    "substring inside a word still matches",
			pattern: "rain",
			text:    "training camp opens",
			want:    true,
		},
		{
			name:    "no occurrence",
			pattern: "weather",
			text:    "markets rally on tech earnings",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.pattern)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.pattern, err)
			}
			if !m.IsLiteral() {
				t.Fatalf("Compile(%q): expected literal matcher", tt.pattern)
			}
			if got := m.Match(lowercase(tt.text)); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCompile_Regex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		text    string
		want    bool
	}{
		{
			name:    "word boundary",
			pattern: `/\brain\b/`,
			text:    "heavy rain expected tonight",
			want:    true,
		},
		{
			name:    "word boundary rejects substring",
			pattern: `/\brain\b/`,
			text:    "training camp opens",
			want:    false,
		},
		{
			name:    "case insensitive by construction",
			pattern: `/launch(es|ed)?/`,
			text:    "NASA Launched a new mission",
			want:    true,
		},
		{
			name:    "alternation",
			pattern: `/storm|flood/`,
			text:    "flood warnings issued downstate",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.pattern)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.pattern, err)
			}
			if m.IsLiteral() {
				t.Fatalf("Compile(%q): expected regex matcher", tt.pattern)
			}
			if got := m.Match(lowercase(tt.text)); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{name: "empty", pattern: ""},
		{name: "whitespace only", pattern: "   "},
		{name: "bad regex", pattern: `/[unclosed/`},
		{name: "bad repetition", pattern: `/*crash/`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.pattern)
			if err == nil {
				t.Fatalf("Compile(%q): expected error", tt.pattern)
			}
			if !domain.IsInvalidPattern(err) {
				t.Errorf("Compile(%q): error %v is not an invalid pattern error", tt.pattern, err)
			}
		})
	}
}
