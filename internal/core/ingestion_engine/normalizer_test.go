package ingestion_engine

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"collapses spaces and tabs", "a  \t b", "a b"},
		{"keeps single newlines", "line one\nline two", "line one\nline two"},
		{"caps blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"strips spaces around newlines", "a   \n   b", "a\nb"},
		{"blank lines with spaces", "a\n   \n \t \n\nb", "a\n\nb"},
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"sentence break", "First. Second! Third? Fourth", "First.\nSecond!\nThird?\nFourth"},
		{"arabic question mark", "ما هذا؟ هذا كتاب.", "ما هذا؟\nهذا كتاب."},
		{"no break without space", "v1.2 and e.g.x", "v1.2 and e.g.x"},
		{"non-breaking space", "a  b", "a b"},
		{"trims", "  \n hello \n  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"a.  b.\n\n\n  c",
		"x. \n\n\n y",
		"\u0085 lead.   tail \v",
		"مرحبا.   كيف حالك؟  \t\n\n\n\nبخير!",
		"a . . b ?  ! c",
		"\r\n\r\n\r\nz",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}

	property := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 2000}))
}
