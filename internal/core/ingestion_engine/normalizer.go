package ingestion_engine

import (
	"regexp"
	"strings"
)

// hspace is every whitespace rune except newline. \r is folded into \n first.
const hspace = `[\t\f\v\x{85}\x{2028}\x{2029}\p{Zs}]`

var (
	spaceAroundNewline = regexp.MustCompile(hspace + `*\n` + hspace + `*`)
	spaceRun           = regexp.MustCompile(hspace + `+`)
	blankLineRun       = regexp.MustCompile(`\n{3,}`)
	sentenceEnd        = regexp.MustCompile(`([.!?؟])` + hspace + `+`)
)

// Normalize cleans extracted text before storage and chunking. Line structure
// survives: horizontal whitespace collapses to one space, blank-line runs cap
// at one empty line, and sentence terminals followed by spaces break the line.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = spaceAroundNewline.ReplaceAllString(text, "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	text = sentenceEnd.ReplaceAllString(text, "${1}\n")

	return strings.TrimSpace(text)
}
