package ingestion_engine

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultChunkOverlap = 200

	paragraphSeparator = "\n\n"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ValidateChunkConfig rejects settings under which windowing cannot advance.
func ValidateChunkConfig(maxSize, overlap int) error {
	if maxSize <= 0 || overlap < 0 || overlap >= maxSize {
		return fmt.Errorf("%w: maxSize=%d overlap=%d", core.ErrInvalidChunkConfig, maxSize, overlap)
	}
	return nil
}

// Chunk splits text into pieces of at most maxSize runes.
//
// Paragraphs are packed greedily, joined by a blank line. A paragraph longer
// than maxSize is cut into windows of maxSize runes whose starts advance by
// maxSize-overlap, so neighbouring windows share overlap runes.
func Chunk(text string, maxSize, overlap int) ([]string, error) {
	if err := ValidateChunkConfig(maxSize, overlap); err != nil {
		return nil, err
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	sepLen := utf8.RuneCountInString(paragraphSeparator)

	flush := func() {
		if bufLen == 0 {
			return
		}
		chunks = append(chunks, buf.String())
		buf.Reset()
		bufLen = 0
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)

		if n > maxSize {
			flush()
			chunks = append(chunks, window(para, maxSize, overlap)...)
			continue
		}

		if bufLen > 0 && bufLen+sepLen+n > maxSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteString(paragraphSeparator)
			bufLen += sepLen
		}
		buf.WriteString(para)
		bufLen += n
	}
	flush()

	return chunks, nil
}

func window(para string, size, overlap int) []string {
	runes := []rune(para)
	step := size - overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
