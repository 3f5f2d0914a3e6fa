package ingestion_engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

// extractPDF rebuilds page text from positioned fragments and sends pages
// that look scanned to OCR, within the configured page and OCR budgets.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, map[string]string, error) {
	if e.pdf == nil {
		return "", nil, fmt.Errorf("no PDF engine configured")
	}
	doc, err := e.pdf.Open(data)
	if err != nil {
		return "", nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	total := doc.NumPages()
	pages := min(total, e.cfg.MaxPDFPages)
	ocrPages := 0

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		frags, err := doc.PageText(ctx, i)
		if err != nil {
			e.logger.Warn("Extractor: page text failed", "page", i, "err", err)
		}
		text := joinFragments(frags, e.cfg.LineTolerance)

		if utf8.RuneCountInString(strings.TrimSpace(text)) < e.cfg.ScannedPageMinChars {
			if ocrPages < e.cfg.MaxOCRPages {
				ocrPages++
				ocrText, err := e.ocrPage(ctx, doc, i)
				switch {
				case err != nil:
					if cerr := ctx.Err(); cerr != nil {
						return "", nil, cerr
					}
					e.logger.Warn("Extractor: OCR failed", "page", i, "err", err)
				case ocrText != "":
					text = fmt.Sprintf("[OCR Result Page %d]\n%s", i, ocrText)
				}
			} else {
				text = strings.TrimSpace(text + "\n[Scanned page - OCR skipped]")
			}
		}

		fmt.Fprintf(&b, "[Page %d]\n%s\n\n", i, text)
	}

	if total > pages {
		fmt.Fprintf(&b, "[... remaining %d pages skipped ...]", total-pages)
	}

	meta := map[string]string{
		"pages":     strconv.Itoa(total),
		"ocr_pages": strconv.Itoa(ocrPages),
	}
	return strings.TrimSpace(b.String()), meta, nil
}

func (e *Extractor) ocrPage(ctx context.Context, doc core.PDFDocument, page int) (string, error) {
	img, err := doc.RenderPage(ctx, page, e.cfg.RenderScale)
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", page, err)
	}
	return e.recognize(ctx, img)
}

// joinFragments restores reading order: top to bottom, then along the line.
// Fragments whose Y lies within tolerance of a line's first fragment belong
// to that line. Lines written mostly in Arabic read right to left.
func joinFragments(frags []core.TextFragment, tolerance float64) string {
	kept := make([]core.TextFragment, 0, len(frags))
	for _, f := range frags {
		if strings.TrimSpace(f.Text) != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Y > kept[j].Y })

	var (
		lines [][]core.TextFragment
		cur   []core.TextFragment
		lineY float64
	)
	for _, f := range kept {
		if len(cur) > 0 && math.Abs(f.Y-lineY) > tolerance {
			lines = append(lines, cur)
			cur = nil
		}
		if len(cur) == 0 {
			lineY = f.Y
		}
		cur = append(cur, f)
	}
	lines = append(lines, cur)

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		rtl := isMostlyArabic(line)
		sort.SliceStable(line, func(i, j int) bool {
			if rtl {
				return line[i].X > line[j].X
			}
			return line[i].X < line[j].X
		})

		parts := make([]string, len(line))
		for k, f := range line {
			parts[k] = strings.TrimSpace(f.Text)
		}
		out = append(out, strings.Join(parts, " "))
	}
	return strings.Join(out, "\n")
}

func isMostlyArabic(line []core.TextFragment) bool {
	var arabic, other int
	for _, f := range line {
		for _, r := range f.Text {
			switch {
			case unicode.Is(unicode.Arabic, r):
				arabic++
			case unicode.IsLetter(r):
				other++
			}
		}
	}
	return arabic > other
}
