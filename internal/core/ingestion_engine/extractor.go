package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

var _ core.DocumentExtractor = (*Extractor)(nil)

// ExtractorConfig tunes format handlers.
//
// MaxPDFPages:         pages read before the rest is replaced by one marker.
// MaxOCRPages:         scanned pages per PDF that may be sent to OCR.
// ScannedPageMinChars: pages with less reconstructed text are treated as scanned.
// RenderScale:         raster scale for OCR (2.0 = 144 DPI).
// LineTolerance:       Y distance under which fragments share a line.
// RowGroupSize:        spreadsheet data rows per emitted table block.
type ExtractorConfig struct {
	MaxPDFPages         int
	MaxOCRPages         int
	ScannedPageMinChars int
	RenderScale         float64
	LineTolerance       float64
	RowGroupSize        int
	OCRLanguages        []string
	OCRTimeout          time.Duration
	UseReadability      bool
}

func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MaxPDFPages:         50,
		MaxOCRPages:         10,
		ScannedPageMinChars: 50,
		RenderScale:         2.0,
		LineTolerance:       10,
		RowGroupSize:        20,
		OCRLanguages:        []string{"ara", "eng"},
		OCRTimeout:          2 * time.Minute,
	}
}

// Extractor dispatches uploads to a format handler. Handler failures never
// fail the upload: the text becomes a short diagnostic and the cause is kept
// in ExtractedText.Warning.
type Extractor struct {
	ocr    core.OCREngine
	pdf    core.PDFEngine
	cfg    ExtractorConfig
	logger *slog.Logger
}

func NewExtractor(ocr core.OCREngine, pdf core.PDFEngine, cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, pdf: pdf, cfg: cfg, logger: logger}
}

type fileKind int

const (
	kindText fileKind = iota
	kindImage
	kindPDF
	kindWord
	kindSpreadsheet
	kindHTML
)

func (k fileKind) String() string {
	switch k {
	case kindImage:
		return "image text"
	case kindPDF:
		return "PDF text"
	case kindWord:
		return "Word document"
	case kindSpreadsheet:
		return "spreadsheet"
	case kindHTML:
		return "HTML"
	default:
		return "text"
	}
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// classify picks a handler from the declared MIME type, then the extension.
// Order matters: images, PDF, Word family, spreadsheets, HTML, then text.
func classify(name, mimeType string) fileKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case strings.HasPrefix(mt, "image/") || imageExts[ext]:
		return kindImage
	case mt == "application/pdf" || ext == ".pdf":
		return kindPDF
	case strings.Contains(mt, "wordprocessingml") || strings.Contains(mt, "msword") ||
		strings.Contains(mt, "opendocument.text") || strings.Contains(mt, "rtf") ||
		ext == ".docx" || ext == ".doc" || ext == ".odt" || ext == ".rtf":
		return kindWord
	case strings.Contains(mt, "spreadsheet") || strings.Contains(mt, "excel") || strings.Contains(mt, "csv") ||
		ext == ".xlsx" || ext == ".xls" || ext == ".csv":
		return kindSpreadsheet
	case mt == "text/html" || ext == ".html" || ext == ".htm":
		return kindHTML
	default:
		return kindText
	}
}

// Extract converts one file to text. The only error returned is context
// cancellation; everything else degrades to a diagnostic.
func (e *Extractor) Extract(ctx context.Context, file models.RawFile) (out *core.ExtractedText, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind := classify(file.Name, file.MimeType)

	defer func() {
		if r := recover(); r != nil {
			out, err = e.degrade(file, kind, fmt.Errorf("panic: %v", r)), nil
		}
	}()

	var (
		text string
		meta map[string]string
		herr error
	)
	switch kind {
	case kindImage:
		text, herr = e.recognize(ctx, file.Data)
	case kindPDF:
		text, meta, herr = e.extractPDF(ctx, file.Data)
	case kindWord:
		text, meta, herr = extractWord(file)
	case kindSpreadsheet:
		text, herr = e.extractSpreadsheet(file)
	case kindHTML:
		text, meta, herr = docconv.ConvertHTML(bytes.NewReader(file.Data), e.cfg.UseReadability)
	default:
		text = readVerbatim(file.Data)
	}

	if herr != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return e.degrade(file, kind, herr), nil
	}

	e.logger.Debug("Extractor: extracted", "file", file.Name, "kind", kind.String(), "chars", utf8.RuneCountInString(text))
	return &core.ExtractedText{Text: text, Metadata: meta}, nil
}

func (e *Extractor) degrade(file models.RawFile, kind fileKind, cause error) *core.ExtractedText {
	e.logger.Warn("Extractor: extraction failed", "file", file.Name, "kind", kind.String(), "err", cause)
	return &core.ExtractedText{
		Text:    diagnostic(kind.String(), cause),
		Warning: &core.ExtractionError{File: file.Name, Reason: kind.String(), Err: cause},
	}
}

func diagnostic(reason string, cause error) string {
	return fmt.Sprintf("⚠️ failed to extract %s: %v", reason, cause)
}

// recognize runs OCR under the configured timeout.
func (e *Extractor) recognize(ctx context.Context, img []byte) (string, error) {
	if e.ocr == nil {
		return "", fmt.Errorf("no OCR engine configured")
	}
	ocrCtx, cancel := context.WithTimeout(ctx, e.cfg.OCRTimeout)
	defer cancel()

	text, err := e.ocr.Recognize(ocrCtx, img, e.cfg.OCRLanguages)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func extractWord(file models.RawFile) (string, map[string]string, error) {
	r := bytes.NewReader(file.Data)
	mt := strings.ToLower(file.MimeType)

	switch ext := strings.ToLower(filepath.Ext(file.Name)); {
	case ext == ".docx" || strings.Contains(mt, "wordprocessingml"):
		return docconv.ConvertDocx(r)
	case ext == ".odt" || strings.Contains(mt, "opendocument.text"):
		return docconv.ConvertODT(r)
	case ext == ".rtf" || strings.Contains(mt, "rtf"):
		return docconv.ConvertRTF(r)
	default:
		return docconv.ConvertDoc(r)
	}
}

// readVerbatim decodes text as UTF-8, dropping a BOM and replacing invalid bytes.
func readVerbatim(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return strings.ToValidUTF8(string(data), "�")
}

// looksBinary reports content that cannot be served as text.
func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	// A cut sample may end inside a multi-byte rune.
	for i := 0; i < utf8.UTFMax && len(sample) > 0 && !utf8.Valid(sample); i++ {
		sample = sample[:len(sample)-1]
	}
	return !utf8.Valid(sample)
}
