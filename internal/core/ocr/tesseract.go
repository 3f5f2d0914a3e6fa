package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

var _ core.OCREngine = (*Tesseract)(nil)

// Tesseract recognizes text through libtesseract. Recognition runs with a
// bounded number of concurrent clients; a gosseract client is not safe for
// concurrent use, so each call gets its own.
type Tesseract struct {
	sem chan struct{}
}

func NewTesseract(maxConcurrent int) *Tesseract {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Tesseract{sem: make(chan struct{}, maxConcurrent)}
}

// Recognize returns the text found in image. Tesseract itself cannot be
// interrupted: on cancellation the call returns at once and the worker
// finishes in the background.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, languages []string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("ocr: empty image")
	}

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	var once sync.Once
	release := func() { once.Do(func() { <-t.sem }) }

	go func() {
		defer release()
		text, err := recognize(image, languages)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("ocr: %w", ctx.Err())
	}
}

func recognize(image []byte, languages []string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ocr: tesseract panic: %v", r)
		}
	}()

	client := gosseract.NewClient()
	defer client.Close()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return "", fmt.Errorf("ocr: set language %v: %w", languages, err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocr: load image: %w", err)
	}
	out, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: recognize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
