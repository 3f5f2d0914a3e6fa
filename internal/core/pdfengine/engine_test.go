package pdfengine

import (
	"context"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func glyphs(y float64, x0 float64, word string) []pdf.Text {
	out := make([]pdf.Text, 0, len(word))
	x := x0
	for _, r := range word {
		out = append(out, pdf.Text{FontSize: 10, X: x, Y: y, W: 5, S: string(r)})
		x += 5
	}
	return out
}

func TestCoalesce_JoinsGlyphsIntoWords(t *testing.T) {
	var in []pdf.Text
	in = append(in, glyphs(700, 10, "Hello")...)
	in = append(in, glyphs(700, 50, "world")...)
	in = append(in, glyphs(680, 10, "next")...)

	got := coalesce(in)
	require.Len(t, got, 3)
	assert.Equal(t, "Hello", got[0].Text)
	assert.Equal(t, 10.0, got[0].X)
	assert.Equal(t, 700.0, got[0].Y)
	assert.Equal(t, "world", got[1].Text)
	assert.Equal(t, "next", got[2].Text)
	assert.Equal(t, 680.0, got[2].Y)
}

func TestCoalesce_SpaceGlyphSplits(t *testing.T) {
	in := glyphs(100, 0, "ab")
	in = append(in, pdf.Text{FontSize: 10, X: 10, Y: 100, W: 3, S: " "})
	in = append(in, glyphs(100, 13, "cd")...)

	got := coalesce(in)
	require.Len(t, got, 2)
	assert.Equal(t, "ab", got[0].Text)
	assert.Equal(t, "cd", got[1].Text)
}

func TestCoalesce_Empty(t *testing.T) {
	assert.Empty(t, coalesce(nil))
}

func TestEngine_RejectsGarbage(t *testing.T) {
	_, err := Engine{}.Open(nil)
	assert.Error(t, err)

	_, err = Engine{}.Open([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestDocument_PageRange(t *testing.T) {
	d := &Document{pages: 2}
	_, err := d.PageText(context.Background(), 3)
	assert.Error(t, err)
	_, err = d.RenderPage(context.Background(), 0, 2)
	assert.Error(t, err)
	assert.NoError(t, d.Close())
}
