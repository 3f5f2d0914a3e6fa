package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"extraction", &ExtractionError{File: "a.pdf", Reason: "PDF", Err: ErrUnsupportedType}, ErrUnsupportedType},
		{"validation", &ValidationError{File: "a.bin", Err: ErrFileTooLarge}, ErrFileTooLarge},
		{"indexing", &IndexingError{Document: "a", Position: 3, Err: ErrDimensionMismatch}, ErrDimensionMismatch},
		{"retrieval", &RetrievalError{Strategy: "semantic", Err: ErrNotFound}, ErrNotFound},
		{"configuration", &ConfigurationError{Setting: "embedding_key", Err: ErrNoEmbeddingKey}, ErrNoEmbeddingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestIndexingErrorFlushMessage(t *testing.T) {
	err := &IndexingError{Document: "doc", Position: -1, Err: errors.New("db down")}
	assert.Contains(t, err.Error(), "flush")

	embedder := &IndexingError{Document: "doc", Position: -1, Stage: IndexStageEmbedder, Err: errors.New("bad key")}
	assert.Equal(t, "index doc: embedder: bad key", embedder.Error())
	assert.NotContains(t, embedder.Error(), "flush")

	chunk := &IndexingError{Document: "doc", Position: 2, Err: errors.New("timeout")}
	assert.Equal(t, "index doc: chunk 2: timeout", chunk.Error())

	var ie *IndexingError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &ie))
	assert.Equal(t, "doc", ie.Document)
}
