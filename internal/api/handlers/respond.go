package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	middleware "github.com/markdave123-py/contexta-kb/internal/api/middlewares"
	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/services"
)

// EmbeddingKeyHeader lets a caller index and search with their own key.
const EmbeddingKeyHeader = "X-Embedding-Key"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("handlers: encode response", "err", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		verr *core.ValidationError
		cerr *core.ConfigurationError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDocumentExists):
		status = http.StatusConflict
	case errors.As(err, &verr), errors.Is(err, services.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case errors.As(err, &cerr):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		logger.Error("handlers: request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func ownerOrAbort(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
	}
	return owner, ok
}

func embeddingKey(r *http.Request, fallback string) string {
	if k := r.Header.Get(EmbeddingKeyHeader); k != "" {
		return k
	}
	return fallback
}
