package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/services"
)

type ChatHandler struct {
	chat       *services.ChatService
	defaultKey string
	logger     *slog.Logger
}

func NewChatHandler(chat *services.ChatService, defaultKey string, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{chat: chat, defaultKey: defaultKey, logger: logger}
}

type ChatRequest struct {
	Question string `json:"question"`
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request) (services.ChatRequest, bool) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return services.ChatRequest{}, false
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, h.logger, &core.ValidationError{Err: errors.New("invalid request body")})
		return services.ChatRequest{}, false
	}
	return services.ChatRequest{
		OwnerID:      owner,
		Question:     req.Question,
		EmbeddingKey: embeddingKey(r, h.defaultKey),
	}, true
}

// BuildContext returns the assembled context without generating an answer.
func (h *ChatHandler) BuildContext(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.chat.BuildContext(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	ans, err := h.chat.Ask(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
