package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/contexta-kb/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/contexta-kb/internal/api/middlewares"
	"github.com/markdave123-py/contexta-kb/internal/config"
	"github.com/markdave123-py/contexta-kb/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, docs *services.DocumentService, chat *services.ChatService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	defaultKey := cfg.DefaultEmbeddingKey()
	docHandler := handlers.NewDocumentHandler(docs, defaultKey, cfg.Pipeline.MaxFileSizeBytes*8, logger)
	chatHandler := handlers.NewChatHandler(chat, defaultKey, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           Routes(cfg, docHandler, chatHandler),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Routes mounts the API under /api. Everything except /api/healthz needs a
// bearer token.
func Routes(cfg *config.Config, docHandler *handlers.DocumentHandler, chatHandler *handlers.ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.EmbeddingKeyHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

			protected.Post("/documents", docHandler.UploadDocuments)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Delete("/documents/{name}", docHandler.DeleteDocument)
			protected.Post("/documents/{name}/reindex", docHandler.ReindexDocument)
			protected.Post("/documents/{name}/reextract", docHandler.ReextractDocument)
			protected.Get("/documents/{name}/progress", docHandler.GetProgress)

			protected.Post("/chat/context", chatHandler.BuildContext)
			protected.Post("/chat/query", chatHandler.Query)
		})
	})
	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
