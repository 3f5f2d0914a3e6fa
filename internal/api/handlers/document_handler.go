package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-kb/internal/models"
	"github.com/markdave123-py/contexta-kb/internal/services"
)

type DocumentHandler struct {
	docs       *services.DocumentService
	defaultKey string
	maxUpload  int64
	logger     *slog.Logger
}

// NewDocumentHandler serves the document routes. maxUpload bounds the whole
// multipart body.
func NewDocumentHandler(docs *services.DocumentService, defaultKey string, maxUpload int64, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &DocumentHandler{docs: docs, defaultKey: defaultKey, maxUpload: maxUpload, logger: logger}
}

type fileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type indexSummary struct {
	Document string   `json:"document"`
	Status   string   `json:"status"`
	Total    int      `json:"total"`
	Indexed  int      `json:"indexed"`
	Errors   []string `json:"errors,omitempty"`
	Skipped  string   `json:"skipped,omitempty"`
}

type batchResponse struct {
	Documents []models.UploadedDocument `json:"documents"`
	Failures  []fileError               `json:"failures,omitempty"`
	Warnings  []fileError               `json:"warnings,omitempty"`
	Indexing  []indexSummary            `json:"indexing,omitempty"`
	Queued    []string                  `json:"queued,omitempty"`
}

func summarizeIndex(r *ingestion_engine.IndexReport) indexSummary {
	s := indexSummary{Document: r.DocumentName, Status: string(r.Status), Total: r.Total, Indexed: r.Indexed}
	for _, err := range r.Failures {
		s.Errors = append(s.Errors, err.Error())
	}
	if r.Skip != nil {
		s.Skipped = r.Skip.Error()
	}
	return s
}

func toBatchResponse(r *ingestion_engine.BatchReport) batchResponse {
	resp := batchResponse{Documents: r.Documents, Queued: r.Queued}
	if resp.Documents == nil {
		resp.Documents = []models.UploadedDocument{}
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, fileError{File: f.File, Error: f.Err.Error()})
	}
	for _, f := range r.Warnings {
		resp.Warnings = append(resp.Warnings, fileError{File: f.File, Error: f.Err.Error()})
	}
	for _, ir := range r.Indexing {
		resp.Indexing = append(resp.Indexing, summarizeIndex(ir))
	}
	return resp
}

// UploadDocuments accepts one or more files under the "files" or "file" form
// fields and runs them through the pipeline as one batch.
func (h *DocumentHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, h.logger, &core.ValidationError{Err: fmt.Errorf("invalid multipart form: %w", err)})
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["files"]...)
	headers = append(headers, r.MultipartForm.File["file"]...)

	files := make([]models.RawFile, 0, len(headers))
	for _, fh := range headers {
		raw, err := readPart(fh)
		if err != nil {
			writeError(w, h.logger, &core.ValidationError{File: fh.Filename, Err: err})
			return
		}
		files = append(files, raw)
	}

	report, err := h.docs.Upload(r.Context(), owner, embeddingKey(r, h.defaultKey), files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	switch {
	case len(report.Documents) == 0:
		status = http.StatusUnprocessableEntity
	case len(report.Queued) > 0:
		status = http.StatusAccepted
	}
	writeJSON(w, status, toBatchResponse(report))
}

func readPart(fh *multipart.FileHeader) (models.RawFile, error) {
	f, err := fh.Open()
	if err != nil {
		return models.RawFile{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.RawFile{}, err
	}
	return models.RawFile{
		Name:      fh.Filename,
		MimeType:  fh.Header.Get("Content-Type"),
		SizeBytes: fh.Size,
		Data:      data,
	}, nil
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return
	}

	documents, err := h.docs.List(r.Context(), owner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if documents == nil {
		documents = []models.UploadedDocument{}
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return
	}
	if err := h.docs.Delete(r.Context(), owner, chi.URLParam(r, "name")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) ReindexDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	report, err := h.docs.Reindex(r.Context(), owner, name, embeddingKey(r, h.defaultKey))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"document": name, "status": models.StatusUploaded})
		return
	}
	writeJSON(w, http.StatusOK, summarizeIndex(report))
}

func (h *DocumentHandler) ReextractDocument(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return
	}

	report, err := h.docs.Reextract(r.Context(), owner, chi.URLParam(r, "name"), embeddingKey(r, h.defaultKey))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(report))
}

func (h *DocumentHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOrAbort(w, r)
	if !ok {
		return
	}

	p, err := h.docs.Progress(r.Context(), owner, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
