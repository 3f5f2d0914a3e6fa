package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, job IndexJob) error
	ProcessOne(ctx context.Context, job IndexJob) (*IndexReport, error)
	Progress(ownerID, documentName string) (Progress, bool)
}

// IndexJob asks for one stored document to be (re)indexed.
type IndexJob struct {
	OwnerID      string
	DocumentName string
	EmbeddingKey string
	Replace      bool
	// OnProgress, when set, also receives the indexer's chunk counts.
	OnProgress ProgressFunc
}

// Progress is the last known indexing state of a document.
type Progress struct {
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

var _ Ingestor = (*DocumentIngestor)(nil)

// DocumentIngestor indexes stored documents, inline or from a job queue:
//
// docs:     document store holding the normalized text.
// indexer:  chunk, embed and persist stage.
// jobs:     in-memory queue of documents to index.
// progress: per document counters for polling clients.
// running:  in-flight runs per document, cancelled when it is removed.
// held:     documents being removed; no run may start for them.
type DocumentIngestor struct {
	docs     core.DocumentStore
	indexer  *Indexer
	jobs     chan IndexJob
	timeout  time.Duration
	logger   *slog.Logger
	mu       sync.RWMutex
	progress map[string]Progress

	runMu   sync.Mutex
	running map[string]map[*indexRun]struct{}
	held    map[string]int
}

type indexRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(docs core.DocumentStore, indexer *Indexer, cfg IngestConfig, logger *slog.Logger) *DocumentIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 64
	}
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DocumentIngestor{
		docs:     docs,
		indexer:  indexer,
		jobs:     make(chan IndexJob, queue),
		timeout:  timeout,
		logger:   logger,
		progress: make(map[string]Progress),
		running:  make(map[string]map[*indexRun]struct{}),
		held:     make(map[string]int),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx ends.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.logger.Info("DocumentIngestor: worker shutting down", "worker", w)
					return
				case job := <-i.jobs:
					i.logger.Info("DocumentIngestor: processing document", "worker", w, "owner", job.OwnerID, "document", job.DocumentName)
					if _, err := i.ProcessOne(ctx, job); err != nil {
						i.logger.Error("DocumentIngestor: processing failed", "document", job.DocumentName, "err", err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a job. It blocks while the queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job IndexJob) error {
	i.setProgress(job.OwnerID, job.DocumentName, Progress{Status: models.StatusUploaded})
	select {
	case i.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessOne indexes one stored document and records its final status.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, job IndexJob) (*IndexReport, error) {
	proctx, done, err := i.begin(ctx, job.OwnerID, job.DocumentName)
	if err != nil {
		return nil, err
	}
	defer done()

	doc, err := i.docs.GetDocument(proctx, job.OwnerID, job.DocumentName)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	i.setStatus(proctx, doc, models.StatusIndexing, 0, 0)

	report, err := i.indexer.Index(proctx, IndexRequest{
		OwnerID:      doc.OwnerID,
		DocumentName: doc.Name,
		Content:      doc.RawContent,
		EmbeddingKey: job.EmbeddingKey,
		Replace:      job.Replace,
		OnProgress: func(processed, total int) {
			i.setProgress(doc.OwnerID, doc.Name, Progress{Processed: processed, Total: total, Status: models.StatusIndexing})
			if job.OnProgress != nil {
				job.OnProgress(processed, total)
			}
		},
	})

	// The request context may be gone; cleanup and status writes must still land.
	bg, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()

	if gone := i.dropIfRemoved(bg, doc); gone != nil {
		return report, gone
	}

	if err != nil {
		var processed, total int
		if report != nil {
			processed, total = report.Indexed, report.Total
		}
		i.setStatus(bg, doc, models.StatusFailed, processed, total)
		return report, err
	}

	i.setStatus(bg, doc, report.Status.DocumentStatus(), report.Indexed, report.Total)
	return report, nil
}

// dropIfRemoved checks that doc still exists once indexing has finished.
// Segments written for a document deleted mid-run are removed again.
func (i *DocumentIngestor) dropIfRemoved(ctx context.Context, doc *models.UploadedDocument) error {
	current, err := i.docs.GetDocument(ctx, doc.OwnerID, doc.Name)
	switch {
	case errors.Is(err, core.ErrNotFound):
		n, derr := i.indexer.segments.DeleteSegments(ctx, doc.OwnerID, doc.Name)
		if derr != nil {
			i.logger.Error("DocumentIngestor: orphan segments not dropped", "document", doc.Name, "err", derr)
		} else {
			i.logger.Warn("DocumentIngestor: document removed during indexing", "document", doc.Name, "segments_dropped", n)
		}
		i.forget(doc.OwnerID, doc.Name)
		return fmt.Errorf("document %q removed during indexing: %w", doc.Name, core.ErrNotFound)
	case err != nil:
		i.logger.Warn("DocumentIngestor: document recheck failed", "document", doc.Name, "err", err)
	case current.ID != doc.ID:
		i.logger.Warn("DocumentIngestor: document replaced during indexing", "document", doc.Name)
		return fmt.Errorf("document %q replaced during indexing: %w", doc.Name, core.ErrNotFound)
	}
	return nil
}

// begin registers a run so Remove can cancel it. Runs are refused while the
// document is held for removal.
func (i *DocumentIngestor) begin(ctx context.Context, ownerID, name string) (context.Context, func(), error) {
	key := progressKey(ownerID, name)

	i.runMu.Lock()
	defer i.runMu.Unlock()
	if i.held[key] > 0 {
		return nil, nil, fmt.Errorf("document %q is being removed: %w", name, core.ErrNotFound)
	}

	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	run := &indexRun{cancel: cancel, done: make(chan struct{})}
	if i.running[key] == nil {
		i.running[key] = make(map[*indexRun]struct{})
	}
	i.running[key][run] = struct{}{}

	return runCtx, func() {
		cancel()
		i.runMu.Lock()
		delete(i.running[key], run)
		if len(i.running[key]) == 0 {
			delete(i.running, key)
		}
		i.runMu.Unlock()
		close(run.done)
	}, nil
}

// hold cancels every run for the document and waits for them to return.
// No new run starts until release is called.
func (i *DocumentIngestor) hold(ctx context.Context, ownerID, name string) (release func(), err error) {
	key := progressKey(ownerID, name)

	i.runMu.Lock()
	i.held[key]++
	runs := make([]*indexRun, 0, len(i.running[key]))
	for run := range i.running[key] {
		run.cancel()
		runs = append(runs, run)
	}
	i.runMu.Unlock()

	release = func() {
		i.runMu.Lock()
		defer i.runMu.Unlock()
		i.held[key]--
		if i.held[key] <= 0 {
			delete(i.held, key)
		}
	}

	for _, run := range runs {
		select {
		case <-run.done:
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (i *DocumentIngestor) setStatus(ctx context.Context, doc *models.UploadedDocument, status string, processed, total int) {
	if err := i.docs.UpdateDocumentStatus(ctx, doc.OwnerID, doc.Name, status); err != nil {
		i.logger.Warn("DocumentIngestor: status update failed", "document", doc.Name, "status", status, "err", err)
	}
	doc.Status = status
	i.setProgress(doc.OwnerID, doc.Name, Progress{Processed: processed, Total: total, Status: status})
}

// Progress returns the last recorded state for a document.
func (i *DocumentIngestor) Progress(ownerID, documentName string) (Progress, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p, ok := i.progress[progressKey(ownerID, documentName)]
	return p, ok
}

func (i *DocumentIngestor) forget(ownerID, documentName string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.progress, progressKey(ownerID, documentName))
}

func (i *DocumentIngestor) setProgress(ownerID, documentName string, p Progress) {
	p.UpdatedAt = time.Now().UTC()
	i.mu.Lock()
	defer i.mu.Unlock()
	i.progress[progressKey(ownerID, documentName)] = p
}

func progressKey(ownerID, documentName string) string {
	return ownerID + "\x00" + documentName
}
