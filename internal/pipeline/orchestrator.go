package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conflux-rag/conflux/internal/attach"
	"github.com/conflux-rag/conflux/internal/chunker"
	"github.com/conflux-rag/conflux/internal/config"
	"github.com/conflux-rag/conflux/internal/confluence"
	"github.com/conflux-rag/conflux/internal/llm"
	"github.com/conflux-rag/conflux/internal/vectorstore"
)

// Orchestrator manages the sync pipeline.
type Orchestrator struct {
	jobs       *JobStore
	queue      chan *Job
	confluence *confluence.Client
	chunker    *chunker.Chunker
	llm        *llm.Client
	store      *vectorstore.Store
	extractor  *attach.Extractor
	log        *slog.Logger
	cfg        config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(cfg config.Config, cf *confluence.Client, ck *chunker.Chunker, lc *llm.Client, vs *vectorstore.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:       NewJobStore(cfg.JobTTL),
		queue:      make(chan *Job, cfg.MaxQueueSize),
		confluence: cf,
		chunker:    ck,
		llm:        lc,
		store:      vs,
		extractor:  &attach.Extractor{FallbackPdftotext: cfg.PDFFallbackPdftotext},
		log:        log,
		cfg:        cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.confluence, o.chunker, o.llm, o.store, o.extractor, o.log, WorkerOptions{
				MaxConcurrentEmbed: o.cfg.MaxConcurrentEmbed,
				MaxConcurrentFetch: o.cfg.MaxConcurrentFetch,
				AttachmentMaxBytes: o.cfg.AttachmentMaxBytes,
				ProcessAttachments: o.cfg.ProcessAttachments,
			})
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// NewJob creates a queued job for a page tree sync.
func NewJob(pageID, projectName string) *Job {
	now := time.Now()
	return &Job{
		ID:          generateULID(),
		PageID:      pageID,
		ProjectName: projectName,
		Status:      StatusQueued,
		Phase:       "queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Store returns the vector store for direct use by API handlers.
func (o *Orchestrator) Store() *vectorstore.Store {
	return o.store
}

// LLM returns the language model client for direct use by API handlers.
func (o *Orchestrator) LLM() *llm.Client {
	return o.llm
}

// Chunker returns the configured chunker.
func (o *Orchestrator) Chunker() *chunker.Chunker {
	return o.chunker
}
