package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conflux-rag/conflux/internal/attach"
	"github.com/conflux-rag/conflux/internal/chunk"
	"github.com/conflux-rag/conflux/internal/chunker"
	"github.com/conflux-rag/conflux/internal/confluence"
	"github.com/conflux-rag/conflux/internal/llm"
	"github.com/conflux-rag/conflux/internal/vectorstore"
)

// Attachment descriptions are capped so one large PDF cannot crowd the
// chat context window.
const attachmentDescTokens = 500

// Worker processes a single sync job.
type Worker struct {
	confluence *confluence.Client
	chunker    *chunker.Chunker
	llm        *llm.Client
	store      *vectorstore.Store
	extractor  *attach.Extractor
	log        *slog.Logger

	maxConcurrentEmbed int
	maxConcurrentFetch int
	attachmentMaxBytes int64
	processAttachments bool
}

type WorkerOptions struct {
	MaxConcurrentEmbed int
	MaxConcurrentFetch int
	AttachmentMaxBytes int64
	ProcessAttachments bool
}

func NewWorker(cf *confluence.Client, ck *chunker.Chunker, lc *llm.Client, vs *vectorstore.Store, ex *attach.Extractor, log *slog.Logger, opts WorkerOptions) *Worker {
	return &Worker{
		confluence:         cf,
		chunker:            ck,
		llm:                lc,
		store:              vs,
		extractor:          ex,
		log:                log,
		maxConcurrentEmbed: opts.MaxConcurrentEmbed,
		maxConcurrentFetch: opts.MaxConcurrentFetch,
		attachmentMaxBytes: opts.AttachmentMaxBytes,
		processAttachments: opts.ProcessAttachments,
	}
}

// Process runs the full sync pipeline for a job: crawl the page tree,
// chunk every page, describe attachments, embed, and upsert.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "page_id", job.PageID)

	job.SetStatus(StatusCrawling, "crawling")
	pages, err := w.confluence.PageTree(ctx, job.PageID)
	if err != nil {
		log.Error("crawl failed", "error", err)
		job.AddError(fmt.Sprintf("crawl: %s", err))
		job.SetStatus(StatusFailed, "crawling")
		return
	}
	job.SetTotalPages(len(pages))
	log.Info("crawled page tree", "pages", len(pages))

	hadErrors := false
	stored := 0
	for _, page := range pages {
		select {
		case <-ctx.Done():
			job.AddError(ctx.Err().Error())
			job.SetStatus(StatusFailed, "cancelled")
			return
		default:
		}

		n, err := w.processPage(ctx, job, page)
		job.IncrPagesProcessed()
		if err != nil {
			log.Error("page failed", "page_id", page.ID, "title", page.Title, "error", err)
			job.AddError(fmt.Sprintf("page %s: %s", page.ID, err))
			hadErrors = true
			continue
		}
		stored += n
	}

	switch {
	case stored > 0 && hadErrors:
		job.SetStatus(StatusPartial, "done")
	case hadErrors:
		job.SetStatus(StatusFailed, "storing")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
	log.Info("sync complete", "pages", len(pages), "chunks_stored", stored, "errors", hadErrors)
}

// processPage chunks one page and writes its points, returning how many
// chunks were stored.
func (w *Worker) processPage(ctx context.Context, job *Job, page confluence.Page) (int, error) {
	job.SetStatus(StatusChunking, "chunking")
	chunks, err := w.chunker.Chunk(page.Body)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		w.log.Debug("page produced no chunks", "page_id", page.ID)
		return 0, nil
	}

	var descriptions map[string]string
	if w.processAttachments {
		descriptions = w.describeAttachments(ctx, job, page, chunks)
	}

	job.SetStatus(StatusEmbedding, "embedding")
	vectors, err := w.embedChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	job.SetStatus(StatusStoring, "storing")
	points := make([]vectorstore.Point, len(chunks))
	for i, ck := range chunks {
		points[i] = vectorstore.Point{
			ID:      vectorstore.PointID(page.ID, i),
			Vector:  vectors[i],
			Payload: chunkPayload(job, page, ck, i, descriptions),
		}
	}
	if err := w.store.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	job.AddChunksStored(len(points))
	return len(points), nil
}

// embedChunks embeds all chunk texts with bounded concurrency and
// per-request retry.
func (w *Worker) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	errs := make([]error, len(chunks))
	sem := make(chan struct{}, w.maxConcurrentEmbed)
	done := make(chan int, len(chunks))

	for i := range chunks {
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem }()
			text := llm.FitForEmbedding(EmbedText(chunks[i], w.chunker.Levels()))
			var vecs [][]float32
			var lastErr error
			for attempt := 0; attempt < MaxRetries; attempt++ {
				vecs, lastErr = w.llm.Embed(ctx, []string{text})
				if lastErr == nil || !IsRetryable(lastErr) {
					break
				}
				w.log.Warn("retryable embedding error", "chunk", i, "attempt", attempt, "error", lastErr)
				select {
				case <-time.After(Backoff(attempt)):
				case <-ctx.Done():
					lastErr = ctx.Err()
				}
				if ctx.Err() != nil {
					break
				}
			}
			if lastErr != nil {
				errs[i] = lastErr
			} else {
				vectors[i] = vecs[0]
			}
			done <- i
		}(i)
	}
	for range chunks {
		<-done
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return vectors, nil
}

// describeAttachments downloads and extracts text for the attachments
// referenced by a page's chunks. Failures degrade to an empty map; the
// page still syncs without descriptions.
func (w *Worker) describeAttachments(ctx context.Context, job *Job, page confluence.Page, chunks []chunk.Chunk) map[string]string {
	wanted := make(map[string]bool)
	for _, ck := range chunks {
		for _, att := range ck.Attachments {
			if attach.Supported(att.FileName) {
				wanted[att.FileName] = true
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	listed, err := w.confluence.Attachments(ctx, page.ID)
	if err != nil {
		w.log.Warn("attachment listing failed", "page_id", page.ID, "error", err)
		return nil
	}

	type result struct {
		name string
		text string
	}
	sem := make(chan struct{}, w.maxConcurrentFetch)
	results := make(chan result, len(listed))
	launched := 0
	for _, att := range listed {
		if !wanted[att.Title] {
			continue
		}
		launched++
		sem <- struct{}{}
		go func(att confluence.Attachment) {
			defer func() { <-sem }()
			data, err := w.confluence.Download(ctx, att, w.attachmentMaxBytes)
			if err != nil {
				w.log.Warn("attachment download failed", "file", att.Title, "error", err)
				results <- result{name: att.Title}
				return
			}
			text, err := w.extractor.Extract(att.Title, data)
			if err != nil {
				w.log.Warn("attachment extraction failed", "file", att.Title, "error", err)
				results <- result{name: att.Title}
				return
			}
			results <- result{name: att.Title, text: llm.TruncateToBudget(text, attachmentDescTokens)}
		}(att)
	}

	descriptions := make(map[string]string)
	for i := 0; i < launched; i++ {
		r := <-results
		if r.text != "" {
			descriptions[r.name] = r.text
		}
	}
	job.AddAttachmentsProcessed(len(descriptions))
	return descriptions
}

// EmbedText is the string actually embedded for a chunk: the hierarchy
// breadcrumb followed by the content, so sibling sections with similar
// prose stay distinguishable.
func EmbedText(ck chunk.Chunk, levels chunk.Levels) string {
	crumb := breadcrumb(ck, levels)
	if crumb == "" {
		return ck.PageContent
	}
	return crumb + "\n\n" + ck.PageContent
}

func breadcrumb(ck chunk.Chunk, levels chunk.Levels) string {
	if len(ck.Hierarchy) == 0 {
		return ""
	}
	var parts []string
	for _, key := range []string{"roadmap", "table"} {
		if v, ok := ck.Hierarchy[key]; ok {
			parts = append(parts, v)
		}
	}
	// Heading entries come out in configured level order.
	for _, lvl := range levels {
		if v, ok := ck.Hierarchy[lvl.Label]; ok {
			parts = append(parts, lvl.Label+": "+v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " > " + p
	}
	return out
}

// chunkPayload builds the point payload. The attachments field mirrors
// what the chat layer expects: a list of single-entry maps from file
// name to extracted description.
func chunkPayload(job *Job, page confluence.Page, ck chunk.Chunk, index int, descriptions map[string]string) map[string]any {
	atts := make([]map[string]string, 0, len(ck.Attachments))
	for _, a := range ck.Attachments {
		desc := descriptions[a.FileName]
		atts = append(atts, map[string]string{a.FileName: desc})
	}
	payload := map[string]any{
		"text":           ck.PageContent,
		"hierarchy":      ck.Hierarchy,
		"attachments":    atts,
		"chunk_index":    index,
		"source":         "confluence",
		"source_page_id": page.ID,
		"page_title":     page.Title,
		"project_name":   job.ProjectName,
		"last_modified":  page.LastModified,
	}
	if page.LastModifiedBy != "" {
		payload["last_modified_by"] = page.LastModifiedBy
	}
	if ck.Type != "" {
		payload["type"] = ck.Type
	}
	return payload
}
