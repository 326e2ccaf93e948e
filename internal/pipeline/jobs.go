package pipeline

import (
	"sync"
	"time"
)

// JobStatus represents the state of a sync job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusCrawling  JobStatus = "crawling"
	StatusChunking  JobStatus = "chunking"
	StatusEmbedding JobStatus = "embedding"
	StatusStoring   JobStatus = "storing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// Job tracks the state of a single page-tree sync.
type Job struct {
	mu sync.Mutex

	ID          string `json:"job_id"`
	PageID      string `json:"page_id"`
	ProjectName string `json:"project_name"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// Progress tracks sync progress.
type Progress struct {
	TotalPages           int      `json:"total_pages"`
	PagesProcessed       int      `json:"pages_processed"`
	ChunksStored         int      `json:"chunks_stored"`
	AttachmentsProcessed int      `json:"attachments_processed"`
	Errors               []string `json:"errors"`
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotalPages records how many pages the crawl found.
func (j *Job) SetTotalPages(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalPages = n
	j.UpdatedAt = time.Now()
}

// IncrPagesProcessed atomically increments processed pages.
func (j *Job) IncrPagesProcessed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesProcessed++
	j.UpdatedAt = time.Now()
}

// AddChunksStored records stored chunk counts.
func (j *Job) AddChunksStored(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksStored += n
	j.UpdatedAt = time.Now()
}

// AddAttachmentsProcessed records processed attachment counts.
func (j *Job) AddAttachmentsProcessed(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.AttachmentsProcessed += n
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	PageID      string    `json:"page_id"`
	ProjectName string    `json:"project_name"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:          j.ID,
		PageID:      j.PageID,
		ProjectName: j.ProjectName,
		Status:      j.Status,
		Phase:       j.Phase,
		Progress: Progress{
			TotalPages:           j.Progress.TotalPages,
			PagesProcessed:       j.Progress.PagesProcessed,
			ChunksStored:         j.Progress.ChunksStored,
			AttachmentsProcessed: j.Progress.AttachmentsProcessed,
			Errors:               errs,
		},
	}
}
