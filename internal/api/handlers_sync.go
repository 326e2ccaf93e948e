package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conflux-rag/conflux/internal/pipeline"
)

type syncRequest struct {
	PageID      string `json:"page_id"`
	ProjectName string `json:"project_name"`
}

// handleSync queues a page-tree sync job.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PageID == "" {
		jsonError(w, "page_id is required", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(req.PageID, req.ProjectName)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"page_id":  job.PageID,
		"status":   job.Status,
		"poll_url": fmt.Sprintf("/api/sync/%s/status", job.ID),
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":       snap.ID,
		"page_id":      snap.PageID,
		"project_name": snap.ProjectName,
		"status":       snap.Status,
		"phase":        snap.Phase,
		"progress":     snap.Progress,
	})
}

// handleDeleteCollection drops the whole vector collection.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Store().DeleteCollection(r.Context()); err != nil {
		jsonError(w, "delete collection: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
