package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/conflux-rag/conflux/internal/config"
	"github.com/conflux-rag/conflux/internal/pipeline"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		APIKey:       "secret",
		MaxQueueSize: 10,
		JobTTL:       time.Hour,
	}
	log := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	orch := pipeline.NewOrchestrator(cfg, nil, nil, nil, nil, log)
	return NewServer(orch, log, cfg)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"page_id":"1"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_WrongKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"page_id":"1"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleSync(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"page_id":"42","project_name":"apollo"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job_id in the response")
	}
	if resp["status"] != string(pipeline.StatusQueued) {
		t.Errorf("expected queued status, got %v", resp["status"])
	}

	// The job should be pollable right away.
	statusReq := httptest.NewRequest(http.MethodGet, "/api/sync/"+jobID+"/status", nil)
	statusReq.Header.Set("Authorization", "Bearer secret")
	statusRec := httptest.NewRecorder()
	s.ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d", statusRec.Code)
	}
	var status map[string]any
	json.Unmarshal(statusRec.Body.Bytes(), &status)
	if status["page_id"] != "42" || status["project_name"] != "apollo" {
		t.Errorf("unexpected status body %v", status)
	}
}

func TestHandleSync_MissingPageID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"project_name":"x"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSyncStatus_NotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sync/nope/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestContextText_SplicesDescriptions(t *testing.T) {
	payload := map[string]any{
		"text": "See ![🖼️ diagram.png] and [📎 spec.pdf] for details.",
		"attachments": []any{
			map[string]any{"diagram.png": "A flow diagram of the sync pipeline."},
			map[string]any{"spec.pdf": "The full specification text."},
			map[string]any{"missing.pdf": ""},
		},
	}
	text := contextText(payload)
	if !strings.Contains(text, "![🖼️ diagram.png]\n\n**Attachment Description:** A flow diagram of the sync pipeline.") {
		t.Errorf("image description not spliced: %q", text)
	}
	if !strings.Contains(text, "[📎 spec.pdf]\n\n**Attachment Description:** The full specification text.") {
		t.Errorf("file description not spliced: %q", text)
	}
}

func TestContextText_NoAttachments(t *testing.T) {
	payload := map[string]any{"text": "plain text"}
	if got := contextText(payload); got != "plain text" {
		t.Errorf("expected passthrough, got %q", got)
	}
}
