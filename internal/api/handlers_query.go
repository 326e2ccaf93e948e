package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/conflux-rag/conflux/internal/vectorstore"
)

const defaultTopK = 3

// handleSearch embeds the query and returns the closest chunks.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		jsonError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	k := defaultTopK
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			k = n
		}
	}

	results, err := s.retrieve(r, query, k)
	if err != nil {
		jsonError(w, "search: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]any{
			"score":   res.Score,
			"payload": res.Payload,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"query": query, "results": out})
}

type chatRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
	Format   string `json:"format"`
}

// handleChat answers a question grounded in retrieved chunks.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}
	k := req.K
	if k <= 0 {
		k = defaultTopK
	}

	results, err := s.retrieve(r, req.Question, k)
	if err != nil {
		jsonError(w, "retrieve: "+err.Error(), http.StatusInternalServerError)
		return
	}

	contexts := make([]string, 0, len(results))
	for _, res := range results {
		contexts = append(contexts, contextText(res.Payload))
	}

	answer, err := s.orchestrator.LLM().Answer(r.Context(), req.Question, contexts)
	if err != nil {
		jsonError(w, "generate answer: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"question": req.Question,
		"answer":   answer,
		"sources":  sourceRefs(results),
	}
	if req.Format == "html" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(answer), &buf); err == nil {
			resp["answer_html"] = buf.String()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) retrieve(r *http.Request, query string, k int) ([]vectorstore.SearchResult, error) {
	vectors, err := s.orchestrator.LLM().Embed(r.Context(), []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.orchestrator.Store().Search(r.Context(), vectors[0], k)
}

// contextText renders one retrieved payload for the chat prompt,
// splicing extracted attachment descriptions in after their markers.
func contextText(payload map[string]any) string {
	text, _ := payload["text"].(string)
	atts, _ := payload["attachments"].([]any)
	for _, a := range atts {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		for filename, desc := range m {
			d, _ := desc.(string)
			if d == "" {
				continue
			}
			for _, pattern := range []string{
				fmt.Sprintf("![🖼️ %s]", filename),
				fmt.Sprintf("![%s]", filename),
				fmt.Sprintf("[📎 %s]", filename),
			} {
				if strings.Contains(text, pattern) {
					text = strings.ReplaceAll(text, pattern, pattern+"\n\n**Attachment Description:** "+d)
				}
			}
		}
	}
	return text
}

func sourceRefs(results []vectorstore.SearchResult) []map[string]any {
	refs := make([]map[string]any, 0, len(results))
	for _, res := range results {
		refs = append(refs, map[string]any{
			"page_id":    res.Payload["source_page_id"],
			"page_title": res.Payload["page_title"],
			"score":      res.Score,
		})
	}
	return refs
}
