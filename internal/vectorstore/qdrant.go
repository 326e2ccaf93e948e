package vectorstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VectorName is the named vector every point carries. Search requests
// must address the same name.
const VectorName = "openai"

// Store is a minimal REST client to Qdrant. It assumes cosine distance
// over a single named vector.
type Store struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	httpClient *http.Client
}

func NewStore(baseURL, apiKey, collection string, dimension int) *Store {
	return &Store{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Point is a single vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"-"`
	Payload map[string]any `json:"payload"`
}

// SearchResult is a scored payload returned from a similarity search.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// PointID derives a deterministic UUID for a chunk so re-syncing a page
// overwrites its previous points instead of duplicating them.
func PointID(pageID string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", pageID, chunkIndex)))
	b := sum[:16]
	b[6] = (b[6] & 0x0f) | 0x50
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// EnsureCollection creates the collection when missing. Qdrant treats a
// repeated create with the same schema as success.
func (s *Store) EnsureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			VectorName: map[string]any{
				"size":     s.dimension,
				"distance": "Cosine",
			},
		},
	}
	return s.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil)
}

// Upsert writes points and waits for them to be applied.
func (s *Store) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID,
			"vector":  map[string]any{VectorName: p.Vector},
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	return s.do(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true", body, nil)
}

// Search runs a similarity search over the named vector.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector": map[string]any{
			"name":   VectorName,
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []SearchResult `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// DeletePoints removes specific points by ID.
func (s *Store) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/delete?wait=true", body, nil)
}

// DeleteCollection drops the whole collection.
func (s *Store) DeleteCollection(ctx context.Context) error {
	return s.do(ctx, http.MethodDelete, "/collections/"+s.collection, nil, nil)
}

func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
