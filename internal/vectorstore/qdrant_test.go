package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestPointID(t *testing.T) {
	a := PointID("12345", 0)
	b := PointID("12345", 0)
	if a != b {
		t.Errorf("same inputs must produce the same id: %s vs %s", a, b)
	}
	if PointID("12345", 1) == a {
		t.Errorf("different chunk index must produce a different id")
	}
	if PointID("54321", 0) == a {
		t.Errorf("different page must produce a different id")
	}
	if !uuidRe.MatchString(a) {
		t.Errorf("id %q is not a well-formed uuid", a)
	}
}

func TestEnsureCollection(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/docs" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"result":true,"status":"ok"}`))
	}))
	defer srv.Close()

	s := NewStore(srv.URL, "", "docs", 3072)
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vectors := got["vectors"].(map[string]any)
	named := vectors["openai"].(map[string]any)
	if named["size"].(float64) != 3072 || named["distance"] != "Cosine" {
		t.Errorf("unexpected vector schema %v", named)
	}
}

func TestUpsertAndSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/docs/points":
			if r.URL.Query().Get("wait") != "true" {
				t.Errorf("upsert must wait for application")
			}
			var body struct {
				Points []map[string]any `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.Points) != 1 {
				t.Fatalf("expected 1 point, got %d", len(body.Points))
			}
			vec := body.Points[0]["vector"].(map[string]any)
			if _, ok := vec["openai"]; !ok {
				t.Errorf("point vector must be named, got %v", vec)
			}
			w.Write([]byte(`{"status":"ok"}`))
		case "/collections/docs/points/search":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			vec := body["vector"].(map[string]any)
			if vec["name"] != "openai" {
				t.Errorf("search must address the named vector, got %v", vec)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]any{
					{"id": "abc", "score": 0.91, "payload": map[string]any{"text": "hit"}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewStore(srv.URL, "", "docs", 3)
	err := s.Upsert(context.Background(), []Point{
		{ID: PointID("1", 0), Vector: []float32{0.1, 0.2, 0.3}, Payload: map[string]any{"text": "hi"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Payload["text"] != "hit" {
		t.Errorf("unexpected results %+v", results)
	}
	if results[0].Score != 0.91 {
		t.Errorf("unexpected score %v", results[0].Score)
	}
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	s := NewStore("http://unreachable.invalid", "", "docs", 3)
	if err := s.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("empty upsert should not hit the network: %v", err)
	}
}

func TestSearch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"collection not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewStore(srv.URL, "", "missing", 3)
	if _, err := s.Search(context.Background(), []float32{1}, 1); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
