package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q, want nomic-embed-text", req.Model)
		}
		json.NewEncoder(w).Encode(ollamaEmbeddingResponse{
			Embedding: []float64{0.1, 0.2, 0.3},
		})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d dims, want 3", len(vec))
	}
	if vec[0] != 0.1 {
		t.Errorf("vec[0] = %v, want 0.1", vec[0])
	}
}

func TestOllamaEmbedder_EmptyText(t *testing.T) {
	e := NewOllamaEmbedder("http://localhost:11434", "nomic-embed-text")
	if _, err := e.Embed(context.Background(), "   "); err == nil {
		t.Error("expected an error for blank text")
	}
}

func TestOllamaEmbedder_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestOllamaCompleter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ollamaCompletionResponse{Response: "the answer"})
	}))
	defer srv.Close()

	c := NewOllamaCompleter(srv.URL, "llama3.1:8b")
	got, err := c.Complete(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the answer" {
		t.Errorf("got %q, want %q", got, "the answer")
	}
}

func TestOllamaCompleter_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaCompleter(srv.URL, "")
	if _, err := c.Complete(context.Background(), "question"); err == nil {
		t.Error("expected an error for a 500 response")
	}
}
