package inference

import (
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
)

func TestOllama_ExtractText_RepairsInvalidJSON(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Format != "json" || req.Stream {
			t.Errorf("unexpected request options %+v", req)
		}

		content := `{"texts": [`
		if calls.Add(1) > 1 {
			if len(req.Messages) != 4 {
				t.Errorf("expected repair conversation of 4 messages, got %d", len(req.Messages))
			}
			content = `{"texts":[{"text":"#7","confidence":0.8}]}`
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": content},
			"done":    true,
		})
	}))
	defer server.Close()

	ext := NewOllamaTextExtractor(server.URL, "")
	got, err := ext.ExtractText(context.Background(), jpegBytes(t, createTestImage(20, 20, color.White)))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if len(got) != 1 || got[0].Text != "#7" {
		t.Errorf("unexpected detections %+v", got)
	}
	if ext.Name() != defaultOllamaModel {
		t.Errorf("expected default model, got %s", ext.Name())
	}
}

func TestOllama_ExtractText_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"message":{"role":"assistant","content":"I cannot read this"},"done":true}`))
	}))
	defer server.Close()

	_, err := NewOllamaTextExtractor(server.URL, "llava").ExtractText(context.Background(), jpegBytes(t, createTestImage(10, 10, color.White)))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != maxParseAttempts {
		t.Errorf("expected %d attempts, got %d", maxParseAttempts, calls.Load())
	}
}

func TestOpenAI_ExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"texts\":[{\"text\":\"NOVAK 10\",\"confidence\":0.95}]}"}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	ext := NewOpenAITextExtractor("sk-test", option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	got, err := ext.ExtractText(context.Background(), jpegBytes(t, createTestImage(20, 20, color.White)))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if len(got) != 1 || got[0].Text != "NOVAK 10" || got[0].Confidence != 0.95 {
		t.Errorf("unexpected detections %+v", got)
	}
}
