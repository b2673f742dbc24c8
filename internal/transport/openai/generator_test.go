package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, answer string, seen *chatRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGenerator_Generate(t *testing.T) {
	var seen chatRequest
	server := chatServer(t, `{"semantic": true}`, &seen)

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL, Model: "default-model", Logger: zap.NewNop()}, 0)

	out, err := gen.Generate(context.Background(), domain.Prompt{System: "classify", User: "what did I buy"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != `{"semantic": true}` {
		t.Errorf("unexpected answer %q", out)
	}
	if seen.Model != "default-model" {
		t.Errorf("expected default model, got %q", seen.Model)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" || seen.Messages[1].Content != "what did I buy" {
		t.Errorf("unexpected messages: %+v", seen.Messages)
	}
}

func TestGenerator_PromptModelOverridesDefault(t *testing.T) {
	var seen chatRequest
	server := chatServer(t, "ok", &seen)
	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL, Model: "small"}, 0)

	if _, err := gen.Generate(context.Background(), domain.Prompt{Model: "strong", User: "remind me tomorrow"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if seen.Model != "strong" {
		t.Errorf("expected prompt model, got %q", seen.Model)
	}
	if len(seen.Messages) != 1 {
		t.Errorf("system message must be omitted when empty: %+v", seen.Messages)
	}
}

func TestGenerator_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL, Model: "m"}, 0)
	_, err := gen.Generate(context.Background(), domain.Prompt{User: "x"})
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL, Model: "m"}, 0)
	_, err := gen.Generate(context.Background(), domain.Prompt{User: "x"})
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}
