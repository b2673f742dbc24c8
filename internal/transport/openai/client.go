// Package openai talks to OpenAI-compatible embedding and chat completion APIs.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds the provider settings shared by Embedder and Generator.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int // embeddings only
	User       string
	Logger     *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// parseAPIError extracts a human-readable error from the API response and wraps it with sentinel.
func parseAPIError(kind string, err, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, detail, sentinel)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, sentinel)
	}

	return fmt.Errorf("%s request failed: %v: %w", kind, err, sentinel)
}

// extractDetail reads the "detail" field some compatible providers put in error bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
