package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/metrics"
)

// Generator is a chat completion client. It is safe for concurrent use.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	user        string
	logger      *zap.Logger
}

// NewGenerator creates a chat completion client. cfg.Model is used when a prompt names no model.
func NewGenerator(cfg *Config, temperature float32) *Generator {
	return &Generator{
		client:      newClient(cfg),
		model:       cfg.Model,
		temperature: temperature,
		user:        cfg.User,
		logger:      loggerOrNop(cfg.Logger),
	}
}

// Generate implements domain.Generator. It returns the content of the first choice.
func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	model := p.Model
	if model == "" {
		model = g.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: g.temperature,
		User:        g.user,
	})
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(model, "error").Inc()
		g.logger.Warn("Chat completion failed", zap.String("model", model), zap.Error(err))
		return "", parseAPIError("generation", err, domain.ErrGenerationProviderError)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(model, "error").Inc()
		return "", fmt.Errorf("empty chat completion response: %w", domain.ErrGenerationProviderError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))

	g.logger.Debug("Chat completion",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
