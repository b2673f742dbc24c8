package domain

import "context"

// Prompt is one chat request to the text generation service.
type Prompt struct {
	Model  string
	System string
	User   string
}

// Generator is the opaque text generation capability. The answer is free text that
// is expected to embed a JSON object or array.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}
