package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrListNotFound signals that the user has no list with the requested name.
	ErrListNotFound = errors.New("list not found")
	// ErrEmptyQuery signals a blank request text.
	ErrEmptyQuery = errors.New("empty query")
	// ErrModelAnswer signals a missing or unparsable generation answer.
	ErrModelAnswer = errors.New("model answer error")
	// ErrInvalidRequest signals a malformed client request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a text generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrTokenBudgetExceeded signals that the daily or monthly provider token budget is spent.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
)

// ModelAnswerError wraps ErrModelAnswer with the stage that failed and a message safe to show the user.
type ModelAnswerError struct {
	Stage   string
	Message string
	Cause   error
}

func (e *ModelAnswerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrModelAnswer.Error(), e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrModelAnswer.Error(), e.Stage)
}

func (e *ModelAnswerError) Unwrap() error { return ErrModelAnswer }

// NewModelAnswerError creates a model answer error for the given stage.
func NewModelAnswerError(stage string, cause error) error {
	return &ModelAnswerError{
		Stage:   stage,
		Message: "The assistant did not understand the request. Please rephrase it.",
		Cause:   cause,
	}
}

// UserMessage returns the user-facing text of a model answer error, or "" if err is not one.
func UserMessage(err error) string {
	var mae *ModelAnswerError
	if errors.As(err, &mae) {
		return mae.Message
	}
	return ""
}
