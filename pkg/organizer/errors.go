package organizer

import (
	"fmt"

	"github.com/avdivo/dev-organizer/internal/domain"
)

// Sentinel errors re-exported from the domain layer. Use errors.Is() to check.
var (
	ErrNotFound                = domain.ErrNotFound
	ErrListNotFound            = domain.ErrListNotFound
	ErrAlreadyExists           = domain.ErrAlreadyExists
	ErrEmptyQuery              = domain.ErrEmptyQuery
	ErrInvalidRequest          = domain.ErrInvalidRequest
	ErrModelAnswer             = domain.ErrModelAnswer
	ErrEmbeddingProviderError  = domain.ErrEmbeddingProviderError
	ErrGenerationProviderError = domain.ErrGenerationProviderError
	ErrTokenBudgetExceeded     = domain.ErrTokenBudgetExceeded
)

var codeSentinels = map[string]error{
	"not_found":                 ErrNotFound,
	"list_not_found":            ErrListNotFound,
	"already_exists":            ErrAlreadyExists,
	"empty_query":               ErrEmptyQuery,
	"bad_request":               ErrInvalidRequest,
	"validation_failed":         ErrInvalidRequest,
	"model_answer_error":        ErrModelAnswer,
	"embedding_provider_error":  ErrEmbeddingProviderError,
	"generation_provider_error": ErrGenerationProviderError,
	"token_budget_exceeded":     ErrTokenBudgetExceeded,
}

// APIError is a non-2xx response. It unwraps to the sentinel matching Code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("organizer: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return codeSentinels[e.Code] }
