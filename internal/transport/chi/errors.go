package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avdivo/dev-organizer/internal/domain"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeNotFound           ErrorCode = "not_found"
	CodeListNotFound       ErrorCode = "list_not_found"
	CodeAlreadyExists      ErrorCode = "already_exists"
	CodeEmptyQuery         ErrorCode = "empty_query"
	CodeModelAnswer        ErrorCode = "model_answer_error"
	CodeEmbeddingProvider  ErrorCode = "embedding_provider_error"
	CodeGenerationProvider ErrorCode = "generation_provider_error"
	CodeBudgetExceeded     ErrorCode = "token_budget_exceeded"
	CodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		modelAnswerHandler,
		sentinelHandler(domain.ErrListNotFound, http.StatusNotFound, CodeListNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists),
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, CodeEmptyQuery),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, CodeGenerationProvider),
		sentinelHandler(domain.ErrTokenBudgetExceeded, http.StatusTooManyRequests, CodeBudgetExceeded),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrListNotFound,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrEmptyQuery,
		domain.ErrInvalidRequest,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrTokenBudgetExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// modelAnswerHandler surfaces the user-facing text of a model answer error.
func modelAnswerHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrModelAnswer) {
		return false
	}
	msg := domain.UserMessage(err)
	if msg == "" {
		msg = domain.ErrModelAnswer.Error()
	}
	writeError(w, http.StatusUnprocessableEntity, CodeModelAnswer, msg)
	return true
}
