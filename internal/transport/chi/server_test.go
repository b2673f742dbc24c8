package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/domain/search/aggregate"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
	"github.com/avdivo/dev-organizer/internal/usecase/assistant"
	"github.com/avdivo/dev-organizer/internal/usecase/budget"
	healthuc "github.com/avdivo/dev-organizer/internal/usecase/health"
	"github.com/avdivo/dev-organizer/internal/usecase/query"
)

type mockAssistant struct {
	handleFn func(ctx context.Context, tenant, text string) (assistant.Reply, error)
}

func (m *mockAssistant) Handle(ctx context.Context, tenant, text string) (assistant.Reply, error) {
	return m.handleFn(ctx, tenant, text)
}

type mockPlanner struct {
	planFn  func(ctx context.Context, req query.Request) (query.Answer, error)
	lastReq query.Request
}

func (m *mockPlanner) Plan(ctx context.Context, req query.Request) (query.Answer, error) {
	m.lastReq = req
	return m.planFn(ctx, req)
}

type mockLists struct {
	names    []string
	lists    []domcol.List
	createFn func(ctx context.Context, tenant, name, config string) (domcol.List, error)
}

func (m *mockLists) Names(context.Context, string) ([]string, error) { return m.names, nil }

func (m *mockLists) List(context.Context, string) ([]domcol.List, error) { return m.lists, nil }

func (m *mockLists) Create(ctx context.Context, tenant, name, config string) (domcol.List, error) {
	return m.createFn(ctx, tenant, name, config)
}

type fixedHealth healthuc.Report

func (h fixedHealth) Check(context.Context) healthuc.Report { return healthuc.Report(h) }

type fixture struct {
	assistant *mockAssistant
	planner   *mockPlanner
	lists     *mockLists
	health    fixedHealth
	usage     UsageReader
}

func newFixture() *fixture {
	return &fixture{
		assistant: &mockAssistant{handleFn: func(context.Context, string, string) (assistant.Reply, error) {
			return assistant.Reply{}, nil
		}},
		planner: &mockPlanner{planFn: func(context.Context, query.Request) (query.Answer, error) {
			return query.Answer{}, nil
		}},
		lists: &mockLists{names: []string{"default", "shopping"}},
		health: fixedHealth{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		},
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(f.assistant, f.planner, f.lists, f.health, f.usage, nil, zap.NewNop())
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestHandleMessage(t *testing.T) {
	f := newFixture()
	f.assistant.handleFn = func(_ context.Context, tenant, text string) (assistant.Reply, error) {
		assert.Equal(t, "42", tenant)
		assert.Equal(t, "how much did I spend?", text)
		return assistant.Reply{Action: intent.ActionSearch, Text: "You spent 30.", Branch: query.BranchSynthesis}, nil
	}

	rr := f.do(t, http.MethodPost, "/v1/messages", `{"tenant":"42","text":"how much did I spend?"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	resp := decodeBody[messageResponse](t, rr)
	assert.Equal(t, messageResponse{Action: "search", Answer: "You spent 30.", Branch: "synthesis"}, resp)
}

func TestHandleMessage_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"malformed json", `{"tenant":`, CodeBadRequest},
		{"unknown field", `{"tenant":"1","text":"x","extra":1}`, CodeBadRequest},
		{"missing tenant", `{"text":"buy milk"}`, CodeValidationFailed},
		{"missing text", `{"tenant":"1"}`, CodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := newFixture().do(t, http.MethodPost, "/v1/messages", tt.body)

			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rr).Code)
		})
	}
}

func TestHandleMessage_DomainErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    ErrorCode
		message string
	}{
		{
			"model answer", domain.NewModelAnswerError("dispatch", errors.New("no json")),
			http.StatusUnprocessableEntity, CodeModelAnswer,
			"The assistant did not understand the request. Please rephrase it.",
		},
		{"list not found", domain.ErrListNotFound, http.StatusNotFound, CodeListNotFound, "list not found"},
		{"empty query", domain.ErrEmptyQuery, http.StatusBadRequest, CodeEmptyQuery, "empty query"},
		{
			"generation provider", errors.Join(errors.New("timeout"), domain.ErrGenerationProviderError),
			http.StatusBadGateway, CodeGenerationProvider, "generation provider error",
		},
		{"internal", errors.New("redis: connection refused"), http.StatusInternalServerError, CodeInternalError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.assistant.handleFn = func(context.Context, string, string) (assistant.Reply, error) {
				return assistant.Reply{}, tt.err
			}

			rr := f.do(t, http.MethodPost, "/v1/messages", `{"tenant":"1","text":"hello"}`)

			require.Equal(t, tt.status, rr.Code)
			resp := decodeBody[ErrorResponse](t, rr)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.planner.planFn = func(context.Context, query.Request) (query.Answer, error) {
		return query.Answer{
			Text:   "Average price is 20.",
			Branch: query.BranchSynthesis,
			Count:  2,
			Records: []result.Result{
				result.New("1", "milk 10", 0, map[string]string{"amount": "10"}),
				result.New("2", "bread 30", 0, map[string]string{"amount": "30"}),
			},
			Aggregate: &aggregate.Result{Function: aggregate.Avg, Field: "amount", Value: 20, N: 2},
		}, nil
	}

	rr := f.do(t, http.MethodPost, "/v1/search", `{"tenant":"7","list":"shopping","query":"average price"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, query.Request{
		Tenant: "7",
		List:   "shopping",
		Query:  "average price",
		Lists:  []string{"default", "shopping"},
	}, f.planner.lastReq)

	resp := decodeBody[searchResponse](t, rr)
	assert.Equal(t, "synthesis", resp.Branch)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Records, 2)
	assert.Nil(t, resp.Records[0].Distance)
	require.NotNil(t, resp.Aggregate)
	assert.Equal(t, "avg", resp.Aggregate.Function)
	assert.InDelta(t, 20.0, resp.Aggregate.Value, 1e-9)
}

func TestSearch_UnknownList(t *testing.T) {
	f := newFixture()
	f.planner.planFn = func(context.Context, query.Request) (query.Answer, error) {
		t.Fatal("planner must not run for an unknown list")
		return query.Answer{}, nil
	}

	rr := f.do(t, http.MethodPost, "/v1/search", `{"tenant":"7","list":"travel","query":"tickets"}`)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, CodeListNotFound, decodeBody[ErrorResponse](t, rr).Code)
}

func TestLists(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("list", func(t *testing.T) {
		f := newFixture()
		f.lists.lists = []domcol.List{domcol.Reconstruct("shopping", "", created)}

		rr := f.do(t, http.MethodGet, "/v1/lists?tenant=7", "")

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeBody[listsResponse](t, rr)
		require.Len(t, resp.Lists, 1)
		assert.Equal(t, "shopping", resp.Lists[0].Name)
		assert.True(t, created.Equal(resp.Lists[0].CreatedAt))
	})

	t.Run("list requires tenant", func(t *testing.T) {
		rr := newFixture().do(t, http.MethodGet, "/v1/lists", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("create", func(t *testing.T) {
		f := newFixture()
		f.lists.createFn = func(_ context.Context, tenant, name, config string) (domcol.List, error) {
			assert.Equal(t, "7", tenant)
			assert.Equal(t, `{"color":"red"}`, config)
			return domcol.Reconstruct(name, config, created), nil
		}

		rr := f.do(t, http.MethodPost, "/v1/lists", `{"tenant":"7","name":"travel","config":"{\"color\":\"red\"}"}`)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "travel", decodeBody[listResponse](t, rr).Name)
	})

	t.Run("create rejects invalid config", func(t *testing.T) {
		rr := newFixture().do(t, http.MethodPost, "/v1/lists", `{"tenant":"7","name":"travel","config":"{oops"}`)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "config must be valid JSON", decodeBody[ErrorResponse](t, rr).Message)
	})

	t.Run("create duplicate", func(t *testing.T) {
		f := newFixture()
		f.lists.createFn = func(context.Context, string, string, string) (domcol.List, error) {
			return domcol.List{}, domain.ErrAlreadyExists
		}

		rr := f.do(t, http.MethodPost, "/v1/lists", `{"tenant":"7","name":"default"}`)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	rr := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, rr).Status)

	f.health = fixedHealth{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{"embedding": healthuc.CheckError}}
	rr = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRecoverer(t *testing.T) {
	f := newFixture()
	f.assistant.handleFn = func(context.Context, string, string) (assistant.Reply, error) {
		panic("boom")
	}

	rr := f.do(t, http.MethodPost, "/v1/messages", `{"tenant":"1","text":"hello"}`)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, CodeInternalError, decodeBody[ErrorResponse](t, rr).Code)
}

func TestNotFoundRoute(t *testing.T) {
	rr := newFixture().do(t, http.MethodGet, "/v1/unknown", "")

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, CodeNotFound, decodeBody[ErrorResponse](t, rr).Code)
}

type fixedUsage struct{ daily, monthly budget.Usage }

func (u fixedUsage) Daily() budget.Usage   { return u.daily }
func (u fixedUsage) Monthly() budget.Usage { return u.monthly }

func TestUsage(t *testing.T) {
	t.Run("unlimited without budget", func(t *testing.T) {
		rr := newFixture().do(t, http.MethodGet, "/v1/usage", "")

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeBody[usageResponse](t, rr)
		assert.Equal(t, int64(-1), resp.Daily.Remaining)
		assert.False(t, resp.Monthly.Exhausted)
	})

	t.Run("exhausted daily", func(t *testing.T) {
		f := newFixture()
		f.usage = fixedUsage{
			daily:   budget.Usage{Limit: 100, Used: 120, Remaining: 0, ResetsAt: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
			monthly: budget.Usage{Used: 120, Remaining: -1},
		}

		rr := f.do(t, http.MethodGet, "/v1/usage", "")

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeBody[usageResponse](t, rr)
		assert.True(t, resp.Daily.Exhausted)
		assert.Equal(t, int64(120), resp.Daily.Used)
		assert.False(t, resp.Monthly.Exhausted)
	})
}

func TestBudgetExceededMapsTo429(t *testing.T) {
	f := newFixture()
	f.assistant.handleFn = func(context.Context, string, string) (assistant.Reply, error) {
		return assistant.Reply{}, domain.ErrTokenBudgetExceeded
	}

	rr := f.do(t, http.MethodPost, "/v1/messages", `{"tenant":"1","text":"hello"}`)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, CodeBudgetExceeded, decodeBody[ErrorResponse](t, rr).Code)
}
