package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
	"github.com/avdivo/dev-organizer/internal/metrics"
	"github.com/avdivo/dev-organizer/internal/usecase/assistant"
	"github.com/avdivo/dev-organizer/internal/usecase/budget"
	healthuc "github.com/avdivo/dev-organizer/internal/usecase/health"
	"github.com/avdivo/dev-organizer/internal/usecase/query"
)

const maxBodyBytes = 1 << 20

// Assistant handles free-form user messages.
type Assistant interface {
	Handle(ctx context.Context, tenant, text string) (assistant.Reply, error)
}

// Planner answers search queries.
type Planner interface {
	Plan(ctx context.Context, req query.Request) (query.Answer, error)
}

// Lists manages the user's lists.
type Lists interface {
	Names(ctx context.Context, tenant string) ([]string, error)
	List(ctx context.Context, tenant string) ([]domcol.List, error)
	Create(ctx context.Context, tenant, name, config string) (domcol.List, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReader reports provider token spend.
type UsageReader interface {
	Daily() budget.Usage
	Monthly() budget.Usage
}

// Server is the HTTP API of the organizer.
type Server struct {
	assistant     Assistant
	planner       Planner
	lists         Lists
	health        HealthChecker
	usage         UsageReader
	apiKeys       []string
	validate      *validator.Validate
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. usage may be nil when no budget is configured.
// An empty apiKeys disables authentication.
func NewServer(
	assistant Assistant,
	planner Planner,
	lists Lists,
	health HealthChecker,
	usage UsageReader,
	apiKeys []string,
	logger *zap.Logger,
) *Server {
	return &Server{
		assistant:     assistant,
		planner:       planner,
		lists:         lists,
		health:        health,
		usage:         usage,
		apiKeys:       apiKeys,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes builds the router with the middleware stack.
func (s *Server) Routes() http.Handler {
	r := gochi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r gochi.Router) {
		r.Post("/messages", s.HandleMessage)
		r.Post("/search", s.Search)
		r.Get("/lists", s.ListLists)
		r.Post("/lists", s.CreateList)
		r.Get("/usage", s.Usage)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

type messageRequest struct {
	Tenant string `json:"tenant" validate:"required,max=128"`
	Text   string `json:"text" validate:"required,max=4000"`
}

type messageResponse struct {
	Action string `json:"action"`
	Answer string `json:"answer"`
	Branch string `json:"branch,omitempty"`
}

// HandleMessage handles POST /v1/messages.
func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}

	reply, err := s.assistant.Handle(r.Context(), req.Tenant, req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Action: string(reply.Action),
		Answer: reply.Text,
		Branch: string(reply.Branch),
	})
}

type searchRequest struct {
	Tenant string `json:"tenant" validate:"required,max=128"`
	List   string `json:"list" validate:"max=64"`
	Query  string `json:"query" validate:"required,max=4000"`
}

type recordResponse struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Distance *float64          `json:"distance,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type aggregateResponse struct {
	Function string  `json:"function"`
	Field    string  `json:"field"`
	Value    float64 `json:"value"`
	Records  int     `json:"records"`
	Comment  string  `json:"comment,omitempty"`
}

type searchResponse struct {
	Answer    string             `json:"answer"`
	Branch    string             `json:"branch"`
	Count     int                `json:"count"`
	Records   []recordResponse   `json:"records"`
	Aggregate *aggregateResponse `json:"aggregate,omitempty"`
}

// Search handles POST /v1/search. An empty list searches every list of the tenant.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	names, err := s.lists.Names(r.Context(), req.Tenant)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	list := strings.TrimSpace(req.List)
	if list != "" && !slices.Contains(names, list) {
		s.handleDomainError(w, fmt.Errorf("list %q: %w", list, domain.ErrListNotFound))
		return
	}

	answer, err := s.planner.Plan(r.Context(), query.Request{
		Tenant: req.Tenant,
		List:   list,
		Query:  req.Query,
		Lists:  names,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchToResponse(answer))
}

type createListRequest struct {
	Tenant string `json:"tenant" validate:"required,max=128"`
	Name   string `json:"name" validate:"required,max=64"`
	Config string `json:"config" validate:"omitempty,json"`
}

type listResponse struct {
	Name      string    `json:"name"`
	Config    string    `json:"config,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type listsResponse struct {
	Lists []listResponse `json:"lists"`
}

// ListLists handles GET /v1/lists?tenant=.
func (s *Server) ListLists(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenant == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "tenant query parameter is required")
		return
	}

	lists, err := s.lists.List(r.Context(), tenant)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := listsResponse{Lists: make([]listResponse, len(lists))}
	for i, l := range lists {
		resp.Lists[i] = listToResponse(l)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateList handles POST /v1/lists.
func (s *Server) CreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if !s.decode(w, r, &req) {
		return
	}

	l, err := s.lists.Create(r.Context(), req.Tenant, req.Name, req.Config)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listToResponse(l))
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

type periodResponse struct {
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
	Exhausted bool       `json:"exhausted"`
}

type usageResponse struct {
	Daily   periodResponse `json:"daily"`
	Monthly periodResponse `json:"monthly"`
}

// Usage handles GET /v1/usage. Without a budget every period is unlimited.
func (s *Server) Usage(w http.ResponseWriter, _ *http.Request) {
	if s.usage == nil {
		unlimited := periodResponse{Remaining: -1}
		writeJSON(w, http.StatusOK, usageResponse{Daily: unlimited, Monthly: unlimited})
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Daily:   periodToResponse(s.usage.Daily()),
		Monthly: periodToResponse(s.usage.Monthly()),
	})
}

func periodToResponse(u budget.Usage) periodResponse {
	resetsAt := u.ResetsAt
	return periodResponse{
		Limit:     u.Limit,
		Used:      u.Used,
		Remaining: u.Remaining,
		ResetsAt:  &resetsAt,
		Exhausted: u.Limit > 0 && u.Remaining == 0,
	}
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "json":
			parts = append(parts, field+" must be valid JSON")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %q", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func searchToResponse(a query.Answer) searchResponse {
	resp := searchResponse{
		Answer:  a.Text,
		Branch:  string(a.Branch),
		Count:   a.Count,
		Records: make([]recordResponse, len(a.Records)),
	}
	for i, rec := range a.Records {
		resp.Records[i] = recordToResponse(rec)
	}
	if ag := a.Aggregate; ag != nil {
		resp.Aggregate = &aggregateResponse{
			Function: string(ag.Function),
			Field:    ag.Field,
			Value:    ag.Value,
			Records:  ag.N,
			Comment:  ag.Comment,
		}
	}
	return resp
}

func recordToResponse(r result.Result) recordResponse {
	out := recordResponse{ID: r.ID(), Text: r.Text(), Metadata: r.Metadata()}
	if d := r.Distance(); d > 0 {
		out.Distance = &d
	}
	return out
}

func listToResponse(l domcol.List) listResponse {
	return listResponse{Name: l.Name(), Config: l.Config(), CreatedAt: l.CreatedAt()}
}
