package organizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client is the organizer API entry point. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	obs     *observer
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("organizer: invalid base url %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.apiKey,
		http:    hc,
		obs:     obs,
	}, nil
}

// Send hands a free-form message to the assistant.
func (c *Client) Send(ctx context.Context, tenant, text string) (reply Reply, err error) {
	start := time.Now()
	defer func() { c.obs.observe("send", start, err) }()

	body := map[string]string{"tenant": tenant, "text": text}
	err = c.do(ctx, http.MethodPost, "/v1/messages", body, &reply)
	return reply, err
}

// Search answers a question over the tenant's records.
func (c *Client) Search(ctx context.Context, tenant string, req SearchRequest) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	body := struct {
		Tenant string `json:"tenant"`
		SearchRequest
	}{tenant, req}
	err = c.do(ctx, http.MethodPost, "/v1/search", body, &ans)
	return ans, err
}

// Lists returns the tenant's lists.
func (c *Client) Lists(ctx context.Context, tenant string) (lists []List, err error) {
	start := time.Now()
	defer func() { c.obs.observe("lists", start, err) }()

	var resp struct {
		Lists []List `json:"lists"`
	}
	err = c.do(ctx, http.MethodGet, "/v1/lists?tenant="+url.QueryEscape(tenant), nil, &resp)
	return resp.Lists, err
}

// CreateList creates a list. config is optional JSON.
func (c *Client) CreateList(ctx context.Context, tenant, name, config string) (l List, err error) {
	start := time.Now()
	defer func() { c.obs.observe("create_list", start, err) }()

	body := map[string]string{"tenant": tenant, "name": name, "config": config}
	err = c.do(ctx, http.MethodPost, "/v1/lists", body, &l)
	return l, err
}

// Usage returns the provider token spend.
func (c *Client) Usage(ctx context.Context) (u Usage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	err = c.do(ctx, http.MethodGet, "/v1/usage", nil, &u)
	return u, err
}

// Health returns the server health. A degraded or failing server is reported in
// Health.Status, not as an error.
func (c *Client) Health(ctx context.Context) (h Health, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	err = c.do(ctx, http.MethodGet, "/health", nil, &h)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && h.Status != "" {
		err = nil
	}
	return h, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("organizer: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("organizer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("organizer: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("organizer: read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		} else {
			apiErr.Code, apiErr.Message = "http_error", strings.TrimSpace(string(data))
		}
		// Health reports its status in the body of a 503.
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("organizer: decode response: %w", err)
	}
	return nil
}
