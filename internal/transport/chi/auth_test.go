package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	for _, keys := range [][]string{nil, {"", ""}} {
		handler := BearerAuthMiddleware(keys)(okHandler())

		req := httptest.NewRequest("GET", "/v1/lists", http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("keys %q: got %d, want %d", keys, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/v1/lists", "", http.StatusUnauthorized},
		{"basic scheme", "/v1/lists", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"invalid token", "/v1/lists", "Bearer wrong-key", http.StatusUnauthorized},
		{"first key", "/v1/lists", "Bearer key1", http.StatusOK},
		{"second key", "/v1/messages", "Bearer key2", http.StatusOK},
		{"health exempt", "/health", "", http.StatusOK},
		{"metrics exempt", "/metrics", "", http.StatusOK},
	}

	handler := BearerAuthMiddleware([]string{"key1", "key2"})(okHandler())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
			}
		})
	}
}
