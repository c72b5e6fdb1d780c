package formatter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/models"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAI) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewOpenAI(srv.Client(), config.FormatterConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: srv.URL,
	})
	return srv, client
}

func TestOpenAI_Format(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "  # Clean Markdown\n\nDone.  "}},
			},
		})
	})

	md, err := client.Format(context.Background(), Document{
		Title:   "A Page",
		URL:     "https://example.com/",
		Content: "raw page text",
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if md != "# Clean Markdown\n\nDone." {
		t.Errorf("markdown = %q", md)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestOpenAI_ErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		wantCode string
	}{
		{http.StatusUnauthorized, models.ErrCodeUnauthorized},
		{http.StatusForbidden, models.ErrCodeUnauthorized},
		{http.StatusTooManyRequests, models.ErrCodeRateLimited},
		{http.StatusInternalServerError, models.ErrCodeFormatting},
	}

	for _, tt := range tests {
		_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "nope"},
			})
		})

		_, err := client.Format(context.Background(), Document{Title: "T", Content: "c"})
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		var ce *models.CrawlError
		if !errors.As(err, &ce) {
			t.Errorf("status %d: error type %T, want *models.CrawlError", tt.status, err)
			continue
		}
		if ce.Code != tt.wantCode {
			t.Errorf("status %d: code = %q, want %q", tt.status, ce.Code, tt.wantCode)
		}
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	if _, err := client.Format(context.Background(), Document{Title: "T"}); err == nil {
		t.Error("expected error for empty choices")
	}
}
