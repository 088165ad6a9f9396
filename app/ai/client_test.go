package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, status int, content string, inspect func(chatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Expected bearer token, got '%s'", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if inspect != nil {
			inspect(req)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"nope"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

func TestClient_Rewrite(t *testing.T) {
	server := chatServer(t, http.StatusOK,
		"```json\n{\"title\":\"Rates rise\",\"summary\":\"Short\",\"body\":\"Body text\",\"tags\":[\"economy\"],\"qaScore\":0.91}\n```",
		func(req chatRequest) {
			if req.Model != "test-model" {
				t.Errorf("Expected model 'test-model', got '%s'", req.Model)
			}
			if len(req.Messages) != 2 || !strings.Contains(req.Messages[0].Content, "(en)") {
				t.Errorf("Expected system prompt with language, got %+v", req.Messages)
			}
		})
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, APIKey: "secret", Model: "test-model"})
	out, err := client.Rewrite(context.Background(), RewriteRequest{Title: "t", Body: "b", Language: "en"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out.Title != "Rates rise" || out.QAScore != 0.91 || len(out.Tags) != 1 {
		t.Errorf("Unexpected rewrite: %+v", out)
	}
}

func TestClient_Translate(t *testing.T) {
	server := chatServer(t, http.StatusOK,
		`{"tr":{"title":"Faizler yükseldi","lead":"Kısa","body":"Metin","seoTitle":"Faiz","metaDescription":"Açıklama"}}`, nil)
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, APIKey: "secret", Model: "m"})
	out, err := client.Translate(context.Background(), TranslateRequest{Title: "t", Body: "b", SourceLang: "en", Languages: []string{"tr"}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out["tr"].Title != "Faizler yükseldi" {
		t.Errorf("Expected Turkish title, got %+v", out)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		content  string
		expected error
	}{
		{"rate limited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"not json", http.StatusOK, "Sorry, I cannot help with that.", ErrMalformedResponse},
		{"missing body", http.StatusOK, `{"title":"only title","qaScore":0.9}`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, tt.status, tt.content, nil)
			defer server.Close()

			client := NewClient(Config{Endpoint: server.URL, APIKey: "secret", Model: "m"})
			_, err := client.Rewrite(context.Background(), RewriteRequest{Title: "t", Body: "b"})
			if !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestClient_Misconfigured(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Rewrite(context.Background(), RewriteRequest{}); err == nil {
		t.Error("Expected error for missing endpoint and model")
	}
}
