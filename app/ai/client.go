package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMalformedResponse = errors.New("malformed AI response")
	ErrRateLimited       = errors.New("AI backend rate limited")
)

type RewriteRequest struct {
	Title    string
	Body     string
	Language string
	Category string
}

// Rewrite is the source-language rewrite together with its quality score.
type Rewrite struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Body    string   `json:"body"`
	Tags    []string `json:"tags"`
	QAScore float64  `json:"qaScore"`
}

type TranslateRequest struct {
	Title      string
	Summary    string
	Body       string
	SourceLang string
	Languages  []string
}

type Localized struct {
	Title           string `json:"title"`
	Lead            string `json:"lead"`
	Body            string `json:"body"`
	SEOTitle        string `json:"seoTitle"`
	MetaDescription string `json:"metaDescription"`
}

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint and asks for
// JSON replies.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

const rewritePrompt = `You are a news editor. Rewrite the article you receive in its original language (%s) as an original news piece.
Reply with a JSON object: {"title": string, "summary": string (one or two sentences), "body": string, "tags": [string], "qaScore": number}.
qaScore is your estimate between 0 and 1 of how publishable the rewrite is (factual, complete, not promotional).`

const translatePrompt = `You are a professional news translator. Translate the article from %s into each of these languages: %s.
Reply with a JSON object keyed by language code; each value is {"title": string, "lead": string, "body": string, "seoTitle": string (max 60 chars), "metaDescription": string (max 160 chars)}.`

func (c *Client) Rewrite(ctx context.Context, req RewriteRequest) (*Rewrite, error) {
	user := fmt.Sprintf("Category: %s\nTitle: %s\n\n%s", req.Category, req.Title, req.Body)

	var out Rewrite
	if err := c.complete(ctx, fmt.Sprintf(rewritePrompt, req.Language), user, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Body) == "" {
		return nil, fmt.Errorf("%w: rewrite without title or body", ErrMalformedResponse)
	}
	return &out, nil
}

func (c *Client) Translate(ctx context.Context, req TranslateRequest) (map[string]Localized, error) {
	system := fmt.Sprintf(translatePrompt, req.SourceLang, strings.Join(req.Languages, ", "))
	user := fmt.Sprintf("Title: %s\nSummary: %s\n\n%s", req.Title, req.Summary, req.Body)

	out := make(map[string]Localized)
	if err := c.complete(ctx, system, user, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string, out any) error {
	if c.endpoint == "" || c.model == "" {
		return fmt.Errorf("AI client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.3,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal AI request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create AI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call AI backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("AI backend error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(chat.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	content := stripCodeFence(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
