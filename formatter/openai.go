package formatter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/models"
)

// OpenAI is a lightweight OpenAI-compatible chat client that rewrites page
// content as clean Markdown. It uses net/http directly — no third-party SDK
// needed.
type OpenAI struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAI creates a formatter backed by an OpenAI-compatible endpoint.
// Pass nil to use a default http.Client.
func NewOpenAI(httpClient *http.Client, cfg config.FormatterConfig) *OpenAI {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAI{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
	}
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the minimal OpenAI chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatErrorResponse captures an API error from the LLM provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

const systemPrompt = `You are a text formatting assistant. Rewrite the provided web page content as clean, well-structured Markdown.

Rules:
- Keep all factual content; do not summarise or invent.
- Start with a level-1 heading containing the page title.
- End with a link to the source URL.
- Return ONLY Markdown, no fences or commentary.`

// Format sends the page to the chat endpoint and returns its Markdown.
func (c *OpenAI) Format(ctx context.Context, doc Document) (string, error) {
	user := fmt.Sprintf("Title: %s\nURL: %s\n\n%s", doc.Title, doc.URL, doc.Content)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "formatter request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "failed to read formatter response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "failed to parse formatter response", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "formatter returned no choices", nil)
	}

	md := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if md == "" {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "formatter returned empty content", nil)
	}
	return md, nil
}

// classifyError maps HTTP status codes to appropriate error codes.
func classifyError(statusCode int, body []byte) *models.CrawlError {
	var errResp chatErrorResponse
	msg := "formatter API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewCrawlError(models.ErrCodeUnauthorized, msg, nil)
	case http.StatusTooManyRequests:
		return models.NewCrawlError(models.ErrCodeRateLimited, msg, nil)
	default:
		return models.NewCrawlError(models.ErrCodeFormatting, fmt.Sprintf("formatter API returned %d: %s", statusCode, msg), nil)
	}
}
