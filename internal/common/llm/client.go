// internal/common/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gearbox-workers/internal/common/config"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/common/logger"
)

const maxRetries = 2

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	logger     logger.Logger
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewClient(cfg config.APIsConfig, log logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.GetDuration(cfg.LLM.TimeoutMs),
		},
		baseURL:   strings.TrimSuffix(cfg.LLM.BaseURL, "/"),
		apiKey:    cfg.LLM.APIKey,
		model:     cfg.LLM.Model,
		maxTokens: cfg.LLM.MaxTokens,
		logger:    log,
	}
}

// Complete sends the messages and returns the assistant content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, 0.1, messages)
}

// CompleteDeterministic pins sampling temperature to zero, for extraction
// calls whose output must be reproducible.
func (c *Client) CompleteDeterministic(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, 0, messages)
}

func (c *Client) complete(ctx context.Context, temperature float64, messages []Message) (string, error) {
	// Extraction and classification answers are short JSON; the token cap
	// keeps a rambling completion from running up the bill.
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", pipelineerrors.NewLLMTimeoutError()
			}
		}

		req, rErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if rErr != nil {
			return "", rErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, lastErr = c.httpClient.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return "", pipelineerrors.NewLLMTimeoutError()
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", pipelineerrors.NewLLMTimeoutError()
		}
		return "", pipelineerrors.NewSearchSourceError("llm", lastErr)
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", pipelineerrors.NewLLMParseError("decode error: " + err.Error())
	}
	if len(chat.Choices) == 0 {
		return "", pipelineerrors.NewLLMParseError("empty choices")
	}

	return chat.Choices[0].Message.Content, nil
}

// CompleteJSON runs Complete and unmarshals the content into out,
// tolerating markdown code fences around the JSON.
func (c *Client) CompleteJSON(ctx context.Context, messages []Message, out interface{}) error {
	content, err := c.Complete(ctx, messages)
	if err != nil {
		return err
	}

	cleaned := StripCodeFences(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		c.logger.Warn("llm returned non-JSON content", map[string]interface{}{
			"contentPrefix": truncate(cleaned, 120),
		})
		return pipelineerrors.NewLLMParseError("invalid JSON in completion")
	}

	return nil
}

// StripCodeFences removes a surrounding ```json ... ``` block if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SetHTTPClient overrides the HTTP client, for tests against httptest
// servers.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetBaseURL overrides the endpoint, for tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimSuffix(url, "/")
}
