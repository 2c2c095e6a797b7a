// internal/common/llm/client_test.go
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearbox-workers/internal/common/config"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/common/logger"
)

func newTestClient(serverURL string) *Client {
	cfg := config.APIsConfig{}
	cfg.LLM.BaseURL = serverURL
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.Model = "test-model"
	cfg.LLM.TimeoutMs = 2000
	cfg.LLM.MaxTokens = 300
	return NewClient(cfg, logger.NewNoOpLogger())
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestCompleteReturnsAssistantContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(chatReply("AW55-90")))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "classify"}})
	require.NoError(t, err)
	assert.Equal(t, "AW55-90", out)
}

func TestCompleteCapsOutputTokens(t *testing.T) {
	var req chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Write([]byte(chatReply("ok")))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, 300, req.MaxTokens)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(chatReply("ok")))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}

func TestCompleteJSONStripsCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("```json\n{\"model\": \"K311\"}\n```")))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	var out struct {
		Model string `json:"model"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), []Message{{Role: "user", Content: "x"}}, &out))
	assert.Equal(t, "K311", out.Model)
}

func TestCompleteJSONRejectsNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("sorry, I cannot do that")))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	var out map[string]interface{}
	err := c.CompleteJSON(context.Background(), []Message{{Role: "user", Content: "x"}}, &out)
	require.Error(t, err)
	assert.Equal(t, pipelineerrors.ErrCodeLLMParseFailed, pipelineerrors.CodeOf(err))
}
