package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabode/backend/core"
)

// sentRequest is the part of a chat completion request the tests look at.
type sentRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string                 `json:"name"`
			Schema map[string]interface{} `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(core.TextGenConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "test-model", Timeout: 5 * time.Second})
}

func answer(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"model":   "test-model",
		"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestClient_Generate(t *testing.T) {
	var got sentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		answer(w, "print('hi')")
	})

	text, err := c.Generate(context.Background(), "be brief", []core.Turn{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", text)

	assert.Equal(t, "test-model", got.Model)
	assert.Nil(t, got.ResponseFormat)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be brief", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestClient_GenerateJSON(t *testing.T) {
	var got sentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		answer(w, `{"name":"Loops","methods":["for"]}`)
	})

	var out struct {
		Name    string   `json:"name"`
		Methods []string `json:"methods"`
	}
	sch := map[string]interface{}{"type": "object"}
	err := c.GenerateJSON(context.Background(), "", []core.Turn{{Role: "user", Content: "plan"}}, "plan", sch, &out)
	require.NoError(t, err)
	assert.Equal(t, "Loops", out.Name)
	assert.Equal(t, []string{"for"}, out.Methods)

	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.Equal(t, "plan", got.ResponseFormat.JSONSchema.Name)
	assert.Equal(t, sch, got.ResponseFormat.JSONSchema.Schema)
	assert.Len(t, got.Messages, 1) // no system prompt
}

func TestClient_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
		})
		_, err := c.Generate(context.Background(), "", nil)
		require.Error(t, err)

		var apiErr *openai.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
		assert.Equal(t, "rate limited", apiErr.Message)
	})

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "blank answer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				answer(w, "  ")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Generate(context.Background(), "", nil)
			assert.Equal(t, ErrEmptyAnswer, err)
		})
	}
}
