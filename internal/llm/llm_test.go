package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/flightfinder/internal/llm"
)

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, llm.StripCodeFence(in))
	}
}

func TestDisabled(t *testing.T) {
	_, err := llm.Disabled{}.Complete(context.Background(), llm.Prompt{User: "hi"})
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestStub_RecordsCalls(t *testing.T) {
	s := &llm.Stub{Reply: "ok"}
	got, err := s.Complete(context.Background(), llm.Prompt{User: "one"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	s.Err = errors.New("boom")
	_, err = s.Complete(context.Background(), llm.Prompt{User: "two"})
	require.Error(t, err)

	calls := s.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "two", calls[1].User)
}

func TestOpenAI_Complete(t *testing.T) {
	var body struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"selectedIds\":[\"a\",\"b\"]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := llm.NewOpenAIWithURL(srv.URL+"/v1", "sk-test", "")
	got, err := c.Complete(context.Background(), llm.Prompt{
		System:      "Respond ONLY with valid JSON.",
		User:        "rank these",
		Temperature: 0.1,
		MaxTokens:   400,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"selectedIds":["a","b"]}`, got)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, llm.DefaultModel, body.Model)
	assert.Equal(t, 400, body.MaxTokens)
	assert.InDelta(t, 0.1, body.Temperature, 1e-6)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "rank these", body.Messages[1].Content)
}

func TestOpenAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := llm.NewOpenAIWithURL(srv.URL+"/v1", "sk-test", "gpt-test").Complete(context.Background(), llm.Prompt{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpt-test")
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := llm.NewOpenAIWithURL(srv.URL+"/v1", "sk-test", "").Complete(context.Background(), llm.Prompt{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
