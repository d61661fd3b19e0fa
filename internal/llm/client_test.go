package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorumtrade/internal/monitoring"
)

func chatReply(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Messages)

		resp := map[string]any{
			"id":    "chatcmpl-1",
			"model": req.Model,
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestCompleteStructured(t *testing.T) {
	srv := httptest.NewServer(chatReply(t, `{"signal":"buy","confidence":0.8}`))
	defer srv.Close()

	c := NewClient(ClientConfig{Provider: "test", Endpoint: srv.URL})

	var out struct {
		Signal     string  `json:"signal"`
		Confidence float64 `json:"confidence"`
	}
	err := c.CompleteStructured(context.Background(), "system", "user", "signal", &out)
	require.NoError(t, err)
	assert.Equal(t, "buy", out.Signal)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)
}

func TestCompleteStructuredMarkdownFenced(t *testing.T) {
	srv := httptest.NewServer(chatReply(t, "Here you go:\n```json\n{\"signal\":\"sell\"}\n```\n"))
	defer srv.Close()

	c := NewClient(ClientConfig{Provider: "test", Endpoint: srv.URL})

	var out struct {
		Signal string `json:"signal"`
	}
	err := c.CompleteStructured(context.Background(), "system", "user", "signal", &out)
	require.NoError(t, err)
	assert.Equal(t, "sell", out.Signal)
}

func TestCompleteCountsTokens(t *testing.T) {
	srv := httptest.NewServer(chatReply(t, `{"signal":"hold"}`))
	defer srv.Close()

	inBefore := testutil.ToFloat64(monitoring.LLMTokensTotal.WithLabelValues("input"))
	outBefore := testutil.ToFloat64(monitoring.LLMTokensTotal.WithLabelValues("output"))

	c := NewClient(ClientConfig{Provider: "test", Endpoint: srv.URL})
	_, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 10, testutil.ToFloat64(monitoring.LLMTokensTotal.WithLabelValues("input"))-inBefore, 1e-9)
	assert.InDelta(t, 20, testutil.ToFloat64(monitoring.LLMTokensTotal.WithLabelValues("output"))-outBefore, 1e-9)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Provider: "test", Endpoint: srv.URL})
	_, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain json", `{"a":1}`, false},
		{"fenced json", "```json\n{\"a\":1}\n```", false},
		{"bare fence", "```\n{\"a\":1}\n```", false},
		{"garbage", "not json at all", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := ParseJSONResponse(tt.content, &out)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, float64(1), out["a"])
			}
		})
	}
}

func TestProvidersCacheAndUnknown(t *testing.T) {
	p := NewProviders(ProviderSettings{
		DefaultProvider: "anthropic",
		Endpoints:       map[string]string{"anthropic": "http://localhost:1/v1", "openai": "http://localhost:2/v1"},
	})

	a1, err := p.Get("anthropic")
	require.NoError(t, err)
	a2, err := p.Get("")
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	o, err := p.Get("openai")
	require.NoError(t, err)
	assert.NotSame(t, a1, o)

	_, err = p.Get("mystery")
	assert.Error(t, err)
}
