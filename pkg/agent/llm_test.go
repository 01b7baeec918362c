// pkg/agent/llm_test.go
package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/schemas"
)

func generationReply(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

func newAgentAgainst(t *testing.T, url string) *LLMAgent {
	t.Helper()
	a, err := NewLLMAgent(config.AgentConfig{
		Endpoint:   url,
		Model:      "test-model",
		APIKey:     "test-key",
		APITimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return a
}

func TestLLMAgent_RequiresAPIKey(t *testing.T) {
	_, err := NewLLMAgent(config.AgentConfig{}, nil)
	assert.Error(t, err)
}

func TestLLMAgent_NextActions(t *testing.T) {
	var sawKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawKey.Store(r.Header.Get("x-goog-api-key"))
		fmt.Fprint(w, generationReply(`[{"type":"click","selector":"#buy"},{"type":"scroll","down":true}]`))
	}))
	defer server.Close()

	a := newAgentAgainst(t, server.URL)
	task := &schemas.Task{ID: "t1", Prompt: "buy the book", URL: "http://localhost:8000/"}

	proposed, err := a.NextActions(context.Background(), task, nil)
	require.NoError(t, err)
	require.Len(t, proposed, 2)
	assert.Equal(t, actions.TypeClick, proposed[0].Type)
	assert.Equal(t, actions.TypeScroll, proposed[1].Type)
	assert.Equal(t, "test-key", sawKey.Load())
}

func TestLLMAgent_TrimsCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, generationReply("```json\n[{\"type\":\"click\",\"selector\":\"#x\"}]\n```"))
	}))
	defer server.Close()

	a := newAgentAgainst(t, server.URL)
	proposed, err := a.NextActions(context.Background(), &schemas.Task{}, nil)
	require.NoError(t, err)
	require.Len(t, proposed, 1)
	assert.Equal(t, actions.TypeClick, proposed[0].Type)
}

func TestLLMAgent_EmptyArrayMeansDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, generationReply("[]"))
	}))
	defer server.Close()

	a := newAgentAgainst(t, server.URL)
	proposed, err := a.NextActions(context.Background(), &schemas.Task{}, nil)
	require.NoError(t, err)
	assert.Empty(t, proposed)
}

func TestLLMAgent_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, generationReply("[]"))
	}))
	defer server.Close()

	a := newAgentAgainst(t, server.URL)
	_, err := a.NextActions(context.Background(), &schemas.Task{}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestLLMAgent_ClientErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	a := newAgentAgainst(t, server.URL)
	_, err := a.NextActions(context.Background(), &schemas.Task{}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses are not retried")
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[1,2]`, extractJSONArray("prose [1,2] more prose"))
	assert.Equal(t, `[]`, extractJSONArray("no array here"))
	assert.Equal(t, `[{"a":[1]}]`, extractJSONArray("```json\n[{\"a\":[1]}]\n```"))
}
