package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatModel_Complete(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Hello there!"}},
			},
		})
	}))
	defer server.Close()

	model := NewChatModel(NewOpenAICompatibleClient(time.Second), ChatConfig{
		BaseURL: server.URL + "/",
		APIKey:  "sk-test",
		Model:   "llama3-8b-8192",
	})
	answer, err := model.WithModel("llama3-70b").Complete(context.Background(), []ChatMessage{{Role: "user", Content: "Hi"}})

	require.NoError(t, err)
	assert.Equal(t, "Hello there!", answer)
	assert.Equal(t, "llama3-70b", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Hi", got.Messages[0].Content)
}

func TestChatModel_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota"}`))
	}))
	defer server.Close()

	model := NewChatModel(NewOpenAICompatibleClient(time.Second), ChatConfig{BaseURL: server.URL, Model: "m"})
	_, err := model.Complete(context.Background(), nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, statusErr.Temporary())
}

func TestChatModel_MissingConfig(t *testing.T) {
	model := NewChatModel(NewOpenAICompatibleClient(time.Second), ChatConfig{})
	_, err := model.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrChatConfig)
}

func TestChatModel_WithModelBlankKeepsDefault(t *testing.T) {
	model := NewChatModel(NewOpenAICompatibleClient(time.Second), ChatConfig{Model: "base"})
	assert.Same(t, model, model.WithModel("  "))
	assert.Equal(t, "other", model.WithModel("other").Model())
	assert.Equal(t, "base", model.Model())
}

func embeddingServer(t *testing.T, failures int32, status int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]interface{}, len(req.Input))
		// Reply out of order; the client must restore input order.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = map[string]interface{}{
				"index":     j,
				"embedding": []float32{float32(len(req.Input[j])), 1},
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestEmbeddingClient_BatchesAndOrders(t *testing.T) {
	server, calls := embeddingServer(t, 0, 0)
	client := NewEmbeddingClient(
		NewOpenAICompatibleClient(time.Second),
		EmbeddingConfig{BaseURL: server.URL, Model: "m"},
		2,
		RetryPolicy{MaxRetries: 0, Backoff: time.Millisecond},
		0,
	)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", ""})

	require.NoError(t, err)
	require.Len(t, vectors, 4)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, float32(1), vectors[3][0], "blank input is sent as a single space")
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestEmbeddingClient_RetriesTransientFailures(t *testing.T) {
	server, calls := embeddingServer(t, 2, http.StatusServiceUnavailable)
	client := NewEmbeddingClient(
		NewOpenAICompatibleClient(time.Second),
		EmbeddingConfig{BaseURL: server.URL, Model: "m"},
		10,
		RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
		0,
	)

	vectors, err := client.EmbedBatch(context.Background(), []string{"hello"})

	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestEmbeddingClient_GivesUpAfterMaxRetries(t *testing.T) {
	server, calls := embeddingServer(t, 100, http.StatusBadGateway)
	client := NewEmbeddingClient(
		NewOpenAICompatibleClient(time.Second),
		EmbeddingConfig{BaseURL: server.URL, Model: "m"},
		10,
		RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
		0,
	)

	_, err := client.EmbedBatch(context.Background(), []string{"hello"})

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestEmbeddingClient_NoRetryOnClientError(t *testing.T) {
	server, calls := embeddingServer(t, 100, http.StatusBadRequest)
	client := NewEmbeddingClient(
		NewOpenAICompatibleClient(time.Second),
		EmbeddingConfig{BaseURL: server.URL, Model: "m"},
		10,
		RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
		0,
	)

	_, err := client.EmbedBatch(context.Background(), []string{"hello"})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

// inputRecorder serves /embeddings and records every input text it receives,
// whether sent as a single string or as a batch.
func inputRecorder(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu     sync.Mutex
		inputs []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input json.RawMessage `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var batch []string
		if err := json.Unmarshal(req.Input, &batch); err != nil {
			var single string
			require.NoError(t, json.Unmarshal(req.Input, &single))
			batch = []string{single}
		}
		mu.Lock()
		inputs = append(inputs, batch...)
		mu.Unlock()

		data := make([]map[string]interface{}, len(batch))
		for i := range batch {
			data[i] = map[string]interface{}{"index": i, "embedding": []float32{1, 0}}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	t.Cleanup(server.Close)
	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), inputs...)
	}
}

func TestEmbeddingClient_QueryAndBatchSendSameInput(t *testing.T) {
	server, received := inputRecorder(t)
	client := NewEmbeddingClient(
		NewOpenAICompatibleClient(time.Second),
		EmbeddingConfig{BaseURL: server.URL, Model: "m"},
		10,
		RetryPolicy{},
		0,
	)
	ctx := context.Background()

	chunk := "Refunds within 30 days.\n\n"
	_, err := client.EmbedBatch(ctx, []string{chunk, "   \n"})
	require.NoError(t, err)
	_, err = client.Embed(ctx, chunk)
	require.NoError(t, err)
	_, err = client.Embed(ctx, "   \n")
	require.NoError(t, err)

	got := received()
	require.Len(t, got, 4)
	assert.Equal(t, chunk, got[0])
	assert.Equal(t, got[0], got[2], "query must reach the provider exactly as the chunk did")
	assert.Equal(t, " ", got[1])
	assert.Equal(t, got[1], got[3])
}

func TestEmbeddingClient_MissingConfig(t *testing.T) {
	client := NewEmbeddingClient(NewOpenAICompatibleClient(time.Second), EmbeddingConfig{}, 0, RetryPolicy{}, 0)
	_, err := client.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingConfig)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Refund policy: 30 days")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "refund POLICY 30 days")
	require.NoError(t, err)
	assert.Equal(t, a, b, "tokenisation ignores case and punctuation")
	assert.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	empty, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, empty, 64)

	batch, err := e.EmbedBatch(ctx, []string{"Refund policy: 30 days", "other"})
	require.NoError(t, err)
	assert.Equal(t, a, batch[0])
}
