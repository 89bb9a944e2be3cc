package ai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrChatConfig      = errors.New("llm config is invalid")
	ErrEmbeddingConfig = errors.New("embedding config is invalid")
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// embeddingInput is the one normalisation applied to every text before it is
// sent, so a query equal to a chunk reaches the provider byte for byte the
// same. Blank texts become a single space, which providers accept.
func embeddingInput(text string) string {
	if strings.TrimSpace(text) == "" {
		return " "
	}
	return text
}

// Embed returns the embedding vector for the given text.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": embeddingInput(text),
	}
	var parsed embeddingResponse
	if err := c.postJSON(ctx, "embedding", cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return parsed.Data[0].Embedding, nil
}

// EmbedBatch returns one embedding per input, in input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = embeddingInput(t)
	}

	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": inputs,
	}
	var parsed embeddingResponse
	if err := c.postJSON(ctx, "embedding batch", cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding batch returned %d vectors for %d inputs", len(parsed.Data), len(inputs))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

// RetryPolicy bounds retries of idempotent embedding calls.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// EmbeddingClient is the remote embedding provider used by the index: it
// splits work into provider-sized batches, throttles requests and retries
// transient failures.
type EmbeddingClient struct {
	client    *OpenAICompatibleClient
	cfg       EmbeddingConfig
	batchSize int
	retry     RetryPolicy
	limiter   *rate.Limiter
}

func NewEmbeddingClient(
	client *OpenAICompatibleClient,
	cfg EmbeddingConfig,
	batchSize int,
	retry RetryPolicy,
	requestsPerSecond float64,
) *EmbeddingClient {
	if batchSize <= 0 {
		batchSize = 10 // DashScope and similar APIs often limit batch size
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 500 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &EmbeddingClient{
		client:    client,
		cfg:       cfg,
		batchSize: batchSize,
		retry:     retry,
		limiter:   limiter,
	}
}

func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cfg.BaseURL == "" || e.cfg.Model == "" {
		return nil, ErrEmbeddingConfig
	}
	var vec []float32
	err := e.withRetry(ctx, func() error {
		var callErr error
		vec, callErr = e.client.Embed(ctx, e.cfg, text)
		return callErr
	})
	return vec, err
}

func (e *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.cfg.BaseURL == "" || e.cfg.Model == "" {
		return nil, ErrEmbeddingConfig
	}
	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		var batched [][]float32
		err := e.withRetry(ctx, func() error {
			var callErr error
			batched, callErr = e.client.EmbedBatch(ctx, e.cfg, batch)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batched...)
	}
	return embeddings, nil
}

func (e *EmbeddingClient) withRetry(ctx context.Context, call func() error) error {
	backoff := e.retry.Backoff
	var err error
	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if waitErr := e.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		err = call()
		if err == nil || !retryable(ctx, err) || attempt == e.retry.MaxRetries {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	// Transport-level failures (connection reset, DNS) are worth another try;
	// decode errors are not.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
