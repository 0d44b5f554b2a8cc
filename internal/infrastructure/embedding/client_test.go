package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdoc-ai-api/internal/config"
	apperrors "regdoc-ai-api/pkg/errors"
)

type scriptedEmbedder struct {
	errs  []error // 每次调用依序弹出，用完后成功
	calls [][]string
	dim   int
}

func (s *scriptedEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	s.calls = append(s.calls, texts)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = make([]float64, s.dim)
	}
	return out, nil
}

func testClient(inner einoembedding.Embedder, batchSize int) *Client {
	return NewClient(&config.EmbeddingConfig{
		BatchSize:    batchSize,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond, // 测试里退避压到最短
	}, inner)
}

func TestEmbed_Batching(t *testing.T) {
	inner := &scriptedEmbedder{dim: 3}
	client := testClient(inner, 2)

	vectors, err := client.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	assert.Len(t, vectors, 5)
	assert.Len(t, vectors[0], 3)
	require.Len(t, inner.calls, 3)
	assert.Equal(t, []string{"a", "b"}, inner.calls[0])
	assert.Equal(t, []string{"e"}, inner.calls[2])
}

func TestEmbed_RetriesRateLimitThenSucceeds(t *testing.T) {
	rateLimited := errors.New("upstream returned 429 Too Many Requests")
	inner := &scriptedEmbedder{dim: 3, errs: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	client := testClient(inner, 100)

	vectors, err := client.Embed(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Len(t, inner.calls, 5)
}

func TestEmbed_TinyBackoffDoesNotPanic(t *testing.T) {
	rateLimited := errors.New("upstream returned 429 Too Many Requests")
	inner := &scriptedEmbedder{dim: 3, errs: []error{rateLimited}}
	client := NewClient(&config.EmbeddingConfig{
		BatchSize:    100,
		MaxRetries:   5,
		RetryBackoff: time.Nanosecond, // 抖动上界会被夹到 1
	}, inner)

	vectors, err := client.Embed(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Len(t, inner.calls, 2)
}

func TestEmbed_GivesUpAfterMaxRateLimits(t *testing.T) {
	rateLimited := errors.New("rate limit exceeded")
	inner := &scriptedEmbedder{dim: 3, errs: []error{rateLimited, rateLimited, rateLimited, rateLimited, rateLimited}}
	client := testClient(inner, 100)

	_, err := client.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rateLimited)
	assert.Len(t, inner.calls, 5)
}

func TestEmbed_NonRateLimitErrorFailsFast(t *testing.T) {
	boom := errors.New("invalid api key")
	inner := &scriptedEmbedder{dim: 3, errs: []error{boom}}
	client := testClient(inner, 100)

	_, err := client.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.Len(t, inner.calls, 1)
}

func TestEmbed_DisabledWithoutProvider(t *testing.T) {
	client := NewClient(&config.EmbeddingConfig{}, nil)

	assert.False(t, client.Enabled())
	_, err := client.Embed(context.Background(), []string{"q"})
	assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
}

func TestEmbed_EmptyInput(t *testing.T) {
	inner := &scriptedEmbedder{dim: 3}
	client := testClient(inner, 100)

	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Empty(t, inner.calls)
}
