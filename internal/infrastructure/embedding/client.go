// Package embedding 提供文本向量化客户端
package embedding

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"regdoc-ai-api/internal/config"
	apperrors "regdoc-ai-api/pkg/errors"
	"regdoc-ai-api/pkg/logger"
)

var tracer = otel.Tracer("infrastructure/embedding")

// Client 批量向量化客户端。未配置凭证时 Enabled 为 false，
// 此时 Embed 返回 ErrEmbeddingUnavailable，属于功能关闭而非故障。
type Client struct {
	embedder   einoembedding.Embedder
	batchSize  int
	maxRetries int
	backoff    time.Duration
}

func NewClient(cfg *config.EmbeddingConfig, embedder einoembedding.Embedder) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		embedder:   embedder,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Enabled 报告向量化能力是否可用。
func (c *Client) Enabled() bool {
	return c != nil && c.embedder != nil
}

// Embed 将文本切成批次逐批向量化。限流错误按指数退避重试，
// 连续超过 maxRetries 次限流或遇到其它错误立即失败。
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.Enabled() {
		return nil, apperrors.ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "embedding.Embed")
	defer span.End()
	span.SetAttributes(attribute.Int("texts.count", len(texts)))

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to embed batch [%d,%d): %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay(attempt)
			logger.Warn(ctx, "embedding provider rate limited, backing off",
				"attempt", attempt,
				"wait", wait.String(),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vectors, err := c.embedder.EmbedStrings(ctx, texts)
		if err == nil {
			return toFloat32(vectors, len(texts))
		}
		if !isRateLimited(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("rate limited after %d attempts: %w", c.maxRetries, lastErr)
}

// retryDelay 第 n 次重试前的等待：base * 2^(n-1) 加最多半个 base 的抖动。
func (c *Client) retryDelay(attempt int) time.Duration {
	wait := c.backoff << (attempt - 1)
	// rand.Int63n 要求正数上界，极小的 backoff 配置下退化为 1ns
	bound := int64(c.backoff) / 2
	if bound < 1 {
		bound = 1
	}
	jitter := time.Duration(rand.Int63n(bound))
	return wait + jitter
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

func toFloat32(vectors [][]float64, want int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), want)
	}
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		row := make([]float32, len(v))
		for j, x := range v {
			row[j] = float32(x)
		}
		out[i] = row
	}
	return out, nil
}
