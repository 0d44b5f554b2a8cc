package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"

	"regdoc-ai-api/internal/config"
	"regdoc-ai-api/pkg/logger"
)

// NewEinoEmbedder 创建基于 Eino 的 OpenAI 兼容 Embedder。
// APIKey 未配置时返回 (nil, nil)，上层据此整体关闭向量能力。
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (einoembedding.Embedder, error) {
	if cfg.APIKey == "" {
		logger.Warn(ctx, "embedding api key not configured, vector retrieval disabled")
		return nil, nil
	}

	dimension := cfg.Dimension
	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: &dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}
	return embedder, nil
}
