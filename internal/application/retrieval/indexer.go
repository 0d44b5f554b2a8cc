package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regdoc-ai-api/internal/domain/repository"
	"regdoc-ai-api/pkg/logger"
	"regdoc-ai-api/pkg/metrics"
)

// IndexerConfig 控制切分与写入批量。
type IndexerConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
	FlushBatchSize int
}

// Indexer 负责离线重建单个文档的向量索引。
// 重建是整体替换：先删除该文档的旧分块，再写入新分块，
// 避免新旧混排导致的重复召回。
type Indexer struct {
	embedder Embedder
	vectors  VectorRepository
	docs     repository.DocumentRepository
	cfg      IndexerConfig

	ensured bool
}

func NewIndexer(embedder Embedder, vectors VectorRepository, docs repository.DocumentRepository, cfg IndexerConfig) *Indexer {
	if cfg.FlushBatchSize <= 0 {
		cfg.FlushBatchSize = 50
	}
	return &Indexer{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		cfg:      cfg,
	}
}

// IndexDocument 重建指定文档的索引。嵌入或写入失败立即中止，
// 保留已删除旧分块的状态由下次重建修复。
func (i *Indexer) IndexDocument(ctx context.Context, documentID string) error {
	if i == nil || i.vectors == nil {
		return ErrVectorDisabled
	}
	if i.embedder == nil || !i.embedder.Enabled() {
		return ErrVectorDisabled
	}

	start := time.Now()
	status := "error"
	defer func() {
		metrics.IngestDocumentDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	doc, err := i.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	if !i.ensured {
		if err := i.vectors.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to ensure collection: %w", err)
		}
		i.ensured = true
	}

	if err := i.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	windows := ChunkText(doc.ContentText, i.cfg.ChunkSize, i.cfg.ChunkOverlap, i.cfg.MinChunkLength)
	if len(windows) == 0 {
		logger.Warn(ctx, "document produced no indexable chunks",
			"document_id", documentID,
		)
		status = "ok"
		return nil
	}

	for offset := 0; offset < len(windows); offset += i.cfg.FlushBatchSize {
		end := offset + i.cfg.FlushBatchSize
		if end > len(windows) {
			end = len(windows)
		}
		batch := windows[offset:end]

		texts := make([]string, len(batch))
		for j, w := range batch {
			texts[j] = w.Text
		}
		vectors, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks [%d,%d): %w", offset, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
		}

		chunks := make([]*VectorDocChunk, len(batch))
		for j, w := range batch {
			chunks[j] = &VectorDocChunk{
				ID:           uuid.NewString(),
				DocumentID:   doc.ID,
				CollectionID: doc.CollectionID,
				ChunkIndex:   int64(w.Index),
				TextContent:  w.Text,
				Vector:       vectors[j],
			}
		}
		if err := i.vectors.InsertChunks(ctx, chunks); err != nil {
			return fmt.Errorf("failed to insert chunks [%d,%d): %w", offset, end, err)
		}
		metrics.IngestChunksTotal.WithLabelValues("ok").Add(float64(len(chunks)))
	}

	status = "ok"
	logger.Info(ctx, "document reindexed",
		"document_id", documentID,
		"chunks", len(windows),
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// IndexAll 重建全部文档。单个文档失败不影响其它文档，
// 最终返回失败数汇总供调用方决定退出码。
func (i *Indexer) IndexAll(ctx context.Context) error {
	ids, err := i.docs.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	var failed int
	for _, id := range ids {
		if err := i.IndexDocument(ctx, id); err != nil {
			failed++
			logger.Error(ctx, "failed to reindex document", err,
				"document_id", id,
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("reindex finished with %d of %d documents failed", failed, len(ids))
	}
	return nil
}
