// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"time"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
	"regdoc-ai-api/pkg/logger"
)

const documentMetaTTL = 10 * time.Minute

// CachedDocumentRepository 文档仓储装饰器：GetMeta 走 Redis
// read-through，其余操作透传。元信息只在来源列表里用到，
// 短 TTL 即可容忍外部系统改名。
type CachedDocumentRepository struct {
	inner repository.DocumentRepository
	cache *Cache
}

func NewCachedDocumentRepository(inner repository.DocumentRepository, cache *Cache) *CachedDocumentRepository {
	return &CachedDocumentRepository{inner: inner, cache: cache}
}

var _ repository.DocumentRepository = (*CachedDocumentRepository)(nil)

func (r *CachedDocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *CachedDocumentRepository) GetMeta(ctx context.Context, id string) (*entity.DocumentMeta, error) {
	if r.cache == nil {
		return r.inner.GetMeta(ctx, id)
	}

	bytes, err := r.cache.GetOrLoadSafe(ctx, DocumentMetaKey(id), documentMetaTTL, func() (interface{}, error) {
		return r.inner.GetMeta(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	var meta entity.DocumentMeta
	if err := json.Unmarshal(bytes, &meta); err != nil {
		logger.Warn(ctx, "corrupt document meta cache entry, falling back to database",
			"document_id", id,
			"error", err,
		)
		return r.inner.GetMeta(ctx, id)
	}
	return &meta, nil
}

func (r *CachedDocumentRepository) ListIDs(ctx context.Context) ([]string, error) {
	return r.inner.ListIDs(ctx)
}

func (r *CachedDocumentRepository) SearchFullText(ctx context.Context, terms []string, collectionIDs []string, limit int) ([]*entity.LexicalHit, error) {
	return r.inner.SearchFullText(ctx, terms, collectionIDs, limit)
}
