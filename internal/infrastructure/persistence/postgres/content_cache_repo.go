// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
)

type ContentCacheRepository struct {
	client *Client
}

func NewContentCacheRepository(client *Client) *ContentCacheRepository {
	return &ContentCacheRepository{client: client}
}

var _ repository.ContentCacheRepository = (*ContentCacheRepository)(nil)

// Get 按唯一键查询窗口期内的缓存条目，过期或缺失返回 (nil, nil)。
func (r *ContentCacheRepository) Get(ctx context.Context, scopeKey, kind, subTopic string, maxAge time.Duration) (*entity.GeneratedContent, error) {
	ctx, span := tracer.Start(ctx, "postgres.ContentCacheRepository.Get")
	defer span.End()

	var content entity.GeneratedContent
	err := r.client.db.WithContext(ctx).
		Where("scope_key = ? AND kind = ? AND sub_topic = ?", scopeKey, kind, subTopic).
		Where("created_at > ?", time.Now().Add(-maxAge)).
		Take(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get cached content: %w", err)
	}
	return &content, nil
}

// Put 以唯一键 upsert：旧条目的内容与时间戳被整体覆盖。
func (r *ContentCacheRepository) Put(ctx context.Context, content *entity.GeneratedContent) error {
	ctx, span := tracer.Start(ctx, "postgres.ContentCacheRepository.Put")
	defer span.End()

	if content.ID == "" {
		content.ID = uuid.NewString()
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now()
	}

	err := r.client.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "scope_key"}, {Name: "kind"}, {Name: "sub_topic"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"content", "created_at"}),
		}).
		Create(content).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert cached content: %w", err)
	}
	return nil
}
