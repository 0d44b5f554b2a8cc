// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"regdoc-ai-api/internal/domain/entity"
)

// ContentCacheRepository 生成内容缓存。
// Get 只返回 created_at 在 maxAge 窗口内的条目，过期视为未命中（返回 nil, nil）。
// Put 以 (scope_key, kind, sub_topic) 为唯一键整体替换旧条目。
type ContentCacheRepository interface {
	Get(ctx context.Context, scopeKey, kind, subTopic string, maxAge time.Duration) (*entity.GeneratedContent, error)
	Put(ctx context.Context, content *entity.GeneratedContent) error
}
