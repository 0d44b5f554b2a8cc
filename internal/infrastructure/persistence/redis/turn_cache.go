// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"time"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/pkg/logger"
)

// TurnCache 会话轮次滚动快照。只是读加速：任何错误都按未命中
// 处理，真实历史始终以 Postgres 为准。
type TurnCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewTurnCache(cache *Cache, ttl time.Duration) *TurnCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &TurnCache{cache: cache, ttl: ttl}
}

func (t *TurnCache) GetTurns(ctx context.Context, sessionID string) ([]*entity.ChatTurn, bool) {
	if t == nil || t.cache == nil {
		return nil, false
	}

	bytes, err := t.cache.Get(ctx, SessionSnapshotKey(sessionID))
	if err != nil {
		return nil, false
	}

	var turns []*entity.ChatTurn
	if err := json.Unmarshal(bytes, &turns); err != nil {
		logger.Warn(ctx, "corrupt session snapshot, dropping it",
			"session_id", sessionID,
			"error", err,
		)
		_ = t.cache.Delete(ctx, SessionSnapshotKey(sessionID))
		return nil, false
	}
	return turns, true
}

func (t *TurnCache) SetTurns(ctx context.Context, sessionID string, turns []*entity.ChatTurn) {
	if t == nil || t.cache == nil {
		return
	}
	if err := t.cache.Set(ctx, SessionSnapshotKey(sessionID), turns, t.ttl); err != nil {
		logger.Warn(ctx, "failed to write session snapshot",
			"session_id", sessionID,
			"error", err,
		)
	}
}
