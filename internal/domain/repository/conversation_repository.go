// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"regdoc-ai-api/internal/domain/entity"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *entity.ChatSession) error
	GetByID(ctx context.Context, id string) (*entity.ChatSession, error)
	Update(ctx context.Context, session *entity.ChatSession) error
}

type ChatTurnRepository interface {
	Create(ctx context.Context, turn *entity.ChatTurn) error
	// ListRecentBySession 返回最近 limit 条轮次，按时间正序。
	ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]*entity.ChatTurn, error)
	ListBySession(ctx context.Context, sessionID string, pagination Pagination) (*PagedResult[*entity.ChatTurn], error)
}
