// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
)

type ChatTurnRepository struct {
	client *Client
}

func NewChatTurnRepository(client *Client) *ChatTurnRepository {
	return &ChatTurnRepository{client: client}
}

var _ repository.ChatTurnRepository = (*ChatTurnRepository)(nil)

func (r *ChatTurnRepository) Create(ctx context.Context, turn *entity.ChatTurn) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatTurnRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chat turn: %w", err)
	}
	return nil
}

// ListRecentBySession 取最近 limit 条轮次。倒序取出后翻转，
// 返回给调用方的始终是时间正序。
func (r *ChatTurnRepository) ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]*entity.ChatTurn, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatTurnRepository.ListRecentBySession")
	defer span.End()

	var turns []*entity.ChatTurn
	err := r.client.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent chat turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *ChatTurnRepository) ListBySession(ctx context.Context, sessionID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ChatTurn], error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatTurnRepository.ListBySession")
	defer span.End()

	query := r.client.db.WithContext(ctx).
		Model(&entity.ChatTurn{}).
		Where("session_id = ?", sessionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count chat turns: %w", err)
	}

	var turns []*entity.ChatTurn
	if err := query.Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chat turns: %w", err)
	}

	return repository.NewPagedResult(turns, total, pagination), nil
}
