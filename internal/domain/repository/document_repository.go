// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"regdoc-ai-api/internal/domain/entity"
)

// DocumentRepository 文档存取接口。文档由外部系统维护，本服务只读。
type DocumentRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetMeta(ctx context.Context, id string) (*entity.DocumentMeta, error)
	ListIDs(ctx context.Context) ([]string, error)
	// SearchFullText 对标题与正文执行布尔 OR 词项查询，按相关度排序。
	// collectionIDs 为空表示不过滤。
	SearchFullText(ctx context.Context, terms []string, collectionIDs []string, limit int) ([]*entity.LexicalHit, error)
}
