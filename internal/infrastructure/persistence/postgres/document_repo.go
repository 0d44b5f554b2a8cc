// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
)

// ftsConfig 全文检索分词配置。simple 不做词干化，
// 对混合中英文的法规文本比 english 更稳。
const ftsConfig = "simple"

var termSanitizer = regexp.MustCompile(`[^\p{L}\p{N}]+`)

type DocumentRepository struct {
	client *Client
}

func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	var doc entity.Document
	err := r.client.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetMeta(ctx context.Context, id string) (*entity.DocumentMeta, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetMeta")
	defer span.End()

	var meta entity.DocumentMeta
	err := r.client.db.WithContext(ctx).
		Model(&entity.Document{}).
		Select("id", "title", "collection_id").
		Where("id = ?", id).
		Take(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document meta: %w", err)
	}
	return &meta, nil
}

func (r *DocumentRepository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListIDs")
	defer span.End()

	var ids []string
	err := r.client.db.WithContext(ctx).
		Model(&entity.Document{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	return ids, nil
}

// SearchFullText 对标题与正文执行 OR 词项查询，按 ts_rank 降序。
// 词项在入库前清洗为字母数字，避免 tsquery 语法注入。
func (r *DocumentRepository) SearchFullText(ctx context.Context, terms []string, collectionIDs []string, limit int) ([]*entity.LexicalHit, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.SearchFullText")
	defer span.End()
	span.SetAttributes(attribute.Int("terms.count", len(terms)))

	query := buildTsQuery(terms)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	sql := `
		SELECT id, id AS document_id, title, collection_id,
		       left(content_text, 2000) AS excerpt
		FROM documents,
		     to_tsquery(?, ?) AS query
		WHERE to_tsvector(?, title || ' ' || content_text) @@ query`
	args := []any{ftsConfig, query, ftsConfig}

	if len(collectionIDs) > 0 {
		sql += ` AND collection_id = ANY(?)`
		args = append(args, pq.Array(collectionIDs))
	}

	sql += `
		ORDER BY ts_rank(to_tsvector(?, title || ' ' || content_text), query) DESC
		LIMIT ?`
	args = append(args, ftsConfig, limit)

	var hits []*entity.LexicalHit
	if err := r.client.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to run full-text search: %w", err)
	}
	return hits, nil
}

// buildTsQuery 把词项拼成 OR 查询，非字母数字字符全部剔除。
func buildTsQuery(terms []string) string {
	var parts []string
	for _, t := range terms {
		t = termSanitizer.ReplaceAllString(t, "")
		if t == "" {
			continue
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " | ")
}
