// Package entity 定义领域实体
package entity

import (
	"time"
)

// Document 法规/技术文档。由外部文档管理系统写入，本服务只读。
type Document struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title        string    `json:"title" gorm:"type:varchar(512);not null"`
	CollectionID string    `json:"collection_id" gorm:"type:varchar(64);index;not null"`
	ContentText  string    `json:"content_text" gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentMeta 文档元信息（不含正文，供来源列表使用）
type DocumentMeta struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CollectionID string `json:"collection_id"`
}

// Meta 返回文档的元信息视图
func (d *Document) Meta() DocumentMeta {
	return DocumentMeta{
		ID:           d.ID,
		Title:        d.Title,
		CollectionID: d.CollectionID,
	}
}

// LexicalHit 全文检索命中行，按引擎相关度排序
type LexicalHit struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	CollectionID string `json:"collection_id"`
	Excerpt      string `json:"excerpt"`
}
