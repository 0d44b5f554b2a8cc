// Package entity 定义领域实体
package entity

import (
	"time"
)

// GeneratedContent 生成内容缓存条目，唯一键 (scope_key, kind, sub_topic)。
// 条目不做原地修改：新的一次生成整体替换旧条目。
type GeneratedContent struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ScopeKey  string    `json:"scope_key" gorm:"type:varchar(128);uniqueIndex:uq_generated_contents_key,priority:1;not null"`
	Kind      string    `json:"kind" gorm:"type:varchar(32);uniqueIndex:uq_generated_contents_key,priority:2;not null"`
	SubTopic  string    `json:"sub_topic" gorm:"type:varchar(512);uniqueIndex:uq_generated_contents_key,priority:3;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (GeneratedContent) TableName() string {
	return "generated_contents"
}
