package dto

import (
	"encoding/json"
	"time"

	"regdoc-ai-api/internal/domain/entity"
)

// ChatStreamRequest 流式问答请求体
type ChatStreamRequest struct {
	SessionID     string   `json:"session_id"`
	Message       string   `json:"message" binding:"required"`
	CollectionIDs []string `json:"collection_ids"`
	DocumentIDs   []string `json:"document_ids"`
}

// SessionResponse 会话信息
type SessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TurnResponse 会话轮次
type TurnResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewSessionResponse(s *entity.ChatSession) *SessionResponse {
	return &SessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func NewTurnResponse(t *entity.ChatTurn) *TurnResponse {
	return &TurnResponse{
		ID:        t.ID,
		Role:      string(t.Role),
		Content:   t.Content,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt,
	}
}
