// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"regdoc-ai-api/internal/application/chat"
	"regdoc-ai-api/internal/interfaces/http/dto"
	"regdoc-ai-api/pkg/logger"
)

// ChatHandler 问答流式接口处理器
type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Stream 流式问答
// @Summary 流式问答
// @Description 通过 SSE 流式返回检索增强的回答
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param request body dto.ChatStreamRequest true "问答请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/chat/stream [post]
func (h *ChatHandler) Stream(c *gin.Context) {
	var req dto.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if req.SessionID != "" {
		ctx = logger.WithContext(ctx, logger.SessionIDKey, req.SessionID)
	}

	events, err := h.svc.Stream(ctx, &chat.Request{
		SessionID:     req.SessionID,
		Message:       req.Message,
		CollectionIDs: req.CollectionIDs,
		DocumentIDs:   req.DocumentIDs,
	})
	if err != nil {
		dto.AppError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(ev.EventName(), ev)

		// 终结事件后关闭流
		switch ev.(type) {
		case *chat.Done, *chat.ErrorEvent:
			return false
		}
		return true
	})
}
