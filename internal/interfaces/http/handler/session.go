// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"regdoc-ai-api/internal/application/chat"
	"regdoc-ai-api/internal/domain/repository"
	"regdoc-ai-api/internal/interfaces/http/dto"
)

// SessionHandler 会话查询处理器
type SessionHandler struct {
	svc *chat.Service
}

func NewSessionHandler(svc *chat.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Get 查询会话
// @Summary 查询会话
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.svc.GetSession(c.Request.Context(), c.Param("sid"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewSessionResponse(session))
}

// ListTurns 分页查询会话轮次
// @Summary 查询会话轮次
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.TurnResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/turns [get]
func (h *SessionHandler) ListTurns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	pagination := repository.NewPagination(page, pageSize)
	result, err := h.svc.ListTurns(c.Request.Context(), c.Param("sid"), pagination)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	turns := make([]*dto.TurnResponse, 0, len(result.Items))
	for _, t := range result.Items {
		turns = append(turns, dto.NewTurnResponse(t))
	}
	dto.SuccessWithPage(c, turns, dto.NewPageMeta(pagination.Page, pagination.PageSize, int(result.Total)))
}
