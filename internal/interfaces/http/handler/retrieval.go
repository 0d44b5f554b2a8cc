// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"regdoc-ai-api/internal/application/retrieval"
	"regdoc-ai-api/internal/interfaces/http/dto"
	"regdoc-ai-api/pkg/logger"
)

// RetrievalHandler 检索调试与索引管理处理器
type RetrievalHandler struct {
	assembler *retrieval.Assembler
	indexer   *retrieval.Indexer
}

func NewRetrievalHandler(assembler *retrieval.Assembler, indexer *retrieval.Indexer) *RetrievalHandler {
	return &RetrievalHandler{
		assembler: assembler,
		indexer:   indexer,
	}
}

// Search 检索调试：直接返回混合检索的合并结果
// @Summary 检索调试
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param request body dto.RetrievalSearchRequest true "检索请求"
// @Success 200 {object} dto.Response[retrieval.GatherOutput]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/retrieval/search [post]
func (h *RetrievalHandler) Search(c *gin.Context) {
	var req dto.RetrievalSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out := h.assembler.Gather(c.Request.Context(), retrieval.GatherInput{
		Query:         req.Query,
		CollectionIDs: req.CollectionIDs,
		DocumentIDs:   req.DocumentIDs,
	})
	dto.Success(c, out)
}

// Reindex 重建单个文档的向量索引
// @Summary 重建文档索引
// @Tags Retrieval
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} dto.Response[gin.H]
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/documents/{id}/reindex [post]
func (h *RetrievalHandler) Reindex(c *gin.Context) {
	documentID := c.Param("id")
	ctx := logger.WithContext(c.Request.Context(), logger.DocumentIDKey, documentID)

	if err := h.indexer.IndexDocument(ctx, documentID); err != nil {
		if errors.Is(err, retrieval.ErrVectorDisabled) {
			dto.ServiceUnavailable(c, "vector indexing is disabled")
			return
		}
		dto.InternalError(c, err.Error())
		return
	}
	dto.Success(c, gin.H{"document_id": documentID, "status": "reindexed"})
}
