package dto

// RetrievalSearchRequest 检索调试请求体
type RetrievalSearchRequest struct {
	Query         string   `json:"query" binding:"required"`
	CollectionIDs []string `json:"collection_ids"`
	DocumentIDs   []string `json:"document_ids"`
}
