package retrieval

import "context"

// VectorDocChunk 写入向量库的单个分块。
type VectorDocChunk struct {
	ID           string
	DocumentID   string
	CollectionID string
	ChunkIndex   int64
	TextContent  string
	Vector       []float32
}

// VectorSearchParams 向量检索参数。CollectionIDs/DocumentIDs 为空表示不过滤。
type VectorSearchParams struct {
	QueryVector   []float32
	TopK          int
	CollectionIDs []string
	DocumentIDs   []string
}

// VectorSearchResult 单条检索命中，按相似度降序返回。
type VectorSearchResult struct {
	ID           string
	DocumentID   string
	CollectionID string
	ChunkIndex   int64
	TextContent  string
	Score        float32
}

// VectorRepository 向量库端口，由 infrastructure/persistence/milvus 实现。
type VectorRepository interface {
	EnsureCollection(ctx context.Context) error
	InsertChunks(ctx context.Context, chunks []*VectorDocChunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	SearchChunks(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
}
