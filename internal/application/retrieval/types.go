package retrieval

import "context"

// ChunkWindow 是切分产物。Start/End 是原文中的 rune 偏移（半开区间），
// Text 是去除首尾空白后的窗口内容。
type ChunkWindow struct {
	Index int
	Start int
	End   int
	Text  string
}

// Embedder 向量化端口，由 infrastructure/embedding 实现。
// Enabled 为 false 时表示未配置凭证，属于功能关闭而非故障。
type Embedder interface {
	Enabled() bool
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GatherInput 混合检索入参。DocumentIDs 非空时检索范围收窄到指定文档。
type GatherInput struct {
	Query         string
	CollectionIDs []string
	DocumentIDs   []string
}

// Source 是对引用来源的去重描述，同一文档只出现一次。
type Source struct {
	SourceID     string `json:"source_id"`
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	CollectionID string `json:"collection_id"`
	Origin       string `json:"origin"` // vector | lexical
}

// GatherOutput 聚合结果。Gather 从不返回错误：任一通道失败都被
// 吸收为降级，调用方只会看到更少的上下文。
type GatherOutput struct {
	Context        string   `json:"context"`
	Sources        []Source `json:"sources"`
	VectorChunks   int      `json:"vector_chunks"`
	LexicalHits    int      `json:"lexical_hits"`
	TokensUsed     int      `json:"tokens_used"`
	DisabledReason string   `json:"disabled_reason,omitempty"`
}
