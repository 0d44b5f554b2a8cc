package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdoc-ai-api/internal/domain/entity"
)

func testIndexer(emb Embedder, vec VectorRepository, docs *fakeDocRepo) *Indexer {
	return NewIndexer(emb, vec, docs, IndexerConfig{
		ChunkSize:      2000,
		ChunkOverlap:   400,
		MinChunkLength: 20,
		FlushBatchSize: 2,
	})
}

func TestIndexDocument_ReplacesExistingChunks(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{}
	docs := &fakeDocRepo{docs: map[string]*entity.Document{
		"doc-a": {ID: "doc-a", Title: "A", CollectionID: "reg", ContentText: strings.Repeat("z", 4500)},
	}}

	err := testIndexer(emb, vec, docs).IndexDocument(context.Background(), "doc-a")
	require.NoError(t, err)

	// 先删旧分块再写入
	assert.Equal(t, []string{"doc-a"}, vec.deleted)
	assert.Equal(t, 1, vec.ensured)

	// 3 个分块按 FlushBatchSize=2 分两批写入
	require.Len(t, vec.inserted, 2)
	assert.Len(t, vec.inserted[0], 2)
	assert.Len(t, vec.inserted[1], 1)

	var indexes []int64
	for _, batch := range vec.inserted {
		for _, c := range batch {
			indexes = append(indexes, c.ChunkIndex)
			assert.Equal(t, "doc-a", c.DocumentID)
			assert.Equal(t, "reg", c.CollectionID)
			assert.NotEmpty(t, c.ID)
			assert.Len(t, c.Vector, 4)
		}
	}
	assert.Equal(t, []int64{0, 1, 2}, indexes)
}

func TestIndexDocument_EmbeddingFailureAborts(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, err: errors.New("upstream 500")}
	vec := &fakeVectorRepo{}
	docs := &fakeDocRepo{docs: map[string]*entity.Document{
		"doc-a": {ID: "doc-a", ContentText: strings.Repeat("z", 100)},
	}}

	err := testIndexer(emb, vec, docs).IndexDocument(context.Background(), "doc-a")
	require.Error(t, err)
	assert.Empty(t, vec.inserted)
}

func TestIndexDocument_DisabledWithoutCredentials(t *testing.T) {
	emb := &fakeEmbedder{enabled: false}
	vec := &fakeVectorRepo{}
	docs := &fakeDocRepo{docs: map[string]*entity.Document{"doc-a": {ID: "doc-a"}}}

	err := testIndexer(emb, vec, docs).IndexDocument(context.Background(), "doc-a")
	assert.ErrorIs(t, err, ErrVectorDisabled)
	assert.Empty(t, vec.deleted)
}

func TestIndexDocument_EmptyDocumentIsNoop(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{}
	docs := &fakeDocRepo{docs: map[string]*entity.Document{
		"doc-a": {ID: "doc-a", ContentText: "short"},
	}}

	err := testIndexer(emb, vec, docs).IndexDocument(context.Background(), "doc-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a"}, vec.deleted)
	assert.Empty(t, vec.inserted)
}

func TestIndexAll_ContinuesPastFailures(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{}
	docs := &fakeDocRepo{
		docs: map[string]*entity.Document{
			"doc-a": {ID: "doc-a", ContentText: strings.Repeat("z", 100)},
			"doc-c": {ID: "doc-c", ContentText: strings.Repeat("z", 100)},
		},
		// doc-b 不在库里，GetByID 失败但不阻断其余文档
		listIDs: []string{"doc-a", "doc-b", "doc-c"},
	}

	err := testIndexer(emb, vec, docs).IndexAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Len(t, vec.inserted, 2)
}
