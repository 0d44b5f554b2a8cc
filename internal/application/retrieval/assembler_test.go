package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
)

type fakeEmbedder struct {
	enabled bool
	err     error
	dim     int
	calls   [][]string
}

func (f *fakeEmbedder) Enabled() bool { return f.enabled }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeVectorRepo struct {
	hits      []*VectorSearchResult
	searchErr error
	insertErr error

	ensured  int
	deleted  []string
	inserted [][]*VectorDocChunk
	lastReq  *VectorSearchParams
}

func (f *fakeVectorRepo) EnsureCollection(context.Context) error {
	f.ensured++
	return nil
}

func (f *fakeVectorRepo) InsertChunks(_ context.Context, chunks []*VectorDocChunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, chunks)
	return nil
}

func (f *fakeVectorRepo) DeleteByDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeVectorRepo) SearchChunks(_ context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error) {
	f.lastReq = params
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

type fakeDocRepo struct {
	docs        map[string]*entity.Document
	listIDs     []string
	lexicalHits []*entity.LexicalHit
	lexicalErr  error
	lexicalReqs [][]string
}

func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.New("document not found")
	}
	return doc, nil
}

func (f *fakeDocRepo) GetMeta(_ context.Context, id string) (*entity.DocumentMeta, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.New("document not found")
	}
	meta := doc.Meta()
	return &meta, nil
}

func (f *fakeDocRepo) ListIDs(_ context.Context) ([]string, error) {
	if f.listIDs != nil {
		return f.listIDs, nil
	}
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeDocRepo) SearchFullText(_ context.Context, terms []string, _ []string, _ int) ([]*entity.LexicalHit, error) {
	f.lexicalReqs = append(f.lexicalReqs, terms)
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexicalHits, nil
}

var _ repository.DocumentRepository = (*fakeDocRepo)(nil)

func vecHit(id, docID, collID string, idx int64, text string) *VectorSearchResult {
	return &VectorSearchResult{
		ID: id, DocumentID: docID, CollectionID: collID, ChunkIndex: idx, TextContent: text,
	}
}

func testAssembler(emb Embedder, vec VectorRepository, docs repository.DocumentRepository) *Assembler {
	return NewAssembler(emb, vec, docs, AssemblerConfig{
		TokenBudget:     4000,
		VectorLimit:     10,
		LexicalLimit:    5,
		MaxSearchTerms:  5,
		MinWordLength:   4,
		ExcerptMaxChars: 500,
	})
}

func TestGather_MergesVectorAndLexicalSources(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{hits: []*VectorSearchResult{
		vecHit("c1", "doc-a", "reg", 0, "first chunk about emission limits"),
		vecHit("c2", "doc-a", "reg", 1, "second chunk from the same document"),
		vecHit("c3", "doc-b", "reg", 0, "chunk from another document"),
	}}
	docs := &fakeDocRepo{
		docs: map[string]*entity.Document{
			"doc-a": {ID: "doc-a", Title: "Emission Standards", CollectionID: "reg"},
			"doc-b": {ID: "doc-b", Title: "Engine Testing", CollectionID: "reg"},
			"doc-c": {ID: "doc-c", Title: "Fuel Quality", CollectionID: "reg"},
		},
		lexicalHits: []*entity.LexicalHit{
			{ID: "doc-a", DocumentID: "doc-a", Title: "Emission Standards", CollectionID: "reg", Excerpt: "..."},
			{ID: "doc-c", DocumentID: "doc-c", Title: "Fuel Quality", CollectionID: "reg", Excerpt: "fuel sulphur content"},
		},
	}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{Query: "emission limits for diesel"})

	assert.Equal(t, 3, out.VectorChunks)
	assert.Equal(t, 1, out.LexicalHits) // doc-a 已被向量侧引用，去重

	require.Len(t, out.Sources, 3)
	assert.Equal(t, "doc-a", out.Sources[0].DocumentID)
	assert.Equal(t, "vector", out.Sources[0].Origin)
	assert.Equal(t, "Emission Standards", out.Sources[0].Title)
	assert.Equal(t, "doc-b", out.Sources[1].DocumentID)
	assert.Equal(t, "doc-c", out.Sources[2].DocumentID)
	assert.Equal(t, "lexical", out.Sources[2].Origin)

	// 向量侧有产出时词法摘录不进入上下文
	assert.Contains(t, out.Context, "first chunk about emission limits")
	assert.NotContains(t, out.Context, "fuel sulphur content")
}

func TestGather_TokenBudgetStopsAppending(t *testing.T) {
	big := strings.Repeat("x", 8000) // 2000 tokens
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{hits: []*VectorSearchResult{
		vecHit("c1", "doc-a", "reg", 0, big),
		vecHit("c2", "doc-b", "reg", 0, big),
		vecHit("c3", "doc-c", "reg", 0, big),
	}}
	docs := &fakeDocRepo{docs: map[string]*entity.Document{
		"doc-a": {ID: "doc-a", Title: "A"}, "doc-b": {ID: "doc-b", Title: "B"}, "doc-c": {ID: "doc-c", Title: "C"},
	}}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{Query: "anything relevant"})

	assert.Equal(t, 2, out.VectorChunks)
	assert.Equal(t, 4000, out.TokensUsed)
	assert.Len(t, out.Sources, 2)
}

func TestGather_FirstOversizedChunkStillAppended(t *testing.T) {
	// 预算按"未耗尽即追加"判断：首个分块即便超预算也要进入上下文，
	// 否则一个大分块会让整个预算作废。
	huge := strings.Repeat("x", 20000) // 5000 tokens
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{hits: []*VectorSearchResult{
		vecHit("c1", "doc-a", "reg", 0, huge),
		vecHit("c2", "doc-b", "reg", 0, "small trailing chunk"),
	}}
	docs := &fakeDocRepo{docs: map[string]*entity.Document{
		"doc-a": {ID: "doc-a", Title: "A"}, "doc-b": {ID: "doc-b", Title: "B"},
	}}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{Query: "anything relevant"})

	assert.Equal(t, 1, out.VectorChunks)
	assert.Equal(t, 5000, out.TokensUsed)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "doc-a", out.Sources[0].DocumentID)
}

func TestGather_LexicalExcerptOnlyWhenVectorEmpty(t *testing.T) {
	emb := &fakeEmbedder{enabled: false}
	vec := &fakeVectorRepo{}
	excerpt := strings.Repeat("y", 800)
	docs := &fakeDocRepo{
		docs: map[string]*entity.Document{"doc-a": {ID: "doc-a", Title: "A"}},
		lexicalHits: []*entity.LexicalHit{
			{ID: "doc-a", DocumentID: "doc-a", Title: "A", CollectionID: "reg", Excerpt: excerpt},
		},
	}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{Query: "emission limits"})

	assert.Equal(t, 0, out.VectorChunks)
	assert.Equal(t, 1, out.LexicalHits)
	assert.NotEmpty(t, out.DisabledReason)
	// 摘录被截断到上限
	assert.Contains(t, out.Context, strings.Repeat("y", 500))
	assert.NotContains(t, out.Context, strings.Repeat("y", 501))
}

func TestGather_DocumentFilterDiscardsForeignHits(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{hits: []*VectorSearchResult{
		vecHit("c1", "doc-a", "reg", 0, "chunk inside the requested scope"),
		vecHit("c2", "doc-z", "reg", 0, "chunk outside the requested scope"),
	}}
	docs := &fakeDocRepo{
		docs: map[string]*entity.Document{"doc-a": {ID: "doc-a", Title: "A"}},
		lexicalHits: []*entity.LexicalHit{
			{ID: "doc-z", DocumentID: "doc-z", Title: "Z", Excerpt: "foreign"},
		},
	}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{
		Query:       "scoped question",
		DocumentIDs: []string{"doc-a"},
	})

	assert.Equal(t, 1, out.VectorChunks)
	assert.Equal(t, 0, out.LexicalHits)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "doc-a", out.Sources[0].DocumentID)
	assert.Equal(t, []string{"doc-a"}, vec.lastReq.DocumentIDs)
}

func TestGather_AbsorbsBackendFailures(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{searchErr: errors.New("milvus unreachable")}
	docs := &fakeDocRepo{lexicalErr: errors.New("postgres down"), docs: map[string]*entity.Document{}}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{Query: "still answerable"})

	assert.Empty(t, out.Context)
	assert.Empty(t, out.Sources)
	assert.Equal(t, 0, out.VectorChunks)
	assert.Equal(t, 0, out.LexicalHits)
}

func TestGather_EmptyQueryShortCircuits(t *testing.T) {
	emb := &fakeEmbedder{enabled: true, dim: 4}
	vec := &fakeVectorRepo{}
	docs := &fakeDocRepo{}

	out := testAssembler(emb, vec, docs).Gather(context.Background(), GatherInput{Query: "   "})

	assert.Empty(t, out.Sources)
	assert.Empty(t, emb.calls)
}
