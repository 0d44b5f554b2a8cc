package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
	"regdoc-ai-api/pkg/logger"
	"regdoc-ai-api/pkg/metrics"
)

// AssemblerConfig 混合检索参数，零值由 NewAssembler 补默认。
type AssemblerConfig struct {
	TokenBudget     int
	VectorLimit     int
	LexicalLimit    int
	MaxSearchTerms  int
	MinWordLength   int
	ExcerptMaxChars int
}

// Assembler 把向量召回与全文检索合并为一段带预算约束的上下文。
// 两条通道的失败都只降级不报错：检索永远可以返回空上下文。
type Assembler struct {
	embedder Embedder
	vectors  VectorRepository
	docs     repository.DocumentRepository
	cfg      AssemblerConfig
}

func NewAssembler(embedder Embedder, vectors VectorRepository, docs repository.DocumentRepository, cfg AssemblerConfig) *Assembler {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 4000
	}
	if cfg.VectorLimit <= 0 {
		cfg.VectorLimit = 10
	}
	if cfg.LexicalLimit <= 0 {
		cfg.LexicalLimit = 5
	}
	if cfg.MaxSearchTerms <= 0 {
		cfg.MaxSearchTerms = 5
	}
	if cfg.MinWordLength <= 0 {
		cfg.MinWordLength = 4
	}
	if cfg.ExcerptMaxChars <= 0 {
		cfg.ExcerptMaxChars = 500
	}
	return &Assembler{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		cfg:      cfg,
	}
}

// Gather 并发执行向量与词法两路检索并在预算内合并。
// 任一通道出错都记录日志后继续，调用方拿到的永远是可用结果。
func (a *Assembler) Gather(ctx context.Context, in GatherInput) *GatherOutput {
	out := &GatherOutput{}
	if a == nil || strings.TrimSpace(in.Query) == "" {
		return out
	}

	var (
		vectorHits  []*VectorSearchResult
		lexicalHits []*entity.LexicalHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorHits = a.searchVector(gctx, in, out)
		return nil
	})
	g.Go(func() error {
		lexicalHits = a.searchLexical(gctx, in)
		return nil
	})
	_ = g.Wait()

	a.merge(ctx, in, vectorHits, lexicalHits, out)
	return out
}

func (a *Assembler) searchVector(ctx context.Context, in GatherInput, out *GatherOutput) []*VectorSearchResult {
	start := time.Now()
	defer func() {
		metrics.RetrievalSearchDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
	}()

	if a.vectors == nil {
		out.DisabledReason = "vector store not configured"
		metrics.RetrievalSearchTotal.WithLabelValues("vector", "disabled").Inc()
		return nil
	}
	if a.embedder == nil || !a.embedder.Enabled() {
		out.DisabledReason = "embedding credentials not configured"
		metrics.RetrievalSearchTotal.WithLabelValues("vector", "disabled").Inc()
		return nil
	}

	vectors, err := a.embedder.Embed(ctx, []string{in.Query})
	if err != nil || len(vectors) == 0 {
		logger.Warn(ctx, "query embedding failed, vector phase skipped", "error", err)
		metrics.RetrievalSearchTotal.WithLabelValues("vector", "error").Inc()
		return nil
	}

	hits, err := a.vectors.SearchChunks(ctx, &VectorSearchParams{
		QueryVector:   vectors[0],
		TopK:          a.cfg.VectorLimit,
		CollectionIDs: in.CollectionIDs,
		DocumentIDs:   in.DocumentIDs,
	})
	if err != nil {
		logger.Warn(ctx, "vector search failed, degraded to lexical only", "error", err)
		metrics.RetrievalSearchTotal.WithLabelValues("vector", "error").Inc()
		return nil
	}
	metrics.RetrievalSearchTotal.WithLabelValues("vector", "ok").Inc()
	return hits
}

func (a *Assembler) searchLexical(ctx context.Context, in GatherInput) []*entity.LexicalHit {
	start := time.Now()
	defer func() {
		metrics.RetrievalSearchDuration.WithLabelValues("lexical").Observe(time.Since(start).Seconds())
	}()

	terms := ExtractSearchTerms(in.Query, a.cfg.MaxSearchTerms, a.cfg.MinWordLength)
	if len(terms) == 0 {
		return nil
	}

	hits, err := a.docs.SearchFullText(ctx, terms, in.CollectionIDs, a.cfg.LexicalLimit)
	if err != nil {
		logger.Warn(ctx, "full-text search failed, degraded to vector only", "error", err)
		metrics.RetrievalSearchTotal.WithLabelValues("lexical", "error").Inc()
		return nil
	}
	metrics.RetrievalSearchTotal.WithLabelValues("lexical", "ok").Inc()
	return hits
}

// merge 在 token 预算内拼接上下文：向量分块优先，按相似度顺序
// 填充到预算为止；词法命中只补充来源，除非向量侧一无所获才
// 贴出一段截断摘录。来源按文档去重。
func (a *Assembler) merge(ctx context.Context, in GatherInput, vectorHits []*VectorSearchResult, lexicalHits []*entity.LexicalHit, out *GatherOutput) {
	docFilter := toSet(in.DocumentIDs)
	seenDocs := make(map[string]bool)

	var b strings.Builder
	used := 0

	for _, hit := range vectorHits {
		if len(docFilter) > 0 && !docFilter[hit.DocumentID] {
			continue
		}
		// 预算未耗尽即追加，允许最后一个分块轻微超出。
		if used >= a.cfg.TokenBudget {
			break
		}
		used += EstimateTokens(hit.TextContent)
		out.VectorChunks++

		fmt.Fprintf(&b, "[文档 %s 片段 %d]\n%s\n\n", hit.DocumentID, hit.ChunkIndex, hit.TextContent)

		if !seenDocs[hit.DocumentID] {
			seenDocs[hit.DocumentID] = true
			out.Sources = append(out.Sources, Source{
				SourceID:     hit.ID,
				DocumentID:   hit.DocumentID,
				Title:        a.lookupTitle(ctx, hit.DocumentID),
				CollectionID: hit.CollectionID,
				Origin:       "vector",
			})
		}
	}

	for _, hit := range lexicalHits {
		if len(docFilter) > 0 && !docFilter[hit.DocumentID] {
			continue
		}
		if seenDocs[hit.DocumentID] {
			continue
		}
		seenDocs[hit.DocumentID] = true
		out.LexicalHits++
		out.Sources = append(out.Sources, Source{
			SourceID:     hit.ID,
			DocumentID:   hit.DocumentID,
			Title:        hit.Title,
			CollectionID: hit.CollectionID,
			Origin:       "lexical",
		})

		// 向量侧有产出时词法命中只作引用，不占上下文预算。
		if out.VectorChunks > 0 {
			continue
		}
		if used >= a.cfg.TokenBudget {
			continue
		}
		excerpt := truncateRunes(hit.Excerpt, a.cfg.ExcerptMaxChars)
		used += EstimateTokens(excerpt)
		fmt.Fprintf(&b, "[文档 %s 摘录]\n%s\n\n", hit.DocumentID, excerpt)
	}

	out.Context = strings.TrimRight(b.String(), "\n")
	out.TokensUsed = used
}

func (a *Assembler) lookupTitle(ctx context.Context, documentID string) string {
	meta, err := a.docs.GetMeta(ctx, documentID)
	if err != nil || meta == nil {
		return documentID
	}
	return meta.Title
}

// ExtractSearchTerms 从查询中提取全文检索词：按非字母数字切词、
// 转小写、去重、丢弃短词，最多返回 max 个。
func ExtractSearchTerms(query string, max, minLen int) []string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool)
	terms := make([]string, 0, max)
	for _, w := range words {
		w = strings.ToLower(w)
		if len([]rune(w)) < minLen || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) >= max {
			break
		}
	}
	return terms
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
