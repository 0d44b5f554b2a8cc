package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdoc-ai-api/internal/application/retrieval"
	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
)

type fakeModel struct {
	enabled   bool
	chunks    []string
	streamErr error
	recvErr   error
	messages  []*schema.Message
}

func (f *fakeModel) Enabled() bool     { return f.enabled }
func (f *fakeModel) Provider() string  { return "openai" }
func (f *fakeModel) ModelName() string { return "gpt-4o-mini" }

func (f *fakeModel) Stream(_ context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	f.messages = messages
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(schema.AssistantMessage(c, nil), nil)
		}
		if f.recvErr != nil {
			sw.Send(nil, f.recvErr)
		}
	}()
	return sr, nil
}

type fakeSessionRepo struct {
	sessions map[string]*entity.ChatSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*entity.ChatSession)}
}

func (f *fakeSessionRepo) Create(_ context.Context, s *entity.ChatSession) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (*entity.ChatSession, error) {
	return f.sessions[id], nil
}

func (f *fakeSessionRepo) Update(_ context.Context, s *entity.ChatSession) error {
	f.sessions[s.ID] = s
	return nil
}

type fakeTurnRepo struct {
	turns []*entity.ChatTurn
}

func (f *fakeTurnRepo) Create(_ context.Context, t *entity.ChatTurn) error {
	f.turns = append(f.turns, t)
	return nil
}

func (f *fakeTurnRepo) ListRecentBySession(_ context.Context, sessionID string, limit int) ([]*entity.ChatTurn, error) {
	var out []*entity.ChatTurn
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeTurnRepo) ListBySession(ctx context.Context, sessionID string, p repository.Pagination) (*repository.PagedResult[*entity.ChatTurn], error) {
	turns, _ := f.ListRecentBySession(ctx, sessionID, 1<<30)
	return repository.NewPagedResult(turns, int64(len(turns)), p), nil
}

type cacheKey struct{ scope, kind, topic string }

type fakeContentCache struct {
	entries map[cacheKey]*entity.GeneratedContent
	gets    int
}

func newFakeContentCache() *fakeContentCache {
	return &fakeContentCache{entries: make(map[cacheKey]*entity.GeneratedContent)}
}

func (f *fakeContentCache) Get(_ context.Context, scopeKey, kind, subTopic string, maxAge time.Duration) (*entity.GeneratedContent, error) {
	f.gets++
	c, ok := f.entries[cacheKey{scopeKey, kind, subTopic}]
	if !ok || time.Since(c.CreatedAt) > maxAge {
		return nil, nil
	}
	return c, nil
}

func (f *fakeContentCache) Put(_ context.Context, c *entity.GeneratedContent) error {
	f.entries[cacheKey{c.ScopeKey, c.Kind, c.SubTopic}] = c
	return nil
}

// 检索侧桩：空结果即可，检索语义在 retrieval 包内单测。
type stubEmbedder struct{}

func (stubEmbedder) Enabled() bool { return false }
func (stubEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("disabled")
}

type stubDocRepo struct{}

func (stubDocRepo) GetByID(context.Context, string) (*entity.Document, error) {
	return nil, errors.New("not found")
}
func (stubDocRepo) GetMeta(context.Context, string) (*entity.DocumentMeta, error) {
	return nil, errors.New("not found")
}
func (stubDocRepo) ListIDs(context.Context) ([]string, error) { return nil, nil }
func (stubDocRepo) SearchFullText(context.Context, []string, []string, int) ([]*entity.LexicalHit, error) {
	return nil, nil
}

func newTestService(model ModelProvider, sessions *fakeSessionRepo, turns *fakeTurnRepo, cache *fakeContentCache) *Service {
	assembler := retrieval.NewAssembler(stubEmbedder{}, nil, stubDocRepo{}, retrieval.AssemblerConfig{})
	return NewService(assembler, model, sessions, turns, cache, nil, Config{
		MaxMessageRunes: 8000,
		HistoryTurns:    50,
		CacheMaxAge:     7 * 24 * time.Hour,
	})
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event stream did not terminate")
		}
	}
}

func TestStream_HappyPath(t *testing.T) {
	model := &fakeModel{enabled: true, chunks: []string{"第一段", "第二段"}}
	sessions := newFakeSessionRepo()
	turns := &fakeTurnRepo{}
	cache := newFakeContentCache()
	svc := newTestService(model, sessions, turns, cache)

	ch, err := svc.Stream(context.Background(), &Request{Message: "柴油机排放限值是多少"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 4)
	meta, ok := events[0].(*Metadata)
	require.True(t, ok, "first event must be metadata")
	assert.NotEmpty(t, meta.SessionID)
	assert.False(t, meta.Cached)
	assert.Equal(t, &TextDelta{Text: "第一段"}, events[1])
	assert.Equal(t, &TextDelta{Text: "第二段"}, events[2])
	assert.Equal(t, &Done{Result: "completed"}, events[3])

	// 用户轮 + 助手轮都已落库
	require.Len(t, turns.turns, 2)
	assert.Equal(t, entity.RoleUser, turns.turns[0].Role)
	assert.Equal(t, entity.RoleAssistant, turns.turns[1].Role)
	assert.Equal(t, "第一段第二段", turns.turns[1].Content)

	// 答案进入内容缓存
	assert.Len(t, cache.entries, 1)

	// 会话已创建且标题来自首问
	session := sessions.sessions[meta.SessionID]
	require.NotNil(t, session)
	assert.Equal(t, "柴油机排放限值是多少", session.Title)
}

func TestStream_CachedReplay(t *testing.T) {
	model := &fakeModel{enabled: true, chunks: []string{"should not be used"}}
	sessions := newFakeSessionRepo()
	turns := &fakeTurnRepo{}
	cache := newFakeContentCache()
	require.NoError(t, cache.Put(context.Background(), &entity.GeneratedContent{
		ScopeKey:  "all",
		Kind:      "chat_answer",
		SubTopic:  NormalizeSubTopic("柴油机排放限值是多少"),
		Content:   "缓存的完整回答",
		CreatedAt: time.Now(),
	}))
	svc := newTestService(model, sessions, turns, cache)

	ch, err := svc.Stream(context.Background(), &Request{Message: "柴油机排放限值是多少"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 3)
	meta := events[0].(*Metadata)
	assert.True(t, meta.Cached)
	assert.Equal(t, &TextDelta{Text: "缓存的完整回答"}, events[1])
	assert.Equal(t, &Done{Result: "completed"}, events[2])

	// 模型未被调用
	assert.Nil(t, model.messages)
	// 回放同样落库为一轮助手消息
	require.Len(t, turns.turns, 2)
	assert.Equal(t, "缓存的完整回答", turns.turns[1].Content)
}

func TestStream_DocumentFilterSkipsCache(t *testing.T) {
	model := &fakeModel{enabled: true, chunks: []string{"scoped answer"}}
	cache := newFakeContentCache()
	svc := newTestService(model, newFakeSessionRepo(), &fakeTurnRepo{}, cache)

	ch, err := svc.Stream(context.Background(), &Request{
		Message:     "这份文档里的限值",
		DocumentIDs: []string{"doc-a"},
	})
	require.NoError(t, err)
	collect(t, ch)

	assert.Zero(t, cache.gets, "cache must not be consulted when document filter present")
	assert.Empty(t, cache.entries, "filtered answers must not be cached")
}

func TestStream_ApologyFallbackStillEmitsDone(t *testing.T) {
	model := &fakeModel{enabled: true, streamErr: errors.New("provider down")}
	turns := &fakeTurnRepo{}
	svc := newTestService(model, newFakeSessionRepo(), turns, newFakeContentCache())

	ch, err := svc.Stream(context.Background(), &Request{Message: "会失败的问题"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.GreaterOrEqual(t, len(events), 3)
	assert.IsType(t, &Metadata{}, events[0])
	assert.Equal(t, &TextDelta{Text: apologyMessage}, events[len(events)-2])
	assert.Equal(t, &Done{Result: "fallback"}, events[len(events)-1])

	// 道歉文案照常落库
	require.Len(t, turns.turns, 2)
	assert.Equal(t, apologyMessage, turns.turns[1].Content)
}

func TestStream_ModelNotConfiguredFallsBack(t *testing.T) {
	model := &fakeModel{enabled: false}
	svc := newTestService(model, newFakeSessionRepo(), &fakeTurnRepo{}, newFakeContentCache())

	ch, err := svc.Stream(context.Background(), &Request{Message: "任何问题"})
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Equal(t, &Done{Result: "fallback"}, events[len(events)-1])
}

func TestStream_MidStreamErrorReplacedByApology(t *testing.T) {
	model := &fakeModel{enabled: true, chunks: []string{"部分输出"}, recvErr: errors.New("connection reset")}
	turns := &fakeTurnRepo{}
	svc := newTestService(model, newFakeSessionRepo(), turns, newFakeContentCache())

	ch, err := svc.Stream(context.Background(), &Request{Message: "中途断流的问题"})
	require.NoError(t, err)
	events := collect(t, ch)

	assert.Equal(t, &Done{Result: "fallback"}, events[len(events)-1])
	// 落库的是道歉文案而不是半截回答
	assert.Equal(t, apologyMessage, turns.turns[1].Content)
}

func TestStream_ResumesExistingSession(t *testing.T) {
	model := &fakeModel{enabled: true, chunks: []string{"第二轮回答"}}
	sessions := newFakeSessionRepo()
	turns := &fakeTurnRepo{}
	svc := newTestService(model, sessions, turns, newFakeContentCache())

	ch, err := svc.Stream(context.Background(), &Request{Message: "第一轮问题"})
	require.NoError(t, err)
	events := collect(t, ch)
	sessionID := events[0].(*Metadata).SessionID

	ch, err = svc.Stream(context.Background(), &Request{SessionID: sessionID, Message: "第二轮问题"})
	require.NoError(t, err)
	events = collect(t, ch)

	assert.Equal(t, sessionID, events[0].(*Metadata).SessionID)
	assert.Len(t, sessions.sessions, 1)
	require.Len(t, turns.turns, 4)

	// 第二轮的 prompt 携带了第一轮历史
	var roles []schema.RoleType
	for _, m := range model.messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []schema.RoleType{schema.System, schema.User, schema.Assistant, schema.User}, roles)
}

func TestStream_Validation(t *testing.T) {
	svc := newTestService(&fakeModel{enabled: true}, newFakeSessionRepo(), &fakeTurnRepo{}, newFakeContentCache())

	_, err := svc.Stream(context.Background(), &Request{Message: "   "})
	assert.Error(t, err)

	_, err = svc.Stream(context.Background(), &Request{Message: strings.Repeat("长", 8001)})
	assert.Error(t, err)

	_, err = svc.Stream(context.Background(), &Request{Message: "ok", SessionID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestStream_RejectsOversizedFilterLists(t *testing.T) {
	turns := &fakeTurnRepo{}
	svc := newTestService(&fakeModel{enabled: true}, newFakeSessionRepo(), turns, newFakeContentCache())

	huge := make([]string, maxFilterIDs+1)
	for i := range huge {
		huge[i] = fmt.Sprintf("doc-%d", i)
	}

	_, err := svc.Stream(context.Background(), &Request{Message: "any question", DocumentIDs: huge})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document_ids")

	_, err = svc.Stream(context.Background(), &Request{Message: "any question", CollectionIDs: huge})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection_ids")

	// 拒绝发生在落库与检索之前
	assert.Empty(t, turns.turns)

	ok := huge[:maxFilterIDs]
	events, err := svc.Stream(context.Background(), &Request{Message: "any question", DocumentIDs: ok})
	require.NoError(t, err)
	collect(t, events)
}

func TestCacheKeyHelpers(t *testing.T) {
	assert.Equal(t, "all", CacheScopeKey(nil))
	assert.Equal(t, "a,b", CacheScopeKey([]string{"b", "a"}))

	// 超长集合组合降级为摘要，仍与顺序无关且不超过列宽
	many := make([]string, maxFilterIDs)
	for i := range many {
		many[i] = fmt.Sprintf("collection-%037d", i)
	}
	long := CacheScopeKey(many)
	assert.True(t, strings.HasPrefix(long, "sha256:"))
	assert.LessOrEqual(t, len(long), maxScopeKeyLen)
	reversed := make([]string, len(many))
	for i, id := range many {
		reversed[len(many)-1-i] = id
	}
	assert.Equal(t, long, CacheScopeKey(reversed))

	assert.Equal(t, "what are the limits", NormalizeSubTopic("  What   ARE the\nlimits "))
	long = NormalizeSubTopic(strings.Repeat("x", 600))
	assert.Equal(t, 512, len([]rune(long)))
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent("text", `{"text":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, &TextDelta{Text: "hello"}, ev)

	ev, err = DecodeEvent("metadata", `{"session_id":"s1","extra_refs":["https://example.com/a"],"cached":true}`)
	require.NoError(t, err)
	assert.Equal(t, &Metadata{SessionID: "s1", ExtraRefs: []string{"https://example.com/a"}, Cached: true}, ev)

	_, err = DecodeEvent("heartbeat", `{}`)
	assert.Error(t, err)

	_, err = DecodeEvent("done", `not-json`)
	assert.Error(t, err)
}
