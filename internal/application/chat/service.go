package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"regdoc-ai-api/internal/application/retrieval"
	"regdoc-ai-api/internal/domain/entity"
	"regdoc-ai-api/internal/domain/repository"
	apperrors "regdoc-ai-api/pkg/errors"
	"regdoc-ai-api/pkg/logger"
	"regdoc-ai-api/pkg/metrics"
)

const apologyMessage = "抱歉，本次回答生成失败，请稍后重试。"

const maxTitleRunes = 64

// maxFilterIDs 限制单次请求携带的过滤 ID 数量。过滤列表会被展开进
// 向量检索的下推表达式和缓存键，不设上限会放大两者的体积。
const maxFilterIDs = 50

// ModelProvider 生成模型端口，由 infrastructure/llm 实现。
// Enabled 为 false 表示未配置凭证。
type ModelProvider interface {
	Enabled() bool
	Provider() string
	ModelName() string
	Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error)
}

// TurnCache 会话轮次的滚动快照，由 infrastructure/persistence/redis 实现。
// 快照只是读加速，未命中或出错都回退到数据库。
type TurnCache interface {
	GetTurns(ctx context.Context, sessionID string) ([]*entity.ChatTurn, bool)
	SetTurns(ctx context.Context, sessionID string, turns []*entity.ChatTurn)
}

// Config 会话编排参数。
type Config struct {
	MaxMessageRunes int
	HistoryTurns    int
	CacheMaxAge     time.Duration
}

// Service 问答编排服务。
type Service struct {
	assembler *retrieval.Assembler
	model     ModelProvider
	sessions  repository.ChatSessionRepository
	turns     repository.ChatTurnRepository
	cache     repository.ContentCacheRepository
	snapshots TurnCache
	cfg       Config
}

func NewService(
	assembler *retrieval.Assembler,
	model ModelProvider,
	sessions repository.ChatSessionRepository,
	turns repository.ChatTurnRepository,
	cache repository.ContentCacheRepository,
	snapshots TurnCache,
	cfg Config,
) *Service {
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = 8000
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 50
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = 7 * 24 * time.Hour
	}
	return &Service{
		assembler: assembler,
		model:     model,
		sessions:  sessions,
		turns:     turns,
		cache:     cache,
		snapshots: snapshots,
		cfg:       cfg,
	}
}

// Request 一次流式问答请求。
type Request struct {
	SessionID     string   `json:"session_id"`
	Message       string   `json:"message" binding:"required"`
	CollectionIDs []string `json:"collection_ids"`
	DocumentIDs   []string `json:"document_ids"`
}

// turnMetadata 助手轮落库时附带的来源快照。
type turnMetadata struct {
	Sources []retrieval.Source `json:"sources,omitempty"`
	Cached  bool               `json:"cached,omitempty"`
}

// Stream 校验请求、建立/恢复会话并落库用户轮，然后异步生成。
// 返回的通道在终结事件后关闭；校验与会话错误在建流前同步返回。
func (s *Service) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	// 历史在写入本轮用户消息之前取，避免当前提问出现两次。
	history := s.loadHistory(ctx, session.ID)

	userTurn := entity.NewChatTurn(session.ID, entity.RoleUser, req.Message, nil)
	if err := s.turns.Create(ctx, userTurn); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to persist user turn")
	}

	events := make(chan Event, 16)
	go s.run(ctx, session, req, history, userTurn, events)
	return events, nil
}

func (s *Service) validate(req *Request) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return apperrors.New(apperrors.CodeInvalidParam, "message must not be empty")
	}
	if n := len([]rune(req.Message)); n > s.cfg.MaxMessageRunes {
		return apperrors.New(apperrors.CodeInvalidParam,
			fmt.Sprintf("message exceeds %d characters", s.cfg.MaxMessageRunes))
	}
	if req.SessionID != "" {
		if _, err := uuid.Parse(req.SessionID); err != nil {
			return apperrors.New(apperrors.CodeInvalidParam, "session_id must be a UUID")
		}
	}
	if len(req.CollectionIDs) > maxFilterIDs {
		return apperrors.New(apperrors.CodeInvalidParam,
			fmt.Sprintf("collection_ids exceeds %d entries", maxFilterIDs))
	}
	if len(req.DocumentIDs) > maxFilterIDs {
		return apperrors.New(apperrors.CodeInvalidParam,
			fmt.Sprintf("document_ids exceeds %d entries", maxFilterIDs))
	}
	return nil
}

// resolveSession 建立或恢复会话：未提供 ID 时新建，提供的 ID
// 不存在时以该 ID 新建，保证客户端可以自带会话标识。
func (s *Service) resolveSession(ctx context.Context, req *Request) (*entity.ChatSession, error) {
	if req.SessionID != "" {
		session, err := s.sessions.GetByID(ctx, req.SessionID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
		}
		if session != nil {
			return session, nil
		}
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	session := entity.NewChatSession(id)
	session.Title = deriveTitle(req.Message)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
	}
	return session, nil
}

func deriveTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes])
	}
	return title
}

// run 执行生成主流程。客户端断开只停止投递，生成与落库仍会完成。
func (s *Service) run(ctx context.Context, session *entity.ChatSession, req *Request, history []*entity.ChatTurn, userTurn *entity.ChatTurn, events chan<- Event) {
	defer close(events)
	start := time.Now()
	genCtx := context.WithoutCancel(ctx)

	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	// 带文档过滤的请求跳过缓存：过滤改变了答案的成立条件。
	cacheable := len(req.DocumentIDs) == 0
	if cacheable {
		if answer, ok := s.lookupCache(genCtx, req); ok {
			metrics.ContentCacheTotal.WithLabelValues("hit").Inc()
			metrics.ChatGenerationTotal.WithLabelValues("cached").Inc()
			s.persistAssistant(genCtx, session.ID, userTurn, answer, turnMetadata{Cached: true})
			emit(&Metadata{SessionID: session.ID, Cached: true})
			emit(&TextDelta{Text: answer})
			emit(&Done{Result: "completed"})
			return
		}
		metrics.ContentCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.ContentCacheTotal.WithLabelValues("skip").Inc()
	}

	gathered := s.assembler.Gather(genCtx, retrieval.GatherInput{
		Query:         req.Message,
		CollectionIDs: req.CollectionIDs,
		DocumentIDs:   req.DocumentIDs,
	})
	emit(&Metadata{SessionID: session.ID, Sources: gathered.Sources})

	answer, genErr := s.generate(genCtx, history, gathered.Context, req.Message, emit)
	result := "completed"
	if genErr != nil {
		logger.Error(genCtx, "answer generation failed, falling back to apology", genErr,
			"session_id", session.ID,
		)
		metrics.ChatGenerationTotal.WithLabelValues("error").Inc()
		answer = apologyMessage
		result = "fallback"
		emit(&TextDelta{Text: answer})
	} else {
		metrics.ChatGenerationTotal.WithLabelValues("ok").Inc()
	}

	s.persistAssistant(genCtx, session.ID, userTurn, answer, turnMetadata{Sources: gathered.Sources})

	if cacheable && genErr == nil {
		s.storeCache(genCtx, req, answer)
	}

	provider := "none"
	if s.model != nil {
		provider = s.model.Provider()
	}
	metrics.ChatGenerationDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	emit(&Done{Result: result})
}

// generate 流式调用模型并边收边发增量，返回完整答案。
func (s *Service) generate(ctx context.Context, history []*entity.ChatTurn, contextBlob, question string, emit func(Event)) (string, error) {
	if s.model == nil || !s.model.Enabled() {
		return "", apperrors.ErrModelUnavailable
	}

	messages := BuildMessages(history, contextBlob, question)
	sr, err := s.model.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to open model stream: %w", err)
	}
	defer sr.Close()

	var b strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("model stream interrupted: %w", err)
		}
		if msg.Content != "" {
			b.WriteString(msg.Content)
			emit(&TextDelta{Text: msg.Content})
		}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			usage := msg.ResponseMeta.Usage
			metrics.LLMTokensUsed.WithLabelValues(s.model.Provider(), s.model.ModelName(), "prompt").
				Add(float64(usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(s.model.Provider(), s.model.ModelName(), "completion").
				Add(float64(usage.CompletionTokens))
		}
	}

	if b.Len() == 0 {
		return "", errors.New("model returned an empty answer")
	}
	return b.String(), nil
}

func (s *Service) loadHistory(ctx context.Context, sessionID string) []*entity.ChatTurn {
	if s.snapshots != nil {
		if turns, ok := s.snapshots.GetTurns(ctx, sessionID); ok {
			return turns
		}
	}
	turns, err := s.turns.ListRecentBySession(ctx, sessionID, s.cfg.HistoryTurns)
	if err != nil {
		logger.Warn(ctx, "failed to load session history, answering without it",
			"session_id", sessionID,
			"error", err,
		)
		return nil
	}
	if s.snapshots != nil {
		s.snapshots.SetTurns(ctx, sessionID, turns)
	}
	return turns
}

// persistAssistant 落库助手轮并推进滚动快照。落库失败仅记日志：
// 回答已经生成，不应因持久化问题向客户端报错。
func (s *Service) persistAssistant(ctx context.Context, sessionID string, userTurn *entity.ChatTurn, answer string, meta turnMetadata) {
	raw, err := json.Marshal(meta)
	if err != nil {
		raw = nil
	}
	turn := entity.NewChatTurn(sessionID, entity.RoleAssistant, answer, raw)
	if err := s.turns.Create(ctx, turn); err != nil {
		logger.Error(ctx, "failed to persist assistant turn", err,
			"session_id", sessionID,
		)
		return
	}

	if s.snapshots != nil {
		turns, ok := s.snapshots.GetTurns(ctx, sessionID)
		if !ok {
			return
		}
		turns = append(turns, userTurn, turn)
		if len(turns) > s.cfg.HistoryTurns {
			turns = turns[len(turns)-s.cfg.HistoryTurns:]
		}
		s.snapshots.SetTurns(ctx, sessionID, turns)
	}
}

func (s *Service) lookupCache(ctx context.Context, req *Request) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	cached, err := s.cache.Get(ctx, CacheScopeKey(req.CollectionIDs), kindChatAnswer, NormalizeSubTopic(req.Message), s.cfg.CacheMaxAge)
	if err != nil {
		logger.Warn(ctx, "content cache lookup failed", "error", err)
		return "", false
	}
	if cached == nil {
		return "", false
	}
	return cached.Content, true
}

func (s *Service) storeCache(ctx context.Context, req *Request, answer string) {
	if s.cache == nil || answer == "" {
		return
	}
	err := s.cache.Put(ctx, &entity.GeneratedContent{
		ScopeKey:  CacheScopeKey(req.CollectionIDs),
		Kind:      kindChatAnswer,
		SubTopic:  NormalizeSubTopic(req.Message),
		Content:   answer,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Warn(ctx, "failed to store generated answer in cache", "error", err)
	}
}

// GetSession 查询会话，未找到返回 ErrSessionNotFound。
func (s *Service) GetSession(ctx context.Context, id string) (*entity.ChatSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if session == nil {
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "session not found")
	}
	return session, nil
}

// ListTurns 分页查询会话轮次（时间正序）。
func (s *Service) ListTurns(ctx context.Context, sessionID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ChatTurn], error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	result, err := s.turns.ListBySession(ctx, sessionID, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list turns")
	}
	return result, nil
}
