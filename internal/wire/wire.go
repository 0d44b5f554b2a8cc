// Package wire 提供依赖装配。依赖图不大，手工构造即可。
package wire

import (
	"context"
	"fmt"

	"regdoc-ai-api/internal/application/chat"
	"regdoc-ai-api/internal/application/retrieval"
	"regdoc-ai-api/internal/config"
	"regdoc-ai-api/internal/domain/repository"
	infraembedding "regdoc-ai-api/internal/infrastructure/embedding"
	"regdoc-ai-api/internal/infrastructure/llm"
	"regdoc-ai-api/internal/infrastructure/persistence/milvus"
	"regdoc-ai-api/internal/infrastructure/persistence/postgres"
	"regdoc-ai-api/internal/infrastructure/persistence/redis"
	"regdoc-ai-api/internal/interfaces/http/handler"
	"regdoc-ai-api/internal/interfaces/http/router"
	"regdoc-ai-api/pkg/logger"
)

// dataLayer 数据层依赖集合。Redis 与 Milvus 是可降级依赖：
// 连接失败只告警，对应能力整体关闭。
type dataLayer struct {
	pg     *postgres.Client
	redis  *redis.Client
	milvus *milvus.Client

	docRepo      repository.DocumentRepository
	rawDocRepo   *postgres.DocumentRepository
	sessionRepo  *postgres.ChatSessionRepository
	turnRepo     *postgres.ChatTurnRepository
	contentCache *postgres.ContentCacheRepository

	cache      *redis.Cache
	vectorRepo retrieval.VectorRepository
}

func (d *dataLayer) close() {
	if d.milvus != nil {
		_ = d.milvus.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pg != nil {
		_ = d.pg.Close()
	}
}

func buildDataLayer(ctx context.Context, cfg *config.Config) (*dataLayer, error) {
	pg, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}
	if err := pg.Migrate(); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	d := &dataLayer{
		pg:           pg,
		rawDocRepo:   postgres.NewDocumentRepository(pg),
		sessionRepo:  postgres.NewChatSessionRepository(pg),
		turnRepo:     postgres.NewChatTurnRepository(pg),
		contentCache: postgres.NewContentCacheRepository(pg),
	}
	d.docRepo = d.rawDocRepo

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis unavailable, snapshot and meta caches disabled", "error", err)
	} else {
		d.redis = redisClient
		d.cache = redis.NewCache(redisClient)
		d.docRepo = redis.NewCachedDocumentRepository(d.rawDocRepo, d.cache)
	}

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus unavailable, vector retrieval disabled", "error", err)
	} else {
		d.milvus = milvusClient
		d.vectorRepo = milvus.NewRepository(milvusClient)
	}

	return d, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (*infraembedding.Client, error) {
	einoEmbedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}
	return infraembedding.NewClient(&cfg.Embedding, einoEmbedder), nil
}

func buildAssembler(cfg *config.Config, embedder *infraembedding.Client, d *dataLayer) *retrieval.Assembler {
	return retrieval.NewAssembler(embedder, d.vectorRepo, d.docRepo, retrieval.AssemblerConfig{
		TokenBudget:     cfg.Retrieval.TokenBudget,
		VectorLimit:     cfg.Retrieval.VectorLimit,
		LexicalLimit:    cfg.Retrieval.LexicalLimit,
		MaxSearchTerms:  cfg.Retrieval.MaxSearchTerms,
		MinWordLength:   cfg.Retrieval.MinWordLength,
		ExcerptMaxChars: cfg.Retrieval.ExcerptMaxChars,
	})
}

func buildIndexer(cfg *config.Config, embedder *infraembedding.Client, d *dataLayer) *retrieval.Indexer {
	return retrieval.NewIndexer(embedder, d.vectorRepo, d.rawDocRepo, retrieval.IndexerConfig{
		ChunkSize:      cfg.Retrieval.ChunkSize,
		ChunkOverlap:   cfg.Retrieval.ChunkOverlap,
		MinChunkLength: cfg.Retrieval.MinChunkLength,
		FlushBatchSize: cfg.Retrieval.FlushBatchSize,
	})
}

// InitializeApp 装配 API 网关：数据层、检索、问答编排与路由。
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	d, err := buildDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		d.close()
		return nil, nil, err
	}

	assembler := buildAssembler(cfg, embedder, d)
	indexer := buildIndexer(cfg, embedder, d)

	var turnCache chat.TurnCache
	if d.cache != nil {
		turnCache = redis.NewTurnCache(d.cache, cfg.Chat.SnapshotTTL)
	}

	chatSvc := chat.NewService(
		assembler,
		llm.NewProvider(llm.NewEinoFactory(cfg)),
		d.sessionRepo,
		d.turnRepo,
		d.contentCache,
		turnCache,
		chat.Config{
			MaxMessageRunes: cfg.Chat.MaxMessageRunes,
			HistoryTurns:    cfg.Chat.HistoryTurns,
			CacheMaxAge:     cfg.Chat.CacheMaxAge,
		},
	)

	r := router.New(cfg, router.Handlers{
		Health:    handler.NewHealthHandler(d.pg, d.redis, d.milvus),
		Chat:      handler.NewChatHandler(chatSvc),
		Session:   handler.NewSessionHandler(chatSvc),
		Retrieval: handler.NewRetrievalHandler(assembler, indexer),
	})

	return r, d.close, nil
}

// InitializeIndexer 装配离线摄取所需的最小依赖。
func InitializeIndexer(ctx context.Context, cfg *config.Config) (*retrieval.Indexer, func(), error) {
	d, err := buildDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		d.close()
		return nil, nil, err
	}

	return buildIndexer(cfg, embedder, d), d.close, nil
}
