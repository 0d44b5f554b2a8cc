// Package main 文档摄取任务入口。
// 按文档 ID 重建向量索引，不传 -documents 时全量重建。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"regdoc-ai-api/internal/application/retrieval"
	"regdoc-ai-api/internal/config"
	"regdoc-ai-api/internal/wire"
	"regdoc-ai-api/pkg/logger"
	"regdoc-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	documents := flag.String("documents", "", "逗号分隔的文档 ID 列表，为空时重建全部文档")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)

	// os.Exit 会跳过 defer，失败时只记录退出码，最先注册保证
	// tracer 与数据层的清理先走完。
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name + "-ingest",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	indexer, cleanup, err := wire.InitializeIndexer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize indexer", err)
	}
	defer cleanup()

	if err := run(ctx, indexer, *documents); err != nil {
		if errors.Is(err, retrieval.ErrVectorDisabled) {
			log.Error("vector indexing is disabled, configure embedding.api_key and milvus before ingesting", "error", err)
		} else {
			log.Error("ingest failed", "error", err)
		}
		exitCode = 1
		return
	}

	log.Info("ingest finished")
}

func run(ctx context.Context, indexer *retrieval.Indexer, documents string) error {
	ids := splitIDs(documents)
	if len(ids) == 0 {
		return indexer.IndexAll(ctx)
	}

	var failed int
	for _, id := range ids {
		if err := indexer.IndexDocument(ctx, id); err != nil {
			if errors.Is(err, retrieval.ErrVectorDisabled) {
				return err
			}
			logger.Error(ctx, "failed to index document", err, "document_id", id)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("ingest finished with %d of %d documents failed", failed, len(ids))
	}
	return nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
