// Package llm 提供生成模型客户端
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"regdoc-ai-api/internal/config"
)

// EinoFactory 管理多个 Eino ChatModel 客户端实例，按 provider 名惰性创建。
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定名称的 ChatModel，未指定时返回默认客户端
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}
	if providerCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no api key configured", name)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   &providerCfg.MaxTokens,
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

func ptrFloat32(f float32) *float32 {
	return &f
}

// Provider 把工厂的默认模型适配成会话编排所需的端口。
type Provider struct {
	factory *EinoFactory
}

func NewProvider(factory *EinoFactory) *Provider {
	return &Provider{factory: factory}
}

// Enabled 报告默认 provider 是否配置了凭证。
func (p *Provider) Enabled() bool {
	if p == nil || p.factory == nil {
		return false
	}
	cfg, ok := p.factory.config.Providers[p.factory.config.DefaultProvider]
	return ok && cfg.APIKey != ""
}

func (p *Provider) Provider() string {
	if p == nil || p.factory == nil {
		return ""
	}
	return p.factory.config.DefaultProvider
}

func (p *Provider) ModelName() string {
	if p == nil || p.factory == nil {
		return ""
	}
	return p.factory.config.Providers[p.factory.config.DefaultProvider].Model
}

func (p *Provider) Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	m, err := p.factory.Default(ctx)
	if err != nil {
		return nil, err
	}
	return m.Stream(ctx, messages)
}
