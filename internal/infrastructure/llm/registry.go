package llm

import (
	"fmt"
	"slices"
	"sync"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

// 内置驱动名
const (
	DriverOpenAI           = "openai"
	DriverOpenAICompatible = "openai_api_compatible"
	DriverAnthropic        = "anthropic"
	DriverGemini           = "gemini"
)

// Factory 按供应商目录配置创建驱动
type Factory func(provider string, cfg config.ProviderConfig) (domainllm.LargeLanguageModel, error)

// Registry 驱动注册表，同一供应商的驱动实例只创建一次
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	models    map[string]domainllm.LargeLanguageModel
}

// NewRegistry 创建注册表并注册内置驱动
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		models:    make(map[string]domainllm.LargeLanguageModel),
	}
	r.Register(DriverOpenAI, NewEinoChatModel)
	r.Register(DriverOpenAICompatible, NewOpenAICompatModel)
	r.Register(DriverAnthropic, NewAnthropicModel)
	r.Register(DriverGemini, NewGeminiModel)
	return r
}

// Register 注册驱动，重复注册时覆盖
func (r *Registry) Register(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Available 已注册的驱动名
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableLocked()
}

// Build 返回供应商对应的（已包装指标的）驱动实例
func (r *Registry) Build(provider string, cfg config.ProviderConfig) (domainllm.LargeLanguageModel, error) {
	r.mu.RLock()
	m, ok := r.models[provider]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok = r.models[provider]; ok {
		return m, nil
	}
	factory, ok := r.factories[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q for provider %s (available: %v)", cfg.Driver, provider, r.availableLocked())
	}
	m, err := factory(provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build driver %s for provider %s: %w", cfg.Driver, provider, err)
	}
	m = Instrument(provider, m)
	r.models[provider] = m
	return m, nil
}

func (r *Registry) availableLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
