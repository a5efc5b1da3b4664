// Package llm 提供各供应商的模型调用驱动
package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

// 凭证键名
const (
	CredentialAPIKey  = "api_key"
	CredentialBaseURL = "base_url"
)

// endpoint 一次调用实际使用的地址与密钥，凭证中的 base_url 优先于目录配置
type endpoint struct {
	apiKey  string
	baseURL string
}

func resolveEndpoint(cfg config.ProviderConfig, creds domainllm.Credentials) endpoint {
	ep := endpoint{
		apiKey:  strings.TrimSpace(creds[CredentialAPIKey]),
		baseURL: strings.TrimSpace(cfg.BaseURL),
	}
	if u := strings.TrimSpace(creds[CredentialBaseURL]); u != "" {
		ep.baseURL = u
	}
	return ep
}

// fingerprint 凭证摘要，用作客户端缓存键，避免明文密钥驻留在 map key 中
func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func credentialsFingerprint(creds domainllm.Credentials, extra ...string) string {
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys)*2+len(extra))
	for _, k := range keys {
		parts = append(parts, k, creds[k])
	}
	return fingerprint(append(parts, extra...)...)
}

// clientCache 按凭证缓存 SDK 客户端，惰性创建
type clientCache[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newClientCache[T any]() *clientCache[T] {
	return &clientCache[T]{items: make(map[string]T)}
}

func (c *clientCache[T]) get(key string, create func() (T, error)) (T, error) {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 再次检查防止竞态
	if v, ok = c.items[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	c.items[key] = v
	return v, nil
}
