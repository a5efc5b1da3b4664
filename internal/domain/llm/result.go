package llm

// LLMUsage 一次调用的用量与价格
type LLMUsage struct {
	PromptTokens        int64   `json:"prompt_tokens"`
	PromptUnitPrice     float64 `json:"prompt_unit_price"`
	PromptPriceUnit     float64 `json:"prompt_price_unit"`
	PromptPrice         float64 `json:"prompt_price"`
	CompletionTokens    int64   `json:"completion_tokens"`
	CompletionUnitPrice float64 `json:"completion_unit_price"`
	CompletionPriceUnit float64 `json:"completion_price_unit"`
	CompletionPrice     float64 `json:"completion_price"`
	TotalTokens         int64   `json:"total_tokens"`
	TotalPrice          float64 `json:"total_price"`
	Currency            string  `json:"currency"`
	Latency             float64 `json:"latency"`
}

// EmptyUsage 返回零值用量
func EmptyUsage() *LLMUsage {
	return &LLMUsage{Currency: "USD"}
}

// Merge 合并一个增量：token 数累加，价格元数据以增量为准
func (u *LLMUsage) Merge(delta *LLMUsage) {
	if delta == nil {
		return
	}
	u.PromptTokens += delta.PromptTokens
	u.CompletionTokens += delta.CompletionTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens

	u.PromptUnitPrice = delta.PromptUnitPrice
	u.PromptPriceUnit = delta.PromptPriceUnit
	u.PromptPrice = delta.PromptPrice
	u.CompletionUnitPrice = delta.CompletionUnitPrice
	u.CompletionPriceUnit = delta.CompletionPriceUnit
	u.CompletionPrice = delta.CompletionPrice
	u.TotalPrice = delta.PromptPrice + delta.CompletionPrice
	u.Currency = delta.Currency
	if delta.Latency > u.Latency {
		u.Latency = delta.Latency
	}
}

// Clone 返回副本
func (u *LLMUsage) Clone() *LLMUsage {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// LLMResult 阻塞调用结果
type LLMResult struct {
	Model             string                  `json:"model"`
	PromptMessages    []PromptMessage         `json:"prompt_messages"`
	Message           *AssistantPromptMessage `json:"message"`
	Usage             *LLMUsage               `json:"usage"`
	SystemFingerprint string                  `json:"system_fingerprint,omitempty"`
}

// LLMResultChunkDelta 流式分片增量
type LLMResultChunkDelta struct {
	Index        int                     `json:"index"`
	Message      *AssistantPromptMessage `json:"message"`
	Usage        *LLMUsage               `json:"usage,omitempty"`
	FinishReason string                  `json:"finish_reason,omitempty"`
}

// LLMResultChunk 流式结果中的一个分片
type LLMResultChunk struct {
	Model             string              `json:"model"`
	PromptMessages    []PromptMessage     `json:"prompt_messages"`
	SystemFingerprint string              `json:"system_fingerprint,omitempty"`
	Delta             LLMResultChunkDelta `json:"delta"`
}
