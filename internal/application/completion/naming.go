package completion

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"model-invoke-api/internal/application/runner"
	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/service"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
)

const (
	maxNameRunes      = 75
	maxQueryRunes     = 2000
	queryEdgeRunes    = 300
	namingOutputField = "Your Output"
)

const namingPrompt = `You name chat conversations. Read the user's first message and reply with a title of at most
ten words, written in the same language as the message. Do not answer the message itself.
Respond with JSON only, in the form {"Your Output": "<title>"}.

User message:
`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ModelInvoker 模型调用端口
type ModelInvoker interface {
	InvokeModel(ctx context.Context, req InvokeRequest) (*runner.Response, error)
}

// ConversationNamer 根据首条提问生成会话标题，调用经同一条计量链路扣减配额
type ConversationNamer struct {
	invoker  ModelInvoker
	provider string
	model    string
}

// NewConversationNamer 创建会话命名器，provider/model 为命名使用的模型
func NewConversationNamer(invoker ModelInvoker, provider, model string) *ConversationNamer {
	return &ConversationNamer{invoker: invoker, provider: provider, model: model}
}

// GenerateName 生成会话标题；模型输出无法解析时退回原始提问
func (n *ConversationNamer) GenerateName(ctx context.Context, tenantID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.ErrInvalidParam.WithDetail("query is required")
	}
	if n.provider == "" || n.model == "" {
		return "", errors.ErrModelNotSupported.WithDetail("Conversation naming model is not configured.")
	}

	ctx = service.WithSourceProvider(ctx, "conversation_naming", n.provider)
	resp, err := n.invoker.InvokeModel(ctx, InvokeRequest{
		TenantID: tenantID,
		Provider: n.provider,
		Model:    n.model,
		CompletionParams: map[string]any{
			llm.ParamMaxTokens:   100,
			llm.ParamTemperature: 1,
		},
		PromptMessages: []map[string]any{{
			"role":    string(llm.RoleUser),
			"content": namingPrompt + shortenQuery(query),
		}},
	})
	if err != nil {
		return "", err
	}
	if resp.IsStream() {
		// 非流式请求不会走到这里，防止上游流泄漏
		_ = resp.Stream.Close()
		return "", errors.ErrInternalError.WithDetail("unexpected stream response")
	}

	var content string
	if resp.Result != nil && resp.Result.Message != nil {
		content = resp.Result.Message.Content
	}
	name, ok := parseName(content)
	if !ok {
		logger.Warn(ctx, "conversation name not parsable, falling back to query", "output", content)
		name = query
	}
	return truncateRunes(strings.TrimSpace(name), maxNameRunes), nil
}

// shortenQuery 过长的提问保留首尾
func shortenQuery(query string) string {
	r := []rune(query)
	if len(r) <= maxQueryRunes {
		return query
	}
	return string(r[:queryEdgeRunes]) + "..." + string(r[len(r)-queryEdgeRunes:])
}

func parseName(output string) (string, bool) {
	raw := jsonObjectPattern.FindString(output)
	if raw == "" {
		return "", false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", false
	}
	name, ok := obj[namingOutputField].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
