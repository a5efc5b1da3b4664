// Package llm 定义与供应商无关的模型调用协议：提示消息、工具声明、调用结果与流式分片。
package llm

import (
	"encoding/json"
	"fmt"
)

// PromptMessageRole 提示消息角色
type PromptMessageRole string

const (
	RoleSystem    PromptMessageRole = "system"
	RoleUser      PromptMessageRole = "user"
	RoleAssistant PromptMessageRole = "assistant"
	RoleTool      PromptMessageRole = "tool"
)

// ParseRole 将字符串解析为已知角色
func ParseRole(v string) (PromptMessageRole, bool) {
	switch r := PromptMessageRole(v); r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return r, true
	default:
		return "", false
	}
}

// PromptMessage 提示消息（四种变体之一）
type PromptMessage interface {
	Role() PromptMessageRole
	Text() string
}

// ToolCall 助手消息中的工具调用
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction 工具调用的函数名与参数（JSON 字符串）
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// UserPromptMessage 用户消息
type UserPromptMessage struct {
	Content string
}

// SystemPromptMessage 系统消息
type SystemPromptMessage struct {
	Content string
}

// AssistantPromptMessage 助手消息
type AssistantPromptMessage struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolPromptMessage 工具结果消息
type ToolPromptMessage struct {
	Content    string
	ToolCallID string
}

func (m *UserPromptMessage) Role() PromptMessageRole      { return RoleUser }
func (m *SystemPromptMessage) Role() PromptMessageRole    { return RoleSystem }
func (m *AssistantPromptMessage) Role() PromptMessageRole { return RoleAssistant }
func (m *ToolPromptMessage) Role() PromptMessageRole      { return RoleTool }

func (m *UserPromptMessage) Text() string      { return m.Content }
func (m *SystemPromptMessage) Text() string    { return m.Content }
func (m *AssistantPromptMessage) Text() string { return m.Content }
func (m *ToolPromptMessage) Text() string      { return m.Content }

// promptMessageJSON 所有变体共用的线上格式
type promptMessageJSON struct {
	Role       PromptMessageRole `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ToolCall        `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

func (m *UserPromptMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(promptMessageJSON{Role: RoleUser, Content: m.Content})
}

func (m *SystemPromptMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(promptMessageJSON{Role: RoleSystem, Content: m.Content})
}

func (m *AssistantPromptMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(promptMessageJSON{Role: RoleAssistant, Content: m.Content, ToolCalls: m.ToolCalls})
}

func (m *ToolPromptMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(promptMessageJSON{Role: RoleTool, Content: m.Content, ToolCallID: m.ToolCallID})
}

// UnmarshalJSON 用于事件回放等场景还原助手消息
func (m *AssistantPromptMessage) UnmarshalJSON(data []byte) error {
	var raw promptMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role != "" && raw.Role != RoleAssistant {
		return fmt.Errorf("unexpected role %q for assistant message", raw.Role)
	}
	m.Content = raw.Content
	m.ToolCalls = raw.ToolCalls
	return nil
}

// PromptMessageTool 工具声明，Parameters 为原样透传的 JSON Schema
type PromptMessageTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ParametersMap 将参数 schema 解码为 map，供需要结构化 schema 的驱动使用
func (t PromptMessageTool) ParametersMap() (map[string]any, error) {
	if len(t.Parameters) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(t.Parameters, &m); err != nil {
		return nil, fmt.Errorf("tool %s: invalid parameters schema: %w", t.Name, err)
	}
	return m, nil
}
