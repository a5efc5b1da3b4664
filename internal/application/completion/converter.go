// Package completion 编排一次模型调用：校验转换、解析供应商、状态门禁、调用与归约
package completion

import (
	"encoding/json"
	"fmt"

	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/pkg/errors"
)

func validationError(format string, args ...any) *errors.AppError {
	return errors.Newf(errors.CodeInvalidParam, format, args...)
}

// ConvertMessages 将按角色标记的通用记录转换为提示消息，保持原有顺序。
// 角色缺失或未知时失败，不会返回部分结果。
func ConvertMessages(records []map[string]any) ([]llm.PromptMessage, error) {
	out := make([]llm.PromptMessage, 0, len(records))
	for i, record := range records {
		msg, err := convertMessage(record)
		if err != nil {
			return nil, err.WithDetail(fmt.Sprintf("prompt_messages[%d]: %s", i, err.Message))
		}
		out = append(out, msg)
	}
	return out, nil
}

func convertMessage(record map[string]any) (llm.PromptMessage, *errors.AppError) {
	rawRole, ok := record["role"]
	if !ok || rawRole == nil {
		return nil, validationError("role is required")
	}
	roleStr, ok := rawRole.(string)
	if !ok || roleStr == "" {
		return nil, validationError("role is required")
	}
	role, ok := llm.ParseRole(roleStr)
	if !ok {
		return nil, validationError("unknown role: %s", roleStr)
	}

	content, err := requiredContent(record)
	if err != nil {
		return nil, err
	}

	switch role {
	case llm.RoleUser:
		return &llm.UserPromptMessage{Content: content}, nil
	case llm.RoleSystem:
		return &llm.SystemPromptMessage{Content: content}, nil
	case llm.RoleAssistant:
		toolCalls, err := optionalToolCalls(record)
		if err != nil {
			return nil, err
		}
		return &llm.AssistantPromptMessage{Content: content, ToolCalls: toolCalls}, nil
	default:
		id, ok := record["tool_call_id"].(string)
		if !ok || id == "" {
			return nil, validationError("tool_call_id is required")
		}
		return &llm.ToolPromptMessage{Content: content, ToolCallID: id}, nil
	}
}

// requiredContent content 字段必须存在；null 视为空串
func requiredContent(record map[string]any) (string, *errors.AppError) {
	v, ok := record["content"]
	if !ok {
		return "", validationError("content is required")
	}
	switch c := v.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	default:
		return "", validationError("content must be a string")
	}
}

func optionalToolCalls(record map[string]any) ([]llm.ToolCall, *errors.AppError) {
	v, ok := record["tool_calls"]
	if !ok || v == nil {
		return []llm.ToolCall{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, validationError("invalid tool_calls: %v", err)
	}
	var calls []llm.ToolCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, validationError("invalid tool_calls: %v", err)
	}
	for i := range calls {
		if calls[i].Function.Name == "" {
			return nil, validationError("tool_calls[%d].function.name is required", i)
		}
		if calls[i].Type == "" {
			calls[i].Type = "function"
		}
	}
	return calls, nil
}

// ConvertTools 转换工具声明，name / description / parameters 均为必填
func ConvertTools(records []map[string]any) ([]llm.PromptMessageTool, error) {
	out := make([]llm.PromptMessageTool, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, record := range records {
		name, ok := record["name"].(string)
		if !ok || name == "" {
			return nil, validationError("tools[%d]: name is required", i)
		}
		description, ok := record["description"].(string)
		if !ok {
			return nil, validationError("tools[%d]: description is required", i)
		}
		params, ok := record["parameters"]
		if !ok || params == nil {
			return nil, validationError("tools[%d]: parameters is required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, validationError("tools[%d]: duplicate tool name %s", i, name)
		}
		seen[name] = struct{}{}

		raw, err := json.Marshal(params)
		if err != nil {
			return nil, validationError("tools[%d]: invalid parameters: %v", i, err)
		}
		out = append(out, llm.PromptMessageTool{
			Name:        name,
			Description: description,
			Parameters:  raw,
		})
	}
	return out, nil
}
