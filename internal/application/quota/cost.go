// Package quota 负责系统凭证的配额计量、扣减与查询
package quota

import (
	"strings"

	"model-invoke-api/internal/domain/provider"
)

const (
	creditsPerCall = 1
	// gpt-4 系列按次计费的固定倍率，按模型名子串匹配
	creditsPerGPT4Call = 20
	gpt4ModelMarker    = "gpt-4"
)

// UsedQuota 按配额单位计算一次调用消耗的额度
func UsedQuota(unit provider.QuotaUnit, model string, promptTokens, completionTokens int64) int64 {
	switch unit {
	case provider.QuotaUnitTokens:
		return promptTokens + completionTokens
	case provider.QuotaUnitCredits:
		// TODO: 倍率改为目录配置项后移除子串匹配（gpt-4o-mini 等也会命中）
		if strings.Contains(model, gpt4ModelMarker) {
			return creditsPerGPT4Call
		}
		return creditsPerCall
	default:
		return 1
	}
}
