package config

import "time"

// ProviderConfig 模型供应商目录项
type ProviderConfig struct {
	// Driver 调用实现：openai / openai_api_compatible / anthropic / gemini
	Driver  string        `yaml:"driver" mapstructure:"driver"`
	Label   string        `yaml:"label" mapstructure:"label"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Models 该供应商可用的 LLM 模型
	Models []string `yaml:"models" mapstructure:"models"`

	System SystemProviderConfig `yaml:"system" mapstructure:"system"`
}

// SystemProviderConfig 平台托管凭证与配额定义
type SystemProviderConfig struct {
	Enabled             bool                  `yaml:"enabled" mapstructure:"enabled"`
	Credentials         map[string]string     `yaml:"credentials" mapstructure:"credentials"`
	QuotaConfigurations []QuotaConfigTemplate `yaml:"quota_configurations" mapstructure:"quota_configurations"`
}

// QuotaConfigTemplate 配额类型模板，租户配额行按 quota_type 对应
type QuotaConfigTemplate struct {
	QuotaType  string `yaml:"quota_type" mapstructure:"quota_type"`
	QuotaUnit  string `yaml:"quota_unit" mapstructure:"quota_unit"`
	QuotaLimit int64  `yaml:"quota_limit" mapstructure:"quota_limit"`
	// RestrictModels 允许使用的模型（glob），为空表示不限制
	RestrictModels []string `yaml:"restrict_models" mapstructure:"restrict_models"`
}

// HasModel 判断目录中是否声明了该模型
func (p ProviderConfig) HasModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// QuotaTemplate 按 quota_type 查找配额模板
func (p ProviderConfig) QuotaTemplate(quotaType string) (QuotaConfigTemplate, bool) {
	for _, tpl := range p.System.QuotaConfigurations {
		if tpl.QuotaType == quotaType {
			return tpl, true
		}
	}
	return QuotaConfigTemplate{}, false
}
