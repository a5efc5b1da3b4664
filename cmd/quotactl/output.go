package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/repository"
)

type tenantRow struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Slug   string `json:"slug" yaml:"slug"`
	Status string `json:"status" yaml:"status"`
}

type quotaRow struct {
	Provider       string     `json:"provider" yaml:"provider"`
	ProviderType   string     `json:"provider_type" yaml:"provider_type"`
	QuotaType      string     `json:"quota_type,omitempty" yaml:"quota_type,omitempty"`
	QuotaUnit      string     `json:"quota_unit,omitempty" yaml:"quota_unit,omitempty"`
	Limit          int64      `json:"quota_limit" yaml:"quota_limit"`
	Used           int64      `json:"quota_used" yaml:"quota_used"`
	Remaining      int64      `json:"remaining" yaml:"remaining"`
	RestrictModels []string   `json:"restrict_models,omitempty" yaml:"restrict_models,omitempty"`
	Valid          bool       `json:"is_valid" yaml:"is_valid"`
	LastUsed       *time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
}

type usageRow struct {
	Provider         string `json:"provider" yaml:"provider"`
	Model            string `json:"model" yaml:"model"`
	Calls            int64  `json:"calls" yaml:"calls"`
	PromptTokens     int64  `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens" yaml:"total_tokens"`
}

type rateLimitRow struct {
	Tenant    string `json:"tenant" yaml:"tenant"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Limit     int    `json:"limit" yaml:"limit"`
	Remaining int    `json:"remaining" yaml:"remaining"`
}

func tenantRows(tenants []*entity.Tenant) []tenantRow {
	rows := make([]tenantRow, 0, len(tenants))
	for _, t := range tenants {
		rows = append(rows, tenantRow{ID: t.ID, Name: t.Name, Slug: t.Slug, Status: string(t.Status)})
	}
	return rows
}

// quotaRows 转换为输出行，配额单位取自目录模板
func quotaRows(providers []*entity.Provider, catalog map[string]config.ProviderConfig) []quotaRow {
	rows := make([]quotaRow, 0, len(providers))
	for _, p := range providers {
		row := quotaRow{
			Provider:       p.ProviderName,
			ProviderType:   p.ProviderType,
			QuotaType:      p.QuotaType,
			Limit:          p.QuotaLimit,
			Used:           p.QuotaUsed,
			Remaining:      p.Remaining(),
			RestrictModels: p.RestrictModels,
			Valid:          p.IsValid,
			LastUsed:       p.LastUsed,
		}
		if tpl, ok := catalog[p.ProviderName].QuotaTemplate(p.QuotaType); ok {
			row.QuotaUnit = tpl.QuotaUnit
		}
		rows = append(rows, row)
	}
	return rows
}

func usageRows(summary []repository.UsageSummary) []usageRow {
	rows := make([]usageRow, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, usageRow{
			Provider:         s.Provider,
			Model:            s.Model,
			Calls:            s.Calls,
			PromptTokens:     s.PromptTokens,
			CompletionTokens: s.CompletionTokens,
			TotalTokens:      s.PromptTokens + s.CompletionTokens,
		})
	}
	return rows
}

func render(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		return renderTable(w, v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch rows := v.(type) {
	case []tenantRow:
		fmt.Fprintln(tw, "ID\tNAME\tSLUG\tSTATUS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Slug, r.Status)
		}
	case []quotaRow:
		fmt.Fprintln(tw, "PROVIDER\tTYPE\tQUOTA\tUNIT\tLIMIT\tUSED\tREMAINING\tMODELS\tVALID")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%t\n",
				r.Provider, r.ProviderType, dash(r.QuotaType), dash(r.QuotaUnit),
				amount(r.Limit), r.Used, amount(r.Remaining), dash(strings.Join(r.RestrictModels, ",")), r.Valid)
		}
	case []usageRow:
		fmt.Fprintln(tw, "PROVIDER\tMODEL\tCALLS\tPROMPT\tCOMPLETION\tTOTAL")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
				r.Provider, r.Model, r.Calls, r.PromptTokens, r.CompletionTokens, r.TotalTokens)
		}
	case []rateLimitRow:
		fmt.Fprintln(tw, "TENANT\tENDPOINT\tLIMIT\tREMAINING")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.Tenant, r.Endpoint, r.Limit, r.Remaining)
		}
	default:
		return fmt.Errorf("unsupported table rows %T", v)
	}
	return tw.Flush()
}

// amount 不限量显示为 unlimited
func amount(n int64) string {
	if n < 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
