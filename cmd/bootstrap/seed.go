package main

import (
	"context"
	"fmt"
	"sort"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/provider"
)

type quotaUpserter interface {
	Upsert(ctx context.Context, p *entity.Provider) error
}

// seedSystemQuotas 为租户写入目录中启用的系统配额行，已存在的行只更新额度与模型限制
func seedSystemQuotas(ctx context.Context, repo quotaUpserter, catalog map[string]config.ProviderConfig, tenantID string) (int, error) {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	var n int
	for _, name := range names {
		pc := catalog[name]
		if !pc.System.Enabled {
			continue
		}
		for _, tpl := range pc.System.QuotaConfigurations {
			row := &entity.Provider{
				TenantID:       tenantID,
				ProviderName:   name,
				ProviderType:   string(provider.ProviderTypeSystem),
				QuotaType:      tpl.QuotaType,
				QuotaLimit:     tpl.QuotaLimit,
				RestrictModels: tpl.RestrictModels,
				IsValid:        true,
			}
			if err := repo.Upsert(ctx, row); err != nil {
				return n, fmt.Errorf("upsert %s/%s: %w", name, tpl.QuotaType, err)
			}
			n++
		}
	}
	return n, nil
}
