package quota

import (
	"context"
	"sync"

	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/pkg/errors"
)

type quotaKey struct {
	tenantID  string
	provider  string
	quotaType string
}

type quotaRow struct {
	limit int64
	used  int64
}

// memQuotaStore 与 postgres 实现相同的条件更新语义
type memQuotaStore struct {
	mu    sync.Mutex
	rows  map[quotaKey]*quotaRow
	calls int
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{rows: make(map[quotaKey]*quotaRow)}
}

func (s *memQuotaStore) put(tenantID, providerName, quotaType string, limit, used int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[quotaKey{tenantID, providerName, quotaType}] = &quotaRow{limit: limit, used: used}
}

func (s *memQuotaStore) used(tenantID, providerName, quotaType string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[quotaKey{tenantID, providerName, quotaType}].used
}

func (s *memQuotaStore) DeductQuota(ctx context.Context, d repository.QuotaDeduction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	row, ok := s.rows[quotaKey{d.TenantID, d.ProviderName, d.QuotaType}]
	if !ok {
		return false, nil
	}
	if !(row.limit > row.used && row.limit >= row.used+d.Amount) {
		return false, nil
	}
	row.used += d.Amount
	return true, nil
}

type stubResolver struct {
	cfg   *provider.ProviderConfiguration
	err   error
	calls int
}

func (r *stubResolver) ResolveBundle(ctx context.Context, tenantID, providerName string, modelType llm.ModelType) (*provider.ModelBundle, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if r.cfg == nil {
		return nil, errors.ErrProviderNotFound
	}
	return &provider.ModelBundle{Configuration: r.cfg}, nil
}

func systemConfiguration(unit provider.QuotaUnit, limit, used int64) *provider.ProviderConfiguration {
	return &provider.ProviderConfiguration{
		TenantID:          "tenant-1",
		Provider:          "openai",
		Models:            []string{"gpt-4", "gpt-4o-mini"},
		UsingProviderType: provider.ProviderTypeSystem,
		System: provider.SystemConfiguration{
			Enabled:          true,
			CurrentQuotaType: "trial",
			QuotaConfigurations: []provider.QuotaConfiguration{
				{QuotaType: "trial", QuotaUnit: unit, QuotaLimit: limit, QuotaUsed: used, IsValid: true},
			},
			Credentials: llm.Credentials{"api_key": "sk-system"},
		},
	}
}
