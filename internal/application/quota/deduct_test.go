package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-invoke-api/internal/domain/provider"
)

func TestDeductor_AppliesWithinLimit(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 100, 95)
	d := NewDeductor(store)

	result, err := d.Deduct(context.Background(), systemConfiguration(provider.QuotaUnitTokens, 100, 95), "gpt-4o-mini", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, DeductApplied, result)
	assert.Equal(t, int64(100), store.used("tenant-1", "openai", "trial"))
}

func TestDeductor_NeverExceedsLimit(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 100, 95)
	d := NewDeductor(store)

	result, err := d.Deduct(context.Background(), systemConfiguration(provider.QuotaUnitTokens, 100, 95), "gpt-4o-mini", 6, 4)
	require.NoError(t, err)
	assert.Equal(t, DeductOverLimit, result)
	assert.Equal(t, int64(95), store.used("tenant-1", "openai", "trial"))
}

func TestDeductor_SkipsCustomProvider(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 100, 0)
	cfg := systemConfiguration(provider.QuotaUnitTokens, 100, 0)
	cfg.UsingProviderType = provider.ProviderTypeCustom

	for _, tokens := range []int64{0, 1, 10_000} {
		result, err := NewDeductor(store).Deduct(context.Background(), cfg, "gpt-4", tokens, tokens)
		require.NoError(t, err)
		assert.Equal(t, DeductSkippedCustom, result)
	}
	assert.Zero(t, store.calls)
	assert.Zero(t, store.used("tenant-1", "openai", "trial"))
}

func TestDeductor_SkipsUnlimited(t *testing.T) {
	store := newMemQuotaStore()
	cfg := systemConfiguration(provider.QuotaUnitTokens, provider.UnlimitedQuota, 0)

	result, err := NewDeductor(store).Deduct(context.Background(), cfg, "gpt-4", 10, 10)
	require.NoError(t, err)
	assert.Equal(t, DeductSkippedUnlimited, result)
	assert.Zero(t, store.calls)
}

func TestDeductor_SkipsWithoutCurrentQuota(t *testing.T) {
	store := newMemQuotaStore()
	cfg := systemConfiguration(provider.QuotaUnitTokens, 100, 0)
	cfg.System.CurrentQuotaType = "paid"

	result, err := NewDeductor(store).Deduct(context.Background(), cfg, "gpt-4", 10, 10)
	require.NoError(t, err)
	assert.Equal(t, DeductSkippedNoQuota, result)
	assert.Zero(t, store.calls)
}

func TestDeductor_CreditsForGPT4(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 200, 0)
	cfg := systemConfiguration(provider.QuotaUnitCredits, 200, 0)
	d := NewDeductor(store)

	_, err := d.Deduct(context.Background(), cfg, "gpt-4-turbo", 1, 1)
	require.NoError(t, err)
	_, err = d.Deduct(context.Background(), cfg, "gpt-3.5-turbo", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(21), store.used("tenant-1", "openai", "trial"))
}

func TestDeductor_ConcurrentDeductionsStayWithinLimit(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 100, 0)
	cfg := systemConfiguration(provider.QuotaUnitTokens, 100, 0)
	d := NewDeductor(store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Deduct(context.Background(), cfg, "gpt-4o-mini", 4, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	used := store.used("tenant-1", "openai", "trial")
	assert.LessOrEqual(t, used, int64(100))
	assert.Equal(t, int64(98), used)
}
