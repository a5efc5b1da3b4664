package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/internal/infrastructure/persistence/redis"
	"model-invoke-api/internal/wire"
)

var (
	outputFormat string
	tenantFlag   string
	providerFlag string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "quotactl",
		Short: "Inspect and manage tenant provider quotas",
		Long: `quotactl operates on the system quota rows that gate platform-hosted
	model credentials, and reports usage recorded in the llm usage ledger.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(grantCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(ratelimitCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withDataLayer 加载配置并初始化 PostgreSQL 数据层
func withDataLayer(fn func(ctx context.Context, cfg *config.Config, dl *wire.DataLayer) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	dl, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize data layer: %w", err)
	}
	defer cleanup()

	return fn(ctx, cfg, dl)
}

func withRedis(cfg *config.Config, fn func(client *redis.Client) error) error {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer client.Close()
	return fn(client)
}

func listCmd() *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants, or quota rows of a tenant when --tenant is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDataLayer(func(ctx context.Context, cfg *config.Config, dl *wire.DataLayer) error {
				if tenantFlag == "" {
					result, err := dl.TenantRepo.List(ctx, repository.NewPagination(page, pageSize))
					if err != nil {
						return err
					}
					return render(cmd.OutOrStdout(), outputFormat, tenantRows(result.Items))
				}

				var rows []*entity.Provider
				var err error
				if providerFlag != "" {
					rows, err = dl.ProviderRepo.ListByTenantProvider(ctx, tenantFlag, providerFlag)
				} else {
					rows, err = dl.ProviderRepo.ListByTenant(ctx, tenantFlag)
				}
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, quotaRows(rows, cfg.Providers))
			})
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "provider name")
	cmd.Flags().IntVar(&page, "page", 1, "page number when listing tenants")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size when listing tenants")

	return cmd
}

func grantCmd() *cobra.Command {
	var quotaType string
	var limit int64
	var restrictModels []string

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Create or update a system quota row",
		Long: `Writes the system quota row identified by tenant, provider and quota type.
	An existing row keeps its used amount; only the limit and model restriction change.
	Use --limit -1 for an unlimited quota.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantFlag == "" || providerFlag == "" || quotaType == "" {
				return fmt.Errorf("--tenant, --provider and --quota-type are required")
			}
			return withDataLayer(func(ctx context.Context, cfg *config.Config, dl *wire.DataLayer) error {
				pc, ok := cfg.Providers[providerFlag]
				if !ok {
					return fmt.Errorf("provider %q not in catalog", providerFlag)
				}
				if _, ok := pc.QuotaTemplate(quotaType); !ok {
					return fmt.Errorf("quota type %q not configured for provider %q", quotaType, providerFlag)
				}

				tenant, err := dl.TenantRepo.GetByID(ctx, tenantFlag)
				if err != nil {
					return err
				}
				if tenant == nil {
					return fmt.Errorf("tenant %q not found", tenantFlag)
				}

				row := &entity.Provider{
					TenantID:       tenant.ID,
					ProviderName:   providerFlag,
					ProviderType:   string(provider.ProviderTypeSystem),
					QuotaType:      quotaType,
					QuotaLimit:     limit,
					RestrictModels: restrictModels,
					IsValid:        true,
				}
				if err := dl.ProviderRepo.Upsert(ctx, row); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Granted %s/%s to tenant %s\n", providerFlag, quotaType, tenant.ID)

				rows, err := dl.ProviderRepo.ListByTenantProvider(ctx, tenant.ID, providerFlag)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, quotaRows(rows, cfg.Providers))
			})
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "provider name")
	cmd.Flags().StringVar(&quotaType, "quota-type", "", "quota type (e.g. trial, paid, free)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "quota limit, -1 for unlimited")
	cmd.Flags().StringSliceVar(&restrictModels, "restrict-models", nil, "allowed model globs, empty keeps catalog defaults")

	return cmd
}

func resetCmd() *cobra.Command {
	var quotaType string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the used amount of a system quota row to zero",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantFlag == "" || providerFlag == "" || quotaType == "" {
				return fmt.Errorf("--tenant, --provider and --quota-type are required")
			}
			return withDataLayer(func(ctx context.Context, cfg *config.Config, dl *wire.DataLayer) error {
				if err := dl.ProviderRepo.ResetQuota(ctx, tenantFlag, providerFlag, quotaType); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Reset %s/%s for tenant %s\n", providerFlag, quotaType, tenantFlag)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "provider name")
	cmd.Flags().StringVar(&quotaType, "quota-type", "", "quota type")

	return cmd
}

func usageCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize ledger usage of a tenant per provider and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantFlag == "" {
				return fmt.Errorf("--tenant is required")
			}
			return withDataLayer(func(ctx context.Context, cfg *config.Config, dl *wire.DataLayer) error {
				end := time.Now()
				start := end.Add(-since)
				summary, err := dl.LLMUsageRepo.Summarize(ctx, tenantFlag, start, end)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, usageRows(summary))
			})
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "look-back window")

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Change tenant status",
	}
	cmd.AddCommand(tenantStatusCmd("suspend", entity.TenantStatusSuspended))
	cmd.AddCommand(tenantStatusCmd("activate", entity.TenantStatusActive))
	return cmd
}

func tenantStatusCmd(use string, status entity.TenantStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [tenant-id]",
		Short: fmt.Sprintf("Set tenant status to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := args[0]
			return withDataLayer(func(ctx context.Context, cfg *config.Config, dl *wire.DataLayer) error {
				if err := dl.TenantRepo.UpdateStatus(ctx, tenantID, status); err != nil {
					return err
				}
				// 网关侧缓存了租户信息，状态变更需立即失效
				err := withRedis(cfg, func(client *redis.Client) error {
					return redis.NewCache(client).InvalidateTenant(ctx, tenantID)
				})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: tenant cache not invalidated: %v\n", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Tenant %s is now %s\n", tenantID, status)
				return nil
			})
		},
	}
}

func ratelimitCmd() *cobra.Command {
	var endpoint string
	var reset bool

	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Show or reset the per-tenant invoke rate limit window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantFlag == "" {
				return fmt.Errorf("--tenant is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx := context.Background()
			return withRedis(cfg, func(client *redis.Client) error {
				limiter := redis.NewRateLimiter(client)
				key := redis.BuildRateLimitKey(tenantFlag, endpoint)
				if reset {
					if err := limiter.Reset(ctx, key); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Rate limit window reset for %s\n", key)
				}
				limit := cfg.Security.RateLimit.PerTenantPerMinute
				remaining, err := limiter.Remaining(ctx, key, limit, time.Minute)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, []rateLimitRow{{
					Tenant: tenantFlag, Endpoint: endpoint, Limit: limit, Remaining: remaining,
				}})
			})
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&endpoint, "endpoint", "/inner/api/model/invoke/llm", "route path")
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the current window before reporting")

	return cmd
}
