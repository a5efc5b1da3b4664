package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	dataLayer, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 同步表结构
	if err := dataLayer.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 4. 创建默认租户
	slug := os.Getenv("BOOTSTRAP_TENANT_SLUG")
	if slug == "" {
		slug = "default-tenant"
	}

	tenant, err := dataLayer.TenantRepo.GetBySlug(ctx, slug)
	if err != nil {
		log.Fatalf("failed to get tenant: %v", err)
	}
	if tenant == nil {
		fmt.Printf("Creating default tenant: %s...\n", slug)
		tenant = entity.NewTenant("Default Tenant", slug)
		if err := dataLayer.TenantRepo.Create(ctx, tenant); err != nil {
			log.Fatalf("failed to create default tenant: %v", err)
		}
		fmt.Printf("Default tenant created with ID: %s\n", tenant.ID)
	} else {
		fmt.Printf("Default tenant already exists with ID: %s\n", tenant.ID)
	}

	// 5. 按目录写入系统配额行
	var seeded int
	err = dataLayer.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		n, err := seedSystemQuotas(ctx, dataLayer.ProviderRepo, cfg.Providers, tenant.ID)
		seeded = n
		return err
	})
	if err != nil {
		log.Fatalf("failed to seed system quotas: %v", err)
	}
	fmt.Printf("Seeded %d system quota rows.\n", seeded)

	fmt.Println("Bootstrap completed successfully.")
}
