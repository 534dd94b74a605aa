// cmd/purchase-service/main.go
package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"shopflow/internal/pkg/bootstrap"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/db"
	"shopflow/internal/pkg/httpclient"
	"shopflow/internal/pkg/mq"
	"shopflow/internal/service/purchase/application"
	"shopflow/internal/service/purchase/domain"
	"shopflow/internal/service/purchase/infrastructure"
	"shopflow/internal/service/purchase/infrastructure/adapter"
	"shopflow/internal/service/purchase/infrastructure/rule"
	"shopflow/internal/service/purchase/interfaces"
)

const serviceName = constants.PurchaseService

// main 函数是应用的"组装根" (Composition Root)
func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             8081,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)

	// 1. 发件箱
	gormDB, err := db.Open(cfg.Infra.Mysql)
	if err != nil {
		return err
	}
	if err := infrastructure.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("failed to migrate outbox table: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	appCtx.OnShutdown(func(ctx context.Context) error { return sqlDB.Close() })
	outbox := infrastructure.NewGormOutboxStore(gormDB)

	// 2. 忠诚度规则
	var loyalty domain.LoyaltyRule
	rate := decimal.Zero
	if cfg.App.FeatureFlags.EnableLoyaltySale {
		celRule, err := rule.NewCELLoyaltyRule(cfg.App.Purchase.LoyaltyRule)
		if err != nil {
			return err
		}
		if rate, err = decimal.NewFromString(cfg.App.Purchase.LoyaltyRate); err != nil {
			return fmt.Errorf("invalid loyalty rate %q: %w", cfg.App.Purchase.LoyaltyRate, err)
		}
		loyalty = celRule
	}

	// 3. 下游服务
	var resolver httpclient.Resolver = httpclient.StaticResolver(cfg.Infra.Services)
	if appCtx.Nacos != nil {
		resolver = httpclient.NewNacosResolver(appCtx.Nacos, httpclient.StaticResolver(cfg.Infra.Services))
	}
	client := httpclient.NewClient(tracer, resolver, cfg.App.Purchase.CallTimeout)

	svc := application.NewPurchaseService(
		adapter.NewStorageHTTPAdapter(client),
		adapter.NewCustomerHTTPAdapter(client),
		adapter.NewCatalogHTTPAdapter(client),
		outbox, loyalty, rate, tracer,
	)
	interfaces.NewPurchaseHandler(svc).RegisterRoutes(appCtx.Mux)

	// 4. 发件箱转发，topic 由每条事件决定
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, "")
	appCtx.OnShutdown(func(ctx context.Context) error { return writer.Close() })
	appCtx.AddRunner(infrastructure.NewOutboxRelay(outbox, writer,
		cfg.App.Purchase.OutboxPollInterval, cfg.App.Purchase.OutboxBatchSize, tracer))
	return nil
}
