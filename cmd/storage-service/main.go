// cmd/storage-service/main.go
package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/bootstrap"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/db"
	"shopflow/internal/pkg/httpclient"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/mq"
	"shopflow/internal/pkg/redis"
	"shopflow/internal/service/storage/application"
	"shopflow/internal/service/storage/domain"
	"shopflow/internal/service/storage/infrastructure"
	"shopflow/internal/service/storage/infrastructure/adapter"
	"shopflow/internal/service/storage/interfaces"
	"shopflow/internal/zookeeper"
)

const (
	serviceName     = constants.StorageService
	consumerGroupID = "storage-service-group"
	lowStockLockID  = "low-stock-scan"
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             8082,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)
	brokers := cfg.Infra.Kafka.Brokers

	// 1. 存储
	gormDB, err := db.Open(cfg.Infra.Mysql)
	if err != nil {
		return err
	}
	if err := infrastructure.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("failed to migrate storage tables: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	appCtx.OnShutdown(func(ctx context.Context) error { return sqlDB.Close() })
	repo := infrastructure.NewGormStorageRepository(gormDB)

	// 2. Redis: 缺货登记和可用量缓存
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return err
	}
	appCtx.OnShutdown(func(ctx context.Context) error { return redisClient.Close() })

	backorders, err := infrastructure.NewRedisBackorderRepository(redisClient, cfg.App.Storage.BackorderTTL)
	if err != nil {
		return err
	}
	var cache domain.StockCache
	if cfg.App.FeatureFlags.EnableAvailabilityCache {
		stockCache, err := infrastructure.NewRedisStockCache(redisClient, cfg.App.Storage.CacheTTL)
		if err != nil {
			return err
		}
		cache = stockCache
	}

	// 3. 下游服务
	var resolver httpclient.Resolver = httpclient.StaticResolver(cfg.Infra.Services)
	if appCtx.Nacos != nil {
		resolver = httpclient.NewNacosResolver(appCtx.Nacos, httpclient.StaticResolver(cfg.Infra.Services))
	}
	client := httpclient.NewClient(tracer, resolver, cfg.App.Storage.CallTimeout)

	svc := application.NewStorageService(
		repo, backorders, cache,
		adapter.NewCatalogHTTPAdapter(client),
		adapter.NewCustomerHTTPAdapter(client),
		tracer,
	)
	interfaces.NewStorageHandler(svc).RegisterRoutes(appCtx.Mux)

	// 4. Kafka: order-confirmed 消费者，失败转入 order-confirmed.DLT
	dltWriter := mq.NewKafkaWriter(brokers, "")
	appCtx.OnShutdown(func(ctx context.Context) error { return dltWriter.Close() })
	orderReader := mq.NewKafkaReader(brokers, contract.TopicOrderConfirmed, consumerGroupID)
	appCtx.AddRunner(interfaces.NewOrderConfirmedConsumer(orderReader, svc, mq.NewFailureHandler(dltWriter), tracer))

	// 5. 低库存扫描
	if cfg.App.FeatureFlags.EnableLowStockScan {
		lowStockWriter := mq.NewKafkaWriter(brokers, contract.TopicLowStockAlert)
		appCtx.OnShutdown(func(ctx context.Context) error { return lowStockWriter.Close() })

		var guard application.ScanGuard
		if len(cfg.Infra.Zookeeper.Servers) > 0 {
			conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
			if err != nil {
				return err
			}
			appCtx.OnShutdown(func(ctx context.Context) error {
				conn.Close()
				return nil
			})
			lock, err := zookeeper.NewDistributedLock(conn, lowStockLockID)
			if err != nil {
				return err
			}
			guard = lock
		} else {
			logger.Ctx(context.Background()).Warn().Msg("zookeeper not configured, every replica runs the low stock scan")
		}

		scanner, err := application.NewLowStockScanner(repo, adapter.NewLowStockKafkaAdapter(lowStockWriter), guard,
			cfg.App.Storage.LowStockThreshold, cfg.App.Storage.LowStockCron, tracer)
		if err != nil {
			return err
		}
		appCtx.AddRunner(scanner)
	}
	return nil
}
