// cmd/notification-service/main.go
package main

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/bootstrap"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/mq"
	"shopflow/internal/pkg/redis"
	"shopflow/internal/service/notification/application"
	"shopflow/internal/service/notification/infrastructure"
	"shopflow/internal/service/notification/interfaces"
)

const (
	serviceName     = constants.NotificationService
	consumerGroupID = "notification-group"
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             8083,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)
	brokers := cfg.Infra.Kafka.Brokers

	hub := interfaces.NewHub(serviceName + "-" + uuid.NewString()[:8])
	hub.RegisterRoutes(appCtx.Mux)
	appCtx.AddRunner(hub)

	// Redis 不可用时退化为不去重
	var dedup application.Deduplicator
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		logger.Ctx(context.Background()).Warn().Err(err).Msg("redis unavailable, notifications are not deduplicated")
	} else {
		appCtx.OnShutdown(func(ctx context.Context) error { return redisClient.Close() })
		dedup = infrastructure.NewRedisDeduplicator(redisClient, cfg.App.Notification.DedupTTL)
	}
	dispatcher := application.NewDispatcher(hub, dedup, tracer)

	dltWriter := mq.NewKafkaWriter(brokers, "")
	appCtx.OnShutdown(func(ctx context.Context) error { return dltWriter.Close() })
	failureHandler := mq.NewFailureHandler(dltWriter)

	consumers := interfaces.NewDispatchConsumers(
		mq.NewKafkaReader(brokers, contract.TopicMail, consumerGroupID),
		mq.NewKafkaReader(brokers, contract.TopicLowStockAlert, consumerGroupID),
		dispatcher, failureHandler, tracer,
	)
	for _, c := range consumers {
		appCtx.AddRunner(c)
	}

	// order-confirmed 的死信只记录日志
	dltTopic := contract.TopicOrderConfirmed + mq.DLTSuffix
	appCtx.AddRunner(interfaces.NewDeadLetterConsumer(dltTopic, mq.NewKafkaReader(brokers, dltTopic, consumerGroupID+"-dlt"), tracer))
	return nil
}
