// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/nacos"
	"shopflow/internal/pkg/tracing"
	"shopflow/internal/pkg/utils"
)

// Runner 是随服务一起启停的后台组件，比如 Kafka 消费者、outbox 转发器、定时任务
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未启用 nacos 时为 nil
	Config *Config

	runners []Runner
	closers []func(ctx context.Context) error
}

// AddRunner 注册一个后台组件，服务启动后调用其 Start，关停时逆序调用 Stop
func (a *AppCtx) AddRunner(r Runner) {
	a.runners = append(a.runners, r)
}

// OnShutdown 注册关停时的清理函数，按注册的逆序执行
func (a *AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx *AppCtx) error // 每个服务在这里组装依赖并注册自己的路由
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg, err := Init()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(info.ServiceName, cfg.App.LogLevel, cfg.App.Env == "dev")

	port := getEnvInt("PORT", info.Port)

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}

	appCtx := &AppCtx{Mux: http.NewServeMux(), Config: cfg}

	var ip string
	if cfg.Infra.Nacos.Enabled {
		namingClient, err := nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatalf("failed to initialize nacos client: %v", err)
		}
		appCtx.Nacos = namingClient

		if ip, err = utils.GetOutboundIP(); err != nil {
			log.Fatalf("failed to get outbound IP address: %v", err)
		}
	}

	appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	appCtx.Mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			log.Fatalf("failed to initialize %s: %v", info.ServiceName, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: appCtx.Mux}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Ctx(gctx).Info().Int("port", port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, r := range appCtx.runners {
		r := r
		g.Go(func() error { return r.Start(gctx) })
	}

	if appCtx.Nacos != nil {
		if err := appCtx.Nacos.RegisterServiceInstance(info.ServiceName, ip, port); err != nil {
			log.Fatalf("failed to register service with nacos: %v", err)
		}
	}

	// 阻塞直到收到退出信号，或任一组件启动失败
	<-gctx.Done()
	logger.Ctx(ctx).Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按启动的逆序清理 (后进先出)
	if appCtx.Nacos != nil {
		if err := appCtx.Nacos.DeregisterServiceInstance(info.ServiceName, ip, port); err != nil {
			logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error shutting down http server")
	}

	for i := len(appCtx.runners) - 1; i >= 0; i-- {
		appCtx.runners[i].Stop(shutdownCtx)
	}
	for i := len(appCtx.closers) - 1; i >= 0; i-- {
		if err := appCtx.closers[i](shutdownCtx); err != nil {
			logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error during cleanup")
		}
	}

	if err := g.Wait(); err != nil {
		logger.Ctx(shutdownCtx).Error().Err(err).Msg("service stopped with error")
	}

	// 最后关闭 Tracer Provider，确保所有缓冲的 span 都被发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error shutting down tracer provider")
	}

	logger.Ctx(shutdownCtx).Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getEnvInt 读取整数环境变量，解析失败时使用默认值
func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
