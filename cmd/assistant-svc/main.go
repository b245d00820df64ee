// Package main 目录助手服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"directory-assistant-api/internal/application/assistant"
	"directory-assistant-api/internal/config"
	"directory-assistant-api/internal/domain/repository"
	"directory-assistant-api/internal/infrastructure/messaging"
	"directory-assistant-api/internal/infrastructure/persistence/memory"
	"directory-assistant-api/internal/infrastructure/persistence/redis"
	"directory-assistant-api/internal/infrastructure/upstream"
	"directory-assistant-api/internal/interfaces/http/handler"
	"directory-assistant-api/internal/interfaces/http/router"
	"directory-assistant-api/pkg/logger"
	"directory-assistant-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting assistant-svc",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 存储：Redis 或进程内存（本地开发）
	var (
		kv          repository.KVStore
		redisClient *redis.Client
	)
	if cfg.Cache.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Cache.Redis)
		if err != nil {
			logger.Fatal(ctx, "failed to connect redis", err)
		}
		defer redisClient.Close()
		kv = redis.NewKVStore(redisClient)
	} else {
		log.Warn("redis disabled, using in-process kv store")
		kv = memory.NewKVStore()
	}

	// 上游目录 API 客户端，同时承担流式问答
	upstreamClient := upstream.NewClient(&cfg.Upstream)

	// 历史变更信号：进程内集线器，可选 Redis Stream 跨实例广播
	hub := assistant.NewSignalHub()
	notifier := repository.HistoryNotifier(hub)
	if cfg.Signal.RedisFanout && redisClient != nil {
		origin := uuid.New().String()
		producer := messaging.NewHistorySignalProducer(redisClient.Redis(), cfg.Signal.Stream, origin, cfg.Signal.MaxLen)
		listener := messaging.NewHistorySignalListener(redisClient.Redis(), cfg.Signal.Stream, origin, hub.Notify)
		listener.Start(ctx)
		defer listener.Stop()
		notifier = assistant.MultiNotifier{hub, producer}
	}

	// 应用层装配
	ledger := assistant.NewQuotaLedger(kv, &cfg.Quota)
	threads := assistant.NewThreadCoordinator(upstreamClient, notifier)
	browser := assistant.NewHistoryBrowser(upstreamClient, cfg.History.CacheTTL)
	orchestrator := assistant.NewOrchestrator(ledger, threads, upstreamClient, browser, notifier)

	// 路由装配
	r := router.New(cfg, router.Handlers{
		Session: handler.NewSessionHandler(orchestrator),
		History: handler.NewHistoryHandler(browser, hub),
		Health:  handler.NewHealthHandler(redisClient),
	})

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
