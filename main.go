package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"fetch-go/internal/cache"
	"fetch-go/internal/compression"
	"fetch-go/internal/config"
	"fetch-go/internal/constants"
	"fetch-go/internal/fetch"
	"fetch-go/internal/handler"
	"fetch-go/internal/initapp"
	"fetch-go/internal/middleware"
	"fetch-go/internal/router"
	"fetch-go/internal/storage"
	"fetch-go/internal/sweeper"
	"fetch-go/internal/utils"
)

func main() {
	configPath := "data/config.json"
	if err := initapp.Init(configPath); err != nil {
		log.Fatal("Error initializing app:", err)
	}

	// 初始化配置管理器
	configManager, err := config.Init(configPath)
	if err != nil {
		log.Fatal("Error initializing config manager:", err)
	}

	cfg := configManager.GetConfig()
	constants.UpdateFromConfig(cfg)

	// 打开存储后端
	ctx := context.Background()
	backend, err := storage.Open(ctx, cfg.Cache)
	if err != nil {
		log.Fatal("Error opening cache backend:", err)
	}

	store := cache.NewStore(backend, cache.Options{TTL: constants.CacheTTL})

	dispatcher := fetch.NewDispatcher(constants.CallbackQueueSize)
	fetcher := fetch.NewFetcher(store, dispatcher, fetch.Options{
		Timeout: constants.FetchTimeout,
		Retry: fetch.RetryConfig{
			MaxRetries:   cfg.Fetch.MaxRetries,
			InitialDelay: constants.RetryInitialDelay,
			MaxDelay:     constants.RetryMaxDelay,
			Multiplier:   constants.RetryMultiplier,
		},
	})

	// 定时清理过期记录
	var sw *sweeper.Sweeper
	if cfg.Cache.SweepSchedule != "" {
		sw, err = sweeper.New(store, cfg.Cache.SweepSchedule, time.Minute)
		if err != nil {
			log.Fatal("Error creating sweeper:", err)
		}
		if err := sw.Start(); err != nil {
			log.Fatal("Error starting sweeper:", err)
		}
	}

	compManager := compression.NewManager(cfg.Compression)

	// 配置热更新：压缩和超时立即生效，存储后端与 TTL 需要重启
	config.RegisterUpdateCallback(func(newCfg *config.Config) {
		constants.UpdateFromConfig(newCfg)
		compManager.Update(newCfg.Compression)
		if newCfg.Cache.Backend != cfg.Cache.Backend || newCfg.Cache.TTLSeconds != cfg.Cache.TTLSeconds {
			log.Printf("[Config] 存储后端或 TTL 已修改，重启后生效")
		}
	})

	// 管理令牌只从环境变量（含 .env）读取，不写入配置文件
	r := router.New(router.Handlers{
		Auth:   handler.NewAuthHandler(os.Getenv("FETCH_ADMIN_TOKEN")),
		Fetch:  handler.NewFetchHandler(fetcher, 0),
		Cache:  handler.NewCacheAdminHandler(store, fetcher, sw, configManager),
		Config: handler.NewConfigHandler(configManager),
		Health: handler.NewHealthHandler(store),
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: middleware.Compression(compManager)(r),
	}

	// 优雅关闭：先停止接收请求，再等待回调执行完，最后关闭存储
	utils.SetupCloseHandler(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Server] 关闭 HTTP 服务失败: %v", err)
		}
		if sw != nil {
			sw.Stop()
		}
		fetcher.Close()
		if err := backend.Close(); err != nil {
			log.Printf("[Server] 关闭存储后端失败: %v", err)
		}
	})

	log.Printf("[Server] 服务启动于 %s，backend=%s ttl=%v", cfg.Server.Addr, cfg.Cache.Backend, store.TTL())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Error starting server:", err)
	}

	// Shutdown 后由关闭回调负责退出进程
	select {}
}
