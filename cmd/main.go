package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/engine"
	"github.com/qiuqing005/maoxian/internal/provider"
	"github.com/qiuqing005/maoxian/internal/storage"
	"github.com/qiuqing005/maoxian/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	var cache *storage.SummaryCache
	if cfg.Storage.Redis.Enabled {
		cache, err = storage.NewSummaryCache(cfg.Storage.Redis, cfg.Game.CacheRetention())
		if err != nil {
			log.Warn("failed to connect to Redis, continuing without index cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
			log.Info("Redis index cache connected")
		}
	}

	var prov provider.Provider
	if cfg.Provider.APIKey != "" {
		prov = provider.NewOpenAIClient(cfg.Provider)
		log.Info("text provider configured", zap.String("model", cfg.Provider.Model))
	} else {
		log.Warn("no provider API key set, adventures cannot be started")
	}

	hub := web.NewEventHub(log)
	go hub.Run()

	opts := []engine.Option{engine.WithPublisher(hub)}
	if cache != nil {
		opts = append(opts, engine.WithSummaryCache(cache))
	}
	manager := engine.NewManager(cfg, store, prov, log, opts...)

	if err := manager.Init(context.Background()); err != nil {
		log.Fatal("failed to initialize lifecycle manager", zap.Error(err))
	}

	saver := engine.NewAutosaver(manager, cfg.Game.AutoSaveInterval(), log)
	saverCtx, stopSaver := context.WithCancel(context.Background())
	go saver.Run(saverCtx)

	router := web.NewRouter(web.NewHandlers(cfg, manager, saver, hub, log))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}

	stopSaver()
	if err := manager.Close(ctx); err != nil {
		log.Warn("lifecycle manager close error", zap.Error(err))
	}

	log.Info("server stopped")
}

func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "mysql":
		store, err := storage.NewMySQLStore(cfg.Storage.MySQL)
		if err != nil {
			return nil, fmt.Errorf("connect to MySQL: %w", err)
		}
		log.Info("MySQL store connected", zap.String("host", cfg.Storage.MySQL.Host))
		return store, nil
	case "bolt", "":
		store, err := storage.OpenBolt(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		log.Info("bolt store opened", zap.String("path", cfg.Storage.Path))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
