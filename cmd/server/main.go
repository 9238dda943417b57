package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "peb_market/docs"
	_ "peb_market/internal/domain/inventory"
	_ "peb_market/internal/domain/notification"
	_ "peb_market/internal/domain/order"
	_ "peb_market/internal/domain/settlement"
	_ "peb_market/internal/domain/wallet"
	"peb_market/internal/pkg/config"
	"peb_market/internal/pkg/middleware"
	"peb_market/internal/pkg/registry"
	"peb_market/pkg/database"
	"peb_market/pkg/logger"
	"peb_market/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// @title PEB Market API
// @version 1.0
// @description 市场订单结算与商家钱包服务
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	log, err := logger.Init(cfg.App.Name, cfg.App.Env, cfg.App.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug, log)
	if err != nil {
		return err
	}
	reportDB, err := database.InitReportingDB(cfg.Database)
	if err != nil {
		return err
	}
	defer reportDB.Close()

	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewMetricsCollector(reg)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	limiter := middleware.NewIPRateLimiter(rate.Limit(100), 200)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.MetricsMiddleware(collector))
	r.Use(middleware.RateLimitMiddleware(limiter))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Trace-ID"},
		ExposeHeaders:    []string{"X-Trace-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	moduleCtx := &registry.ModuleContext{
		DB:       db,
		ReportDB: reportDB,
		Redis:    rdb,
		Router:   r,
		Config:   cfg,
		Logger:   log,
		Metrics:  collector,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 清理长时间不活跃的限流器
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(10 * time.Minute); n > 0 {
					log.Debug("Rate limiters evicted", zap.Int("count", n))
				}
			}
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// 等待通知队列排空
	if err := moduleCtx.Shutdown(shutdownCtx); err != nil {
		log.Error("Module shutdown failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Server stopped")
	return nil
}
