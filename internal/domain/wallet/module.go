package wallet

import (
	"fmt"

	"peb_market/internal/domain/wallet/handler"
	"peb_market/internal/domain/wallet/repository"
	"peb_market/internal/domain/wallet/service"
	"peb_market/internal/domain/wallet/strategy"
	"peb_market/internal/pkg/middleware"
	"peb_market/internal/pkg/registry"
	"peb_market/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ServiceName 其他模块通过 ModuleContext.Lookup 获取 WalletService
const ServiceName = "wallet.service"

// 模拟支付支持的充值方式
var paymentMethods = []string{"card", "bank_transfer", "mobile_money"}

// WalletModule 商家钱包模块
type WalletModule struct{}

func init() {
	registry.Register(&WalletModule{})
}

func (m *WalletModule) Name() string {
	return "wallet"
}

func (m *WalletModule) Priority() int {
	return 10
}

func (m *WalletModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config.Wallet

	maxTopUp := decimal.Zero
	if cfg.MaxTopUp != "" {
		v, err := decimal.NewFromString(cfg.MaxTopUp)
		if err != nil {
			return fmt.Errorf("wallet.max_topup: %w", err)
		}
		maxTopUp = v
	}

	// 1. 依赖注入
	ledgerRepo := repository.NewLedgerRepository(ctx.DB)
	var reconciler repository.ReconcileRepository
	if ctx.ReportDB != nil {
		reconciler = repository.NewReconcileRepository(ctx.ReportDB)
	}
	var walletCache cache.CacheService
	if ctx.Redis != nil {
		walletCache = cache.NewRedisCache(ctx.Redis, "market:")
	}

	wService := service.NewWalletService(ledgerRepo, reconciler, walletCache, service.Options{
		MaxTopUp:    maxTopUp,
		CacheTTL:    cfg.CacheTTL,
		HistorySize: cfg.HistorySize,
	}, ctx.Logger, ctx.Metrics)

	// 2. 注册支付方式（支付网关不在范围内，统一走模拟支付）
	simulated := strategy.NewSimulatedStrategy(cfg.TopUpDelay)
	for _, method := range paymentMethods {
		wService.RegisterStrategy(method, simulated)
	}

	ctx.Provide(ServiceName, wService)

	// 3. 路由注册
	setupRoutes(ctx.Router, handler.NewWalletHandler(wService), ctx.Config.JWT.Secret)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.WalletHandler, secret string) {
	auth := r.Group("")
	auth.Use(middleware.AuthMiddleware(secret))
	{
		auth.GET("/wallet", h.GetWallet)
		auth.POST("/wallet/topup", h.TopUp)
	}

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(secret), middleware.AdminMiddleware())
	{
		admin.GET("/vendors/:id/reconcile", h.Reconcile)
	}
}
