package order

import (
	"peb_market/internal/domain/order/handler"
	"peb_market/internal/domain/order/repository"
	"peb_market/internal/domain/order/service"
	"peb_market/internal/domain/settlement"
	"peb_market/internal/pkg/middleware"
	"peb_market/internal/pkg/registry"
	"peb_market/pkg/cache"

	"github.com/gin-gonic/gin"
)

// OrderModule 订单模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 下单后同步结算，依赖 settlement 模块
	return 30
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	settler, err := registry.Resolve[service.Settler](ctx, settlement.ServiceName)
	if err != nil {
		return err
	}

	var idemCache cache.CacheService
	if ctx.Redis != nil {
		idemCache = cache.NewRedisCache(ctx.Redis, "market:")
	}

	cfg := ctx.Config.Order
	oService := service.NewOrderService(repository.NewOrderRepository(ctx.DB), settler, idemCache, service.Options{
		NumberPrefix:   cfg.NumberPrefix,
		NumberLength:   cfg.NumberLength,
		MaxAttempts:    cfg.NumberMaxAttempts,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, ctx.Logger, ctx.Metrics)

	setupRoutes(ctx.Router, handler.NewOrderHandler(oService), ctx.Config.JWT.Secret)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.OrderHandler, secret string) {
	auth := r.Group("/orders")
	auth.Use(middleware.AuthMiddleware(secret))
	{
		auth.POST("", h.PlaceOrder)
		auth.GET("", h.ListOrders)
	}

	admin := r.Group("/admin/orders")
	admin.Use(middleware.AuthMiddleware(secret), middleware.AdminMiddleware())
	{
		admin.POST("/:id/settle", h.Resettle)
	}
}
