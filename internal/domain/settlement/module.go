package settlement

import (
	"peb_market/internal/domain/inventory"
	inventoryService "peb_market/internal/domain/inventory/service"
	"peb_market/internal/domain/notification"
	notificationService "peb_market/internal/domain/notification/service"
	"peb_market/internal/domain/settlement/service"
	"peb_market/internal/domain/wallet"
	"peb_market/internal/pkg/registry"
	"peb_market/internal/pkg/uploader"

	"go.uber.org/zap"
)

// ServiceName 其他模块通过 ModuleContext.Lookup 获取 Coordinator
const ServiceName = "settlement.coordinator"

// SettlementModule 结算模块，依赖 inventory、wallet、notification
type SettlementModule struct{}

func init() {
	registry.Register(&SettlementModule{})
}

func (m *SettlementModule) Name() string {
	return "settlement"
}

func (m *SettlementModule) Priority() int {
	return 20
}

func (m *SettlementModule) Init(ctx *registry.ModuleContext) error {
	inv, err := registry.Resolve[inventoryService.InventoryService](ctx, inventory.ServiceName)
	if err != nil {
		return err
	}
	ledger, err := registry.Resolve[service.Ledger](ctx, wallet.ServiceName)
	if err != nil {
		return err
	}
	notifier, err := registry.Resolve[notificationService.Dispatcher](ctx, notification.ServiceName)
	if err != nil {
		return err
	}

	// 失败报告归档到 OSS，未配置时只记录日志
	var archiver uploader.Archiver
	if ctx.Config.OSS.Enabled() {
		ossArchiver, err := uploader.NewAliyunOSSArchiver(ctx.Config.OSS)
		if err != nil {
			ctx.Logger.Error("Failed to init settlement report archiver", zap.Error(err))
		} else {
			archiver = ossArchiver
		}
	}

	coordinator := service.NewCoordinator(inv, ledger, notifier, archiver,
		ctx.Config.Order.SettlementConcurrency, ctx.Logger, ctx.Metrics)
	ctx.Provide(ServiceName, coordinator)
	return nil
}
