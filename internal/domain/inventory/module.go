package inventory

import (
	"peb_market/internal/domain/inventory/repository"
	"peb_market/internal/domain/inventory/service"
	"peb_market/internal/pkg/registry"
)

// ServiceName 其他模块通过 ModuleContext.Lookup 获取 InventoryService
const ServiceName = "inventory.service"

// InventoryModule 库存模块，商品目录由外部维护，这里只负责扣减
type InventoryModule struct{}

func init() {
	registry.Register(&InventoryModule{})
}

func (m *InventoryModule) Name() string {
	return "inventory"
}

func (m *InventoryModule) Priority() int {
	return 10
}

func (m *InventoryModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewProductRepository(ctx.DB)
	ctx.Provide(ServiceName, service.NewInventoryService(repo))
	return nil
}
