package service

import (
	"context"
	"fmt"
	"time"

	inventoryService "peb_market/internal/domain/inventory/service"
	notificationService "peb_market/internal/domain/notification/service"
	orderModel "peb_market/internal/domain/order/model"
	"peb_market/internal/domain/settlement/model"
	walletRepo "peb_market/internal/domain/wallet/repository"
	"peb_market/internal/pkg/uploader"
	"peb_market/pkg/metrics"
	"peb_market/pkg/pool"

	"go.uber.org/zap"
)

// Ledger 结算需要的入账能力，由 WalletService 实现
type Ledger interface {
	CreditPending(ctx context.Context, credit walletRepo.PendingCredit) (*walletRepo.CreditResult, error)
}

// Coordinator 订单结算：逐项扣库存、给商家记待结算收入、通知商家
// 单项失败只记录在报告里，不影响其他订单项，也不回滚订单
type Coordinator interface {
	Settle(ctx context.Context, order *orderModel.Order) *model.Report
}

type coordinator struct {
	inventory inventoryService.InventoryService
	ledger    Ledger
	notifier  notificationService.Dispatcher
	archiver  uploader.Archiver
	pool      *pool.SemaphorePool
	log       *zap.Logger
	metrics   *metrics.MetricsCollector
}

// NewCoordinator 创建结算协调器；archiver 为 nil 时不归档失败报告
func NewCoordinator(
	inventory inventoryService.InventoryService,
	ledger Ledger,
	notifier notificationService.Dispatcher,
	archiver uploader.Archiver,
	concurrency int,
	log *zap.Logger,
	m *metrics.MetricsCollector,
) Coordinator {
	return &coordinator{
		inventory: inventory,
		ledger:    ledger,
		notifier:  notifier,
		archiver:  archiver,
		pool:      pool.NewSemaphorePool(concurrency),
		log:       log.Named("settlement"),
		metrics:   m,
	}
}

// SaleKey 订单项入账的幂等键
func SaleKey(orderItemID string) string {
	return "sale:" + orderItemID
}

// ReportKey 失败报告在对象存储中的路径
func ReportKey(report *model.Report) string {
	return fmt.Sprintf("settlement-reports/%s/%s.json", report.StartedAt.UTC().Format("2006-01-02"), report.OrderNo)
}

func (c *coordinator) Settle(ctx context.Context, order *orderModel.Order) *model.Report {
	report := &model.Report{
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		Items:     make([]model.ItemResult, len(order.Items)),
		StartedAt: time.Now(),
	}

	// 订单项之间没有依赖，可以并发结算
	err := c.pool.ForEach(ctx, len(order.Items), func(i int) {
		report.Items[i] = c.settleItem(ctx, order, &order.Items[i])
	})
	if err != nil {
		// 未开始的订单项标记为失败，等待重新结算
		for i := range report.Items {
			if report.Items[i].Status == "" {
				report.Items[i] = failedItem(&order.Items[i], model.StepInventory, err)
				c.metrics.RecordSettlementItem(model.StatusFailed, model.StepInventory)
			}
		}
	}
	report.Tally()

	c.notify(order, "", func() {
		c.notifier.NotifyOperators(ctx, notificationService.OrderSummary{
			ID:        order.ID,
			OrderNo:   order.OrderNo,
			ItemCount: order.ItemCount(),
			Total:     order.Total,
		})
	})

	report.Duration = time.Since(report.StartedAt)
	c.metrics.ObserveSettlement(report.Duration)

	fields := []zap.Field{
		zap.String("order_id", order.ID),
		zap.String("order_no", order.OrderNo),
		zap.Int("items", len(report.Items)),
		zap.Int("settled", report.Settled),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed),
		zap.Duration("cost", report.Duration),
	}
	if !report.HasFailures() {
		c.log.Info("Order settled", fields...)
		return report
	}

	c.archive(ctx, report)
	if report.ArchiveURL != "" {
		fields = append(fields, zap.String("archive", report.ArchiveURL))
	}
	c.log.Warn("Order settled with failures, reconciliation required", fields...)
	return report
}

func (c *coordinator) settleItem(ctx context.Context, order *orderModel.Order, item *orderModel.OrderItem) (result model.ItemResult) {
	step := model.StepInventory
	result = model.ItemResult{
		OrderItemID: item.ID,
		ProductID:   item.ProductID,
		VendorID:    item.VendorID,
		Quantity:    item.Quantity,
		Amount:      item.Total,
	}

	defer func() {
		if r := recover(); r != nil {
			failed := failedItem(item, step, fmt.Errorf("panic: %v", r))
			failed.VendorID = result.VendorID
			failed.NewStock = result.NewStock
			result = failed
		}
		if result.Status == model.StatusFailed {
			c.log.Error("Order item settlement failed",
				zap.String("order_id", order.ID),
				zap.String("order_item_id", item.ID),
				zap.String("step", result.Step),
				zap.String("error", result.Reason))
		}
		c.metrics.RecordSettlementItem(result.Status, result.Step)
	}()

	// 1. 扣库存
	adj, err := c.inventory.DecrementStock(ctx, item.ID, item.ProductID, item.Quantity)
	if err != nil {
		return failedItem(item, step, err)
	}
	result.NewStock = &adj.NewStock

	// 以商品当前归属的商家为准
	vendorID := item.VendorID
	if adj.VendorID != "" && adj.VendorID != item.VendorID {
		c.log.Warn("Order item vendor differs from product owner",
			zap.String("order_item_id", item.ID),
			zap.String("item_vendor_id", item.VendorID),
			zap.String("product_vendor_id", adj.VendorID))
		vendorID = adj.VendorID
	}
	result.VendorID = vendorID

	// 2. 商家待结算收入
	step = model.StepLedger
	credit, err := c.ledger.CreditPending(ctx, walletRepo.PendingCredit{
		VendorID:       vendorID,
		Amount:         item.Total,
		Description:    fmt.Sprintf("Sale of %d x %s (order %s)", item.Quantity, adj.Name, order.OrderNo),
		ReferenceID:    order.ID,
		IdempotencyKey: SaleKey(item.ID),
	})
	if err != nil {
		res := failedItem(item, step, err)
		res.VendorID = vendorID
		res.NewStock = result.NewStock
		return res
	}
	result.TransactionID = credit.Transaction.ID

	// 3. 通知商家，重复入账时不再通知；库存和入账已提交，通知失败不改变结算结果
	if !credit.Duplicate && credit.Vendor != nil {
		c.notify(order, item.ID, func() {
			c.notifier.NotifyVendorSale(ctx, credit.Vendor.UserID, adj.Name, item.Quantity, order.OrderNo)
		})
	}

	if adj.Duplicate && credit.Duplicate {
		result.Status = model.StatusDuplicate
	} else {
		result.Status = model.StatusSettled
	}
	return result
}

// notify 调用通知，panic 只记录日志
func (c *coordinator) notify(order *orderModel.Order, orderItemID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Settlement notification failed",
				zap.String("order_id", order.ID),
				zap.String("order_item_id", orderItemID),
				zap.String("step", model.StepNotification),
				zap.String("error", fmt.Sprintf("panic: %v", r)))
		}
	}()
	fn()
}

func (c *coordinator) archive(ctx context.Context, report *model.Report) {
	if c.archiver == nil {
		return
	}
	url, err := c.archiver.PutJSON(ctx, ReportKey(report), report)
	if err != nil {
		c.log.Error("Failed to archive settlement report",
			zap.String("order_id", report.OrderID), zap.Error(err))
		return
	}
	report.ArchiveURL = url
}

func failedItem(item *orderModel.OrderItem, step string, err error) model.ItemResult {
	return model.ItemResult{
		OrderItemID: item.ID,
		ProductID:   item.ProductID,
		VendorID:    item.VendorID,
		Quantity:    item.Quantity,
		Amount:      item.Total,
		Status:      model.StatusFailed,
		Step:        step,
		Reason:      err.Error(),
	}
}
