package service

import (
	"context"
	"fmt"
	"time"

	"peb_market/internal/domain/notification/model"
	"peb_market/internal/domain/notification/repository"
	userModel "peb_market/internal/domain/user/model"
	userRepo "peb_market/internal/domain/user/repository"
	"peb_market/internal/pkg/push"
	"peb_market/internal/pkg/worker"
	"peb_market/pkg/metrics"
	"peb_market/pkg/pool"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 推送连续失败后暂停推送的时间
const pushCooldown = time.Minute

// Enqueuer 后台任务队列
type Enqueuer interface {
	Submit(task worker.Task) bool
}

// OrderSummary 运营通知需要的订单信息
type OrderSummary struct {
	ID        string
	OrderNo   string
	ItemCount int
	Total     decimal.Decimal
}

// Dispatcher 通知投递。所有方法只入队，不返回错误，失败只记录日志
type Dispatcher interface {
	NotifyVendorSale(ctx context.Context, vendorUserID, productName string, quantity int, orderNo string)
	NotifyOperators(ctx context.Context, order OrderSummary)
}

type dispatcher struct {
	repo    repository.NotificationRepository
	users   userRepo.UserRepository
	queue   Enqueuer
	pusher  push.PushService
	breaker *pool.CircuitBreaker
	log     *zap.Logger
	metrics *metrics.MetricsCollector
}

// NewDispatcher 创建通知投递器；pusher 为 nil 时只写站内通知
func NewDispatcher(repo repository.NotificationRepository, users userRepo.UserRepository, queue Enqueuer, pusher push.PushService, log *zap.Logger, m *metrics.MetricsCollector) Dispatcher {
	return &dispatcher{
		repo:    repo,
		users:   users,
		queue:   queue,
		pusher:  pusher,
		breaker: pool.NewCircuitBreaker(5, pushCooldown),
		log:     log.Named("notification"),
		metrics: m,
	}
}

func (d *dispatcher) NotifyVendorSale(ctx context.Context, vendorUserID, productName string, quantity int, orderNo string) {
	n := &model.Notification{
		UserID:  vendorUserID,
		Title:   "New sale",
		Message: fmt.Sprintf("%d x %s sold in order %s", quantity, productName, orderNo),
		Type:    model.TypeSale,
		Link:    "/wallet",
	}
	d.enqueue("notify-sale:"+orderNo, n)
}

// NotifyOperators 查找全部运营人员并逐个投递订单汇总
func (d *dispatcher) NotifyOperators(ctx context.Context, order OrderSummary) {
	task := worker.Task{
		Name: "notify-operators:" + order.OrderNo,
		Run: func(ctx context.Context) error {
			operators, err := d.users.ListByRole(ctx, userModel.RoleAdmin)
			if err != nil {
				return fmt.Errorf("list operators: %w", err)
			}
			for _, op := range operators {
				d.enqueue("notify-operator:"+order.OrderNo, &model.Notification{
					UserID: op.ID,
					Title:  "New order " + order.OrderNo,
					Message: fmt.Sprintf("Order %s placed with %d item(s), total %s",
						order.OrderNo, order.ItemCount, order.Total.StringFixed(2)),
					Type: model.TypeNewOrder,
					Link: "/admin/orders/" + order.ID,
				})
			}
			return nil
		},
	}
	if !d.queue.Submit(task) {
		d.metrics.RecordNotification("dropped")
	}
}

func (d *dispatcher) enqueue(name string, n *model.Notification) {
	// 预先分配 ID，重试时写入幂等
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	ok := d.queue.Submit(worker.Task{
		Name: name,
		Run: func(ctx context.Context) error {
			return d.deliver(ctx, n)
		},
	})
	if !ok {
		d.metrics.RecordNotification("dropped")
	}
}

// deliver 写入站内通知，然后尽力推送；只有写库失败才会重试
func (d *dispatcher) deliver(ctx context.Context, n *model.Notification) error {
	if err := d.repo.Create(ctx, n); err != nil {
		d.metrics.RecordNotification("failed")
		return fmt.Errorf("store notification for %s: %w", n.UserID, err)
	}
	d.metrics.RecordNotification("stored")

	if d.pusher == nil {
		return nil
	}
	err := d.breaker.Call(func() error {
		return d.pusher.PushToAccount(n.UserID, n.Title, n.Message, map[string]string{
			"type": n.Type,
			"link": n.Link,
		})
	})
	if err != nil {
		d.metrics.RecordNotification("push_failed")
		d.log.Warn("Push delivery failed",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return nil
	}
	d.metrics.RecordNotification("pushed")
	return nil
}
