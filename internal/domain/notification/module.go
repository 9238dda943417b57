package notification

import (
	"errors"

	"peb_market/internal/domain/notification/repository"
	"peb_market/internal/domain/notification/service"
	userRepo "peb_market/internal/domain/user/repository"
	"peb_market/internal/pkg/push"
	"peb_market/internal/pkg/registry"
	"peb_market/internal/pkg/worker"

	"go.uber.org/zap"
)

// ServiceName 其他模块通过 ModuleContext.Lookup 获取 Dispatcher
const ServiceName = "notification.dispatcher"

// NotificationModule 通知模块
type NotificationModule struct{}

func init() {
	registry.Register(&NotificationModule{})
}

func (m *NotificationModule) Name() string {
	return "notification"
}

func (m *NotificationModule) Priority() int {
	return 10
}

func (m *NotificationModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config.Notification

	pool := worker.NewWorkerPool(worker.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		MaxRetry:  cfg.MaxRetry,
	}, ctx.Logger)
	pool.Start()
	ctx.OnShutdown(pool.Stop)

	// 推送是可选通道，未配置时只写站内通知
	var pusher push.PushService
	aliyunPush, err := push.NewAliyunPushService(ctx.Config.Push)
	switch {
	case err == nil:
		pusher = aliyunPush
	case errors.Is(err, push.ErrPushDisabled):
		ctx.Logger.Info("Push delivery disabled")
	default:
		ctx.Logger.Error("Failed to init push service", zap.Error(err))
	}

	dispatcher := service.NewDispatcher(
		repository.NewNotificationRepository(ctx.DB),
		userRepo.NewUserRepository(ctx.DB),
		pool,
		pusher,
		ctx.Logger,
		ctx.Metrics,
	)
	ctx.Provide(ServiceName, dispatcher)
	return nil
}
