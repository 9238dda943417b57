package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"peb_market/internal/domain/order/model"
	"peb_market/internal/domain/order/repository"
	settlementModel "peb_market/internal/domain/settlement/model"
	"peb_market/pkg/cache"
	"peb_market/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ItemInput 下单的单个商品
type ItemInput struct {
	ProductID string
	VendorID  string
	Quantity  int
	Price     decimal.Decimal
}

// PlaceOrderInput 下单参数，金额由客户端计算
type PlaceOrderInput struct {
	UserID         string
	Items          []ItemInput
	Subtotal       decimal.Decimal
	DeliveryFee    decimal.Decimal
	Savings        decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  string
	DeliveryMethod string
	AddressID      string
	IdempotencyKey string // 可选
}

// Settler 订单结算
type Settler interface {
	Settle(ctx context.Context, order *model.Order) *settlementModel.Report
}

// Options 下单参数
type Options struct {
	NumberPrefix   string
	NumberLength   int
	MaxAttempts    int
	IdempotencyTTL time.Duration
	InFlightTTL    time.Duration // 处理中占位的过期时间，进程崩溃后占位自动释放
}

type OrderService interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	Resettle(ctx context.Context, orderID string) (*settlementModel.Report, error)
}

type orderService struct {
	repo    repository.OrderRepository
	settler Settler
	cache   cache.CacheService
	opts    Options
	genNo   func() (string, error)
	log     *zap.Logger
	metrics *metrics.MetricsCollector
}

// NewOrderService 创建订单服务；cache 为 nil 时忽略 Idempotency-Key
func NewOrderService(repo repository.OrderRepository, settler Settler, c cache.CacheService, opts Options, log *zap.Logger, m *metrics.MetricsCollector) OrderService {
	if opts.NumberPrefix == "" {
		opts.NumberPrefix = "PEB-"
	}
	if opts.NumberLength <= 0 {
		opts.NumberLength = 7
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.InFlightTTL <= 0 {
		opts.InFlightTTL = 2 * time.Minute
	}
	if opts.InFlightTTL > opts.IdempotencyTTL {
		opts.InFlightTTL = opts.IdempotencyTTL
	}
	s := &orderService{
		repo:    repo,
		settler: settler,
		cache:   c,
		opts:    opts,
		log:     log.Named("order"),
		metrics: m,
	}
	s.genNo = func() (string, error) {
		return GenerateOrderNo(s.opts.NumberPrefix, s.opts.NumberLength)
	}
	return s
}

// idempotencyRecord 幂等键对应的状态，OrderID 为空表示首个请求仍在处理
type idempotencyRecord struct {
	OrderID string `json:"orderId,omitempty"`
}

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("order:idem:%s:%s", userID, key)
}

// PlaceOrder 校验 -> 生成订单号 -> 事务写入订单和订单项 -> 同步结算
// 订单写入成功后无论结算结果如何都返回订单
func (s *orderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.Order, error) {
	// 1. 校验（任何写入之前）
	if err := validate(in); err != nil {
		s.metrics.RecordOrder("invalid")
		return nil, err
	}

	// 2. 幂等键
	idemKey := ""
	if in.IdempotencyKey != "" && s.cache != nil {
		existing, reserved, err := s.reserve(ctx, in.UserID, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.metrics.RecordOrder("replayed")
			return existing, nil
		}
		if reserved {
			idemKey = idempotencyKey(in.UserID, in.IdempotencyKey)
		}
	}

	// 3. 写入
	order, err := s.create(ctx, in)
	if err != nil {
		if idemKey != "" {
			if delErr := s.cache.Delete(ctx, idemKey); delErr != nil {
				s.log.Warn("Failed to release idempotency key", zap.String("key", idemKey), zap.Error(delErr))
			}
		}
		if errors.Is(err, model.ErrInvalidOrder) {
			s.metrics.RecordOrder("invalid")
			return nil, err
		}
		s.metrics.RecordOrder("failed")
		s.log.Error("Failed to create order", zap.String("user_id", in.UserID), zap.Error(err))
		return nil, model.ErrCreateFailed
	}
	s.metrics.RecordOrder("created")

	if idemKey != "" {
		if err := s.cache.Set(ctx, idemKey, idempotencyRecord{OrderID: order.ID}, s.opts.IdempotencyTTL); err != nil {
			// 不能留下空占位，否则重放会一直返回 409
			s.log.Warn("Failed to record idempotency key, releasing reservation",
				zap.String("key", idemKey), zap.String("order_id", order.ID), zap.Error(err))
			if delErr := s.cache.Delete(ctx, idemKey); delErr != nil {
				s.log.Warn("Failed to release idempotency key", zap.String("key", idemKey), zap.Error(delErr))
			}
		}
	}

	// 4. 结算；订单已落库，客户端断开也要继续
	if loaded, err := s.repo.GetByID(ctx, order.ID); err == nil {
		order = loaded
	} else {
		s.log.Warn("Failed to reload order, settling in-memory copy",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	s.settler.Settle(context.WithoutCancel(ctx), order)

	return order, nil
}

// reserve 占用幂等键；已完成的请求返回原订单，仍在处理返回 ErrDuplicateInFlight
// 缓存不可用时放行，退化为无幂等键的行为
func (s *orderService) reserve(ctx context.Context, userID, key string) (*model.Order, bool, error) {
	cacheKey := idempotencyKey(userID, key)
	ok, err := s.cache.SetNX(ctx, cacheKey, idempotencyRecord{}, s.opts.InFlightTTL)
	if err != nil {
		s.log.Warn("Idempotency reservation failed, continuing without it", zap.String("key", cacheKey), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		return nil, true, nil
	}

	var rec idempotencyRecord
	if err := s.cache.Get(ctx, cacheKey, &rec); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("Idempotency lookup failed", zap.String("key", cacheKey), zap.Error(err))
	}
	if rec.OrderID == "" {
		return nil, false, model.ErrDuplicateInFlight
	}
	order, err := s.repo.GetByID(ctx, rec.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("load order for idempotency key: %w", err)
	}
	return order, false, nil
}

func (s *orderService) create(ctx context.Context, in PlaceOrderInput) (*model.Order, error) {
	order := &model.Order{
		UserID:         in.UserID,
		Subtotal:       in.Subtotal,
		DeliveryFee:    in.DeliveryFee,
		Savings:        in.Savings,
		Total:          in.Total,
		PaymentMethod:  in.PaymentMethod,
		DeliveryMethod: in.DeliveryMethod,
		AddressID:      in.AddressID,
		Status:         model.OrderStatusPending,
		Items:          make([]model.OrderItem, 0, len(in.Items)),
	}
	for _, item := range in.Items {
		order.Items = append(order.Items, model.OrderItem{
			ProductID: item.ProductID,
			VendorID:  item.VendorID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Total:     item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	// 唯一索引兜底：并发生成了相同订单号时重新生成
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		orderNo, err := s.nextOrderNo(ctx)
		if err != nil {
			return nil, err
		}
		order.OrderNo = orderNo

		err = s.repo.Create(ctx, order)
		switch {
		case err == nil:
			s.log.Info("Order created",
				zap.String("order_id", order.ID),
				zap.String("order_no", order.OrderNo),
				zap.String("user_id", order.UserID),
				zap.Int("items", len(order.Items)),
				zap.String("total", order.Total.StringFixed(2)))
			return order, nil
		case errors.Is(err, repository.ErrOrderNoTaken):
			s.log.Warn("Order number collision on insert", zap.String("order_no", orderNo), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, model.ErrAddressNotFound):
			return nil, fmt.Errorf("%w: address %s does not belong to the user", model.ErrInvalidOrder, in.AddressID)
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("no unique order number after %d attempts", s.opts.MaxAttempts)
}

// nextOrderNo 生成一个当前未被使用的订单号
func (s *orderService) nextOrderNo(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		orderNo, err := s.genNo()
		if err != nil {
			return "", err
		}
		exists, err := s.repo.ExistsByOrderNo(ctx, orderNo)
		if err != nil {
			return "", err
		}
		if !exists {
			return orderNo, nil
		}
	}
	return "", fmt.Errorf("no unused order number after %d attempts", s.opts.MaxAttempts)
}

func (s *orderService) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Resettle 重新结算订单，已完成的步骤通过幂等键跳过
func (s *orderService) Resettle(ctx context.Context, orderID string) (*settlementModel.Report, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	report := s.settler.Settle(ctx, order)
	s.log.Info("Order re-settled",
		zap.String("order_id", order.ID),
		zap.Int("settled", report.Settled),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed))
	return report, nil
}

func validate(in PlaceOrderInput) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", model.ErrInvalidOrder, fmt.Sprintf(format, args...))
	}

	if in.UserID == "" {
		return invalid("user id is required")
	}
	if len(in.Items) == 0 {
		return invalid("order must contain at least one item")
	}
	for i, item := range in.Items {
		switch {
		case strings.TrimSpace(item.ProductID) == "":
			return invalid("item %d: product id is required", i)
		case strings.TrimSpace(item.VendorID) == "":
			return invalid("item %d: vendor id is required", i)
		case item.Quantity <= 0:
			return invalid("item %d: quantity must be greater than zero", i)
		case item.Price.IsNegative():
			return invalid("item %d: price must not be negative", i)
		}
	}

	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", in.Subtotal},
		{"delivery", in.DeliveryFee},
		{"savings", in.Savings},
		{"total", in.Total},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return invalid("%s must not be negative", a.name)
		}
	}

	if in.PaymentMethod == "" {
		return invalid("payment method is required")
	}
	if in.DeliveryMethod == "" {
		return invalid("delivery method is required")
	}
	if in.AddressID == "" {
		return invalid("address id is required")
	}
	return nil
}
