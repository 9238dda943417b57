package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"peb_market/internal/domain/order/model"
	"peb_market/internal/domain/order/repository"
	settlementModel "peb_market/internal/domain/settlement/model"
	"peb_market/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockOrderRepository is a mock of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	if args.Error(0) == nil && order.ID == "" {
		order.ID = "order-1"
	}
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	args := m.Called(ctx, orderNo)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Order), args.Error(1)
}

type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) Settle(ctx context.Context, order *model.Order) *settlementModel.Report {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return &settlementModel.Report{OrderID: order.ID}
	}
	return args.Get(0).(*settlementModel.Report)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	return m.Called(ctx, key, dest).Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *MockCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

var orderNoPattern = regexp.MustCompile(`^PEB-[0-9A-Z]{7}$`)

func validInput() PlaceOrderInput {
	return PlaceOrderInput{
		UserID: "user-1",
		Items: []ItemInput{
			{ProductID: "prod-a", VendorID: "vendor-a", Quantity: 2, Price: decimal.RequireFromString("100.00")},
			{ProductID: "prod-b", VendorID: "vendor-b", Quantity: 1, Price: decimal.RequireFromString("50.00")},
			{ProductID: "prod-c", VendorID: "vendor-a", Quantity: 3, Price: decimal.RequireFromString("0.99")},
		},
		Subtotal:       decimal.RequireFromString("252.97"),
		DeliveryFee:    decimal.RequireFromString("5.00"),
		Savings:        decimal.Zero,
		Total:          decimal.RequireFromString("257.97"),
		PaymentMethod:  "card",
		DeliveryMethod: "standard",
		AddressID:      "addr-1",
	}
}

func newTestService(repo *MockOrderRepository, settler *MockSettler, c cache.CacheService) *orderService {
	return NewOrderService(repo, settler, c, Options{}, zap.NewNop(), nil).(*orderService)
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("Persists every item and settles once", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		svc := newTestService(repo, settler, nil)

		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*model.Order")).Return(nil)
		// 重新加载失败时返回内存中的订单
		repo.On("GetByID", ctx, "order-1").Return(nil, errors.New("replica lag"))
		settler.On("Settle", mock.Anything, mock.AnythingOfType("*model.Order")).Return(nil).Once()

		order, err := svc.PlaceOrder(ctx, validInput())

		require.NoError(t, err)
		require.Len(t, order.Items, 3)
		assert.Regexp(t, orderNoPattern, order.OrderNo)
		assert.Equal(t, model.OrderStatusPending, order.Status)
		assert.Equal(t, "200", order.Items[0].Total.String())
		assert.Equal(t, "50", order.Items[1].Total.String())
		assert.Equal(t, "2.97", order.Items[2].Total.String())
		assert.Equal(t, "257.97", order.Total.StringFixed(2))
		settler.AssertExpectations(t)
	})

	t.Run("Failed settlement still returns the order", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		svc := newTestService(repo, settler, nil)

		stored := &model.Order{OrderNo: "PEB-STORED1", UserID: "user-1"}
		stored.ID = "order-1"
		report := &settlementModel.Report{
			OrderID: "order-1",
			Items: []settlementModel.ItemResult{
				{Status: settlementModel.StatusFailed, Step: settlementModel.StepInventory, Reason: "product not found"},
				{Status: settlementModel.StatusSettled},
				{Status: settlementModel.StatusSettled},
			},
		}
		report.Tally()

		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)
		repo.On("GetByID", ctx, "order-1").Return(stored, nil)
		repo.On("ListByUser", ctx, "user-1").Return([]model.Order{*stored}, nil)
		settler.On("Settle", mock.Anything, stored).Return(report).Once()

		order, err := svc.PlaceOrder(ctx, validInput())

		require.NoError(t, err)
		assert.Same(t, stored, order)
		require.Equal(t, 1, report.Failed)

		orders, err := svc.ListOrders(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, "PEB-STORED1", orders[0].OrderNo)
		settler.AssertExpectations(t)
	})

	t.Run("Rejects invalid input before any write", func(t *testing.T) {
		cases := map[string]func(in *PlaceOrderInput){
			"no items":         func(in *PlaceOrderInput) { in.Items = nil },
			"zero quantity":    func(in *PlaceOrderInput) { in.Items[0].Quantity = 0 },
			"negative price":   func(in *PlaceOrderInput) { in.Items[1].Price = decimal.NewFromInt(-1) },
			"missing product":  func(in *PlaceOrderInput) { in.Items[2].ProductID = "" },
			"missing vendor":   func(in *PlaceOrderInput) { in.Items[2].VendorID = " " },
			"negative total":   func(in *PlaceOrderInput) { in.Total = decimal.NewFromInt(-5) },
			"no payment":       func(in *PlaceOrderInput) { in.PaymentMethod = "" },
			"no delivery":      func(in *PlaceOrderInput) { in.DeliveryMethod = "" },
			"no address":       func(in *PlaceOrderInput) { in.AddressID = "" },
			"anonymous caller": func(in *PlaceOrderInput) { in.UserID = "" },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				repo := new(MockOrderRepository)
				settler := new(MockSettler)
				svc := newTestService(repo, settler, nil)

				in := validInput()
				mutate(&in)
				_, err := svc.PlaceOrder(ctx, in)

				assert.ErrorIs(t, err, model.ErrInvalidOrder)
				repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("Storage failure returns generic error and skips settlement", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		svc := newTestService(repo, settler, nil)

		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(errors.New("pq: relation \"order_items\" does not exist"))

		order, err := svc.PlaceOrder(ctx, validInput())

		assert.Nil(t, order)
		assert.Equal(t, model.ErrCreateFailed, err)
		settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	})

	t.Run("Foreign address is invalid", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := newTestService(repo, new(MockSettler), nil)

		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(model.ErrAddressNotFound)

		_, err := svc.PlaceOrder(ctx, validInput())
		assert.ErrorIs(t, err, model.ErrInvalidOrder)
	})

	t.Run("Skips order numbers already in use", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		svc := newTestService(repo, settler, nil)

		numbers := []string{"PEB-AAAAAAA", "PEB-BBBBBBB"}
		svc.genNo = func() (string, error) {
			n := numbers[0]
			numbers = numbers[1:]
			return n, nil
		}
		repo.On("ExistsByOrderNo", ctx, "PEB-AAAAAAA").Return(true, nil)
		repo.On("ExistsByOrderNo", ctx, "PEB-BBBBBBB").Return(false, nil)
		repo.On("Create", ctx, mock.MatchedBy(func(o *model.Order) bool { return o.OrderNo == "PEB-BBBBBBB" })).Return(nil)
		repo.On("GetByID", ctx, "order-1").Return(nil, errors.New("replica lag"))
		settler.On("Settle", mock.Anything, mock.Anything).Return(nil)

		order, err := svc.PlaceOrder(ctx, validInput())

		require.NoError(t, err)
		assert.Equal(t, "PEB-BBBBBBB", order.OrderNo)
	})

	t.Run("Regenerates after a unique index collision", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		svc := newTestService(repo, settler, nil)

		var attempted []string
		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).
			Run(func(args mock.Arguments) { attempted = append(attempted, args.Get(1).(*model.Order).OrderNo) }).
			Return(repository.ErrOrderNoTaken).Once()
		repo.On("Create", ctx, mock.Anything).
			Run(func(args mock.Arguments) { attempted = append(attempted, args.Get(1).(*model.Order).OrderNo) }).
			Return(nil).Once()
		repo.On("GetByID", ctx, mock.Anything).Return(nil, errors.New("not yet visible"))
		settler.On("Settle", mock.Anything, mock.Anything).Return(nil)

		_, err := svc.PlaceOrder(ctx, validInput())

		require.NoError(t, err)
		require.Len(t, attempted, 2)
		assert.Regexp(t, orderNoPattern, attempted[1])
	})
}

func TestPlaceOrderIdempotency(t *testing.T) {
	ctx := context.Background()
	key := "order:idem:user-1:checkout-42"

	t.Run("First request reserves and records the key", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		c := new(MockCache)
		svc := newTestService(repo, settler, c)

		c.On("SetNX", ctx, key, idempotencyRecord{}, 2*time.Minute).Return(true, nil)
		c.On("Set", ctx, key, idempotencyRecord{OrderID: "order-1"}, 24*time.Hour).Return(nil)
		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)
		repo.On("GetByID", ctx, "order-1").Return(&model.Order{OrderNo: "PEB-AAAAAAA"}, nil)
		settler.On("Settle", mock.Anything, mock.Anything).Return(nil)

		in := validInput()
		in.IdempotencyKey = "checkout-42"
		_, err := svc.PlaceOrder(ctx, in)

		require.NoError(t, err)
		c.AssertExpectations(t)
	})

	t.Run("Replay returns the original order without side effects", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		c := new(MockCache)
		svc := newTestService(repo, settler, c)

		original := &model.Order{OrderNo: "PEB-AAAAAAA"}
		original.ID = "order-1"

		c.On("SetNX", ctx, key, mock.Anything, mock.Anything).Return(false, nil)
		c.On("Get", ctx, key, mock.AnythingOfType("*service.idempotencyRecord")).
			Run(func(args mock.Arguments) {
				*args.Get(2).(*idempotencyRecord) = idempotencyRecord{OrderID: "order-1"}
			}).Return(nil)
		repo.On("GetByID", ctx, "order-1").Return(original, nil)

		in := validInput()
		in.IdempotencyKey = "checkout-42"
		order, err := svc.PlaceOrder(ctx, in)

		require.NoError(t, err)
		assert.Same(t, original, order)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	})

	t.Run("Replay while first request is in flight", func(t *testing.T) {
		repo := new(MockOrderRepository)
		c := new(MockCache)
		svc := newTestService(repo, new(MockSettler), c)

		c.On("SetNX", ctx, key, mock.Anything, mock.Anything).Return(false, nil)
		c.On("Get", ctx, key, mock.Anything).Return(nil)

		in := validInput()
		in.IdempotencyKey = "checkout-42"
		_, err := svc.PlaceOrder(ctx, in)

		assert.ErrorIs(t, err, model.ErrDuplicateInFlight)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Failed creation releases the key", func(t *testing.T) {
		repo := new(MockOrderRepository)
		c := new(MockCache)
		svc := newTestService(repo, new(MockSettler), c)

		c.On("SetNX", ctx, key, mock.Anything, mock.Anything).Return(true, nil)
		c.On("Delete", ctx, key).Return(nil)
		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(errors.New("connection reset"))

		in := validInput()
		in.IdempotencyKey = "checkout-42"
		_, err := svc.PlaceOrder(ctx, in)

		assert.ErrorIs(t, err, model.ErrCreateFailed)
		c.AssertExpectations(t)
	})

	t.Run("Failed record releases the reservation", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		c := new(MockCache)
		svc := newTestService(repo, settler, c)

		c.On("SetNX", ctx, key, mock.Anything, mock.Anything).Return(true, nil)
		c.On("Set", ctx, key, idempotencyRecord{OrderID: "order-1"}, 24*time.Hour).Return(errors.New("redis timeout"))
		c.On("Delete", ctx, key).Return(nil).Once()
		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)
		repo.On("GetByID", ctx, "order-1").Return(nil, errors.New("skip reload"))
		settler.On("Settle", mock.Anything, mock.Anything).Return(nil)

		in := validInput()
		in.IdempotencyKey = "checkout-42"
		order, err := svc.PlaceOrder(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, "order-1", order.ID)
		c.AssertExpectations(t)
	})

	t.Run("Without a key two submissions create two orders", func(t *testing.T) {
		repo := new(MockOrderRepository)
		settler := new(MockSettler)
		c := new(MockCache)
		svc := newTestService(repo, settler, c)

		repo.On("ExistsByOrderNo", ctx, mock.Anything).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)
		repo.On("GetByID", ctx, mock.Anything).Return(nil, errors.New("skip reload"))
		settler.On("Settle", mock.Anything, mock.Anything).Return(nil)

		_, err := svc.PlaceOrder(ctx, validInput())
		require.NoError(t, err)
		_, err = svc.PlaceOrder(ctx, validInput())
		require.NoError(t, err)

		repo.AssertNumberOfCalls(t, "Create", 2)
		c.AssertNotCalled(t, "SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestResettle(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	settler := new(MockSettler)
	svc := newTestService(repo, settler, nil)

	order := &model.Order{OrderNo: "PEB-AAAAAAA"}
	order.ID = "order-1"
	repo.On("GetByID", ctx, "order-1").Return(order, nil)
	repo.On("GetByID", ctx, "missing").Return(nil, model.ErrOrderNotFound)
	settler.On("Settle", ctx, order).Return(&settlementModel.Report{OrderID: "order-1", Duplicates: 2})

	report, err := svc.Resettle(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Duplicates)

	_, err = svc.Resettle(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestGenerateOrderNo(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		no, err := GenerateOrderNo("PEB-", 7)
		require.NoError(t, err)
		assert.Regexp(t, orderNoPattern, no)
		seen[no] = true
	}
	assert.Greater(t, len(seen), 190)
}
