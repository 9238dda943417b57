package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"peb_market/internal/domain/order/model"
	"peb_market/internal/domain/order/service"
	settlementModel "peb_market/internal/domain/settlement/model"
	"peb_market/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) PlaceOrder(ctx context.Context, in service.PlaceOrderInput) (*model.Order, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderService) Resettle(ctx context.Context, orderID string) (*settlementModel.Report, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlementModel.Report), args.Error(1)
}

const orderBody = `{
	"items": [{"productId": "prod-a", "vendorId": "vendor-a", "quantity": 2, "price": 100}],
	"subtotal": 200, "delivery": "5.00", "savings": 0, "total": 205,
	"paymentMethod": "card", "deliveryMethod": "standard", "addressId": "addr-1"
}`

func setupRouter(svc service.OrderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewOrderHandler(svc)
	withUser := func(c *gin.Context) { c.Set("userID", "user-1") }
	r.POST("/orders", withUser, h.PlaceOrder)
	r.GET("/orders", withUser, h.ListOrders)
	r.POST("/admin/orders/:id/settle", h.Resettle)
	return r
}

func postOrder(r http.Handler, body, idemKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPlaceOrderHandler(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		svc := new(MockOrderService)
		r := setupRouter(svc)

		order := &model.Order{OrderNo: "PEB-AB12CD3", Status: model.OrderStatusPending}
		svc.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(in service.PlaceOrderInput) bool {
			return in.UserID == "user-1" &&
				in.IdempotencyKey == "checkout-42" &&
				len(in.Items) == 1 &&
				in.Items[0].Quantity == 2 &&
				in.DeliveryFee.String() == "5" &&
				in.Total.String() == "205"
		})).Return(order, nil)

		w := postOrder(r, orderBody, "checkout-42")

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, response.CodeSuccess, resp.Code)
		assert.Contains(t, w.Body.String(), `"orderNo":"PEB-AB12CD3"`)
	})

	t.Run("Error mapping", func(t *testing.T) {
		cases := []struct {
			err      error
			status   int
			bizCode  int
			contains string
		}{
			{model.ErrInvalidOrder, http.StatusBadRequest, response.ErrOrderInvalid, "invalid order"},
			{model.ErrDuplicateInFlight, http.StatusConflict, response.ErrOrderDuplicate, "still being processed"},
			{model.ErrCreateFailed, http.StatusInternalServerError, response.ErrOrderCreate, "Failed to create order"},
		}
		for _, tc := range cases {
			svc := new(MockOrderService)
			r := setupRouter(svc)
			svc.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil, tc.err)

			w := postOrder(r, orderBody, "")

			assert.Equal(t, tc.status, w.Code)
			var resp response.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.bizCode, resp.Code)
			assert.Contains(t, resp.Message, tc.contains)
		}
	})

	t.Run("Missing amounts", func(t *testing.T) {
		cases := []struct {
			name     string
			body     string
			contains string
		}{
			{
				"Item without price",
				`{"items":[{"productId":"p","vendorId":"v","quantity":2}],"subtotal":0,"delivery":0,"savings":0,"total":0,"paymentMethod":"card","deliveryMethod":"std","addressId":"a"}`,
				"item 0: price is required",
			},
			{
				"Null price",
				`{"items":[{"productId":"p","vendorId":"v","quantity":2,"price":null}],"subtotal":0,"delivery":0,"savings":0,"total":0,"paymentMethod":"card","deliveryMethod":"std","addressId":"a"}`,
				"item 0: price is required",
			},
			{
				"Order without total",
				`{"items":[{"productId":"p","vendorId":"v","quantity":2,"price":"10.00"}],"subtotal":20,"delivery":0,"savings":0,"paymentMethod":"card","deliveryMethod":"std","addressId":"a"}`,
				"total is required",
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				svc := new(MockOrderService)
				r := setupRouter(svc)

				w := postOrder(r, tc.body, "")

				assert.Equal(t, http.StatusBadRequest, w.Code)
				var resp response.Response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, response.ErrOrderInvalid, resp.Code)
				assert.Contains(t, resp.Message, tc.contains)
				svc.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("Zero price is allowed", func(t *testing.T) {
		svc := new(MockOrderService)
		r := setupRouter(svc)

		svc.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(in service.PlaceOrderInput) bool {
			return len(in.Items) == 1 && in.Items[0].Price.IsZero()
		})).Return(&model.Order{OrderNo: "PEB-FREE001"}, nil)

		w := postOrder(r, `{"items":[{"productId":"p","vendorId":"v","quantity":1,"price":"0"}],"subtotal":0,"delivery":0,"savings":0,"total":0,"paymentMethod":"card","deliveryMethod":"std","addressId":"a"}`, "")

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		svc := new(MockOrderService)
		r := setupRouter(svc)

		w := postOrder(r, `{"items": "nope"}`, "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	})
}

func TestListOrdersHandler(t *testing.T) {
	svc := new(MockOrderService)
	r := setupRouter(svc)

	svc.On("ListOrders", mock.Anything, "user-1").Return([]model.Order{{OrderNo: "PEB-NEWEST1"}, {OrderNo: "PEB-OLDEST1"}}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Less(t, strings.Index(body, "PEB-NEWEST1"), strings.Index(body, "PEB-OLDEST1"))
}

func TestResettleHandler(t *testing.T) {
	svc := new(MockOrderService)
	r := setupRouter(svc)

	svc.On("Resettle", mock.Anything, "order-1").Return(&settlementModel.Report{OrderID: "order-1", Settled: 1}, nil)
	svc.On("Resettle", mock.Anything, "missing").Return(nil, model.ErrOrderNotFound)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/orders/order-1/settle", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"settled":1`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/orders/missing/settle", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
