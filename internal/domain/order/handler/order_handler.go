package handler

import (
	"errors"
	"fmt"
	"net/http"

	"peb_market/internal/domain/order/model"
	"peb_market/internal/domain/order/service"
	"peb_market/internal/pkg/middleware"
	"peb_market/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(s service.OrderService) *OrderHandler {
	return &OrderHandler{service: s}
}

// 金额字段用 NullDecimal，缺失或 null 与 0 区分开
type OrderItemRequest struct {
	ProductID string              `json:"productId"`
	VendorID  string              `json:"vendorId"`
	Quantity  int                 `json:"quantity"`
	Price     decimal.NullDecimal `json:"price" swaggertype:"string" example:"100.00"`
}

type PlaceOrderRequest struct {
	Items          []OrderItemRequest  `json:"items"`
	Subtotal       decimal.NullDecimal `json:"subtotal" swaggertype:"string"`
	Delivery       decimal.NullDecimal `json:"delivery" swaggertype:"string"`
	Savings        decimal.NullDecimal `json:"savings" swaggertype:"string"`
	Total          decimal.NullDecimal `json:"total" swaggertype:"string"`
	PaymentMethod  string              `json:"paymentMethod"`
	DeliveryMethod string              `json:"deliveryMethod"`
	AddressID      string              `json:"addressId"`
}

// missingAmount 返回第一个缺失的金额字段
func (r *PlaceOrderRequest) missingAmount() error {
	for i, item := range r.Items {
		if !item.Price.Valid {
			return fmt.Errorf("%w: item %d: price is required", model.ErrInvalidOrder, i)
		}
	}
	amounts := []struct {
		name  string
		value decimal.NullDecimal
	}{
		{"subtotal", r.Subtotal},
		{"delivery", r.Delivery},
		{"savings", r.Savings},
		{"total", r.Total},
	}
	for _, a := range amounts {
		if !a.value.Valid {
			return fmt.Errorf("%w: %s is required", model.ErrInvalidOrder, a.name)
		}
	}
	return nil
}

// PlaceOrder 下单
// @Summary 下单并结算
// @Tags Order
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "重复提交保护"
// @Param input body PlaceOrderRequest true "Order"
// @Success 201 {object} response.Response{data=model.Order}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /orders [post]
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := req.missingAmount(); err != nil {
		h.fail(c, err)
		return
	}

	in := service.PlaceOrderInput{
		UserID:         middleware.CurrentUserID(c),
		Items:          make([]service.ItemInput, 0, len(req.Items)),
		Subtotal:       req.Subtotal.Decimal,
		DeliveryFee:    req.Delivery.Decimal,
		Savings:        req.Savings.Decimal,
		Total:          req.Total.Decimal,
		PaymentMethod:  req.PaymentMethod,
		DeliveryMethod: req.DeliveryMethod,
		AddressID:      req.AddressID,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, service.ItemInput{
			ProductID: item.ProductID,
			VendorID:  item.VendorID,
			Quantity:  item.Quantity,
			Price:     item.Price.Decimal,
		})
	}

	order, err := h.service.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, order)
}

// ListOrders 订单历史
// @Summary 当前用户的订单，按时间倒序
// @Tags Order
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} response.Response{data=[]model.Order}
// @Router /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.service.ListOrders(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, orders)
}

// Resettle 重新结算
// @Summary 重新结算订单（已完成的订单项会跳过）
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /admin/orders/{id}/settle [post]
func (h *OrderHandler) Resettle(c *gin.Context) {
	report, err := h.service.Resettle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, report)
}

func (h *OrderHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidOrder):
		response.Error(c, http.StatusBadRequest, response.ErrOrderInvalid, err.Error())
	case errors.Is(err, model.ErrDuplicateInFlight):
		response.Error(c, http.StatusConflict, response.ErrOrderDuplicate, err.Error())
	case errors.Is(err, model.ErrOrderNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, "Order not found")
	case errors.Is(err, model.ErrCreateFailed):
		response.Error(c, http.StatusInternalServerError, response.ErrOrderCreate, "Failed to create order")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "Internal server error")
	}
}
