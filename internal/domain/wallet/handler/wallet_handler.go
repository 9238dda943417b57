package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"peb_market/internal/domain/wallet/model"
	"peb_market/internal/domain/wallet/service"
	"peb_market/internal/pkg/middleware"
	"peb_market/pkg/response"
	"peb_market/pkg/utils"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	service service.WalletService
}

func NewWalletHandler(s service.WalletService) *WalletHandler {
	return &WalletHandler{service: s}
}

// TopUpInput amount 同时接受数字和字符串
type TopUpInput struct {
	Amount        json.RawMessage `json:"amount" swaggertype:"string" example:"250.00"`
	PaymentMethod string          `json:"paymentMethod" binding:"required"`
}

// GetWallet 获取钱包
// @Summary 获取商家钱包余额与流水
// @Tags Wallet
// @Security ApiKeyAuth
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} response.Response{data=service.Summary}
// @Router /wallet [get]
func (h *WalletHandler) GetWallet(c *gin.Context) {
	p := utils.Pagination{Page: 1}
	if err := c.ShouldBindQuery(&p); err != nil {
		p = utils.Pagination{Page: 1}
	}

	summary, err := h.service.GetWallet(c.Request.Context(), middleware.CurrentUserID(c), p.Page, p.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}

// TopUp 充值
// @Summary 钱包充值（模拟支付）
// @Tags Wallet
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param input body TopUpInput true "Top-up"
// @Success 200 {object} response.Response{data=service.TopUpResult}
// @Router /wallet/topup [post]
func (h *WalletHandler) TopUp(c *gin.Context) {
	var input TopUpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	raw := strings.Trim(strings.TrimSpace(string(input.Amount)), `"`)
	result, err := h.service.TopUp(c.Request.Context(), middleware.CurrentUserID(c), raw, input.PaymentMethod)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// Reconcile 对账
// @Summary 商家余额对账
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Vendor ID"
// @Success 200 {object} response.Response
// @Router /admin/vendors/{id}/reconcile [get]
func (h *WalletHandler) Reconcile(c *gin.Context) {
	rec, err := h.service.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"reconciliation": rec,
		"drift":          rec.Drift(),
		"consistent":     rec.Consistent(),
	})
}

func (h *WalletHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrVendorNotFound):
		response.Error(c, http.StatusNotFound, response.ErrVendorNotFound, "Vendor not found")
	case errors.Is(err, model.ErrInvalidAmount):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidAmount, err.Error())
	case errors.Is(err, model.ErrUnsupportedPaymentMethod):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
	case errors.Is(err, model.ErrPaymentFailed):
		response.Error(c, http.StatusPaymentRequired, response.ErrPaymentFailed, "Payment failed")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "Internal server error")
	}
}
