package strategy

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest 一次充值扣款请求
type ChargeRequest struct {
	VendorID string
	Amount   decimal.Decimal
	Method   string
}

type PaymentStrategy interface {
	// Charge 向支付方扣款，成功返回支付方流水号
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}
