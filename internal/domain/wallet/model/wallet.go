package model

import (
	"errors"

	baseModel "peb_market/pkg/model"

	"github.com/shopspring/decimal"
)

var (
	ErrVendorNotFound           = errors.New("vendor not found")
	ErrInvalidAmount            = errors.New("amount must be a positive number")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrPaymentFailed            = errors.New("payment failed")
)

// Vendor 商家及其钱包余额
type Vendor struct {
	baseModel.BaseModel
	UserID           string          `gorm:"type:uuid;uniqueIndex;not null" json:"userId"`
	Name             string          `gorm:"type:varchar(200)" json:"name"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`        // 可用余额（可提现/推广消费），含充值
	PendingBalance   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"pendingBalance"` // 待结算余额（销售入账，尚未释放）
}

// 交易类型
const (
	TypeCredit = "CREDIT"
	TypeDebit  = "DEBIT"
)

// 交易状态
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Transaction 钱包流水，只追加不修改
type Transaction struct {
	baseModel.Ledger
	VendorID       string          `gorm:"type:uuid;index;not null" json:"vendorId"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Type           string          `gorm:"type:varchar(10);not null" json:"type"`
	Status         string          `gorm:"type:varchar(12);not null" json:"status"`
	Description    string          `gorm:"type:varchar(255)" json:"description"`
	ReferenceID    *string         `gorm:"type:varchar(64);index" json:"referenceId,omitempty"` // 例如产生该笔入账的订单ID
	IdempotencyKey *string         `gorm:"type:varchar(128);uniqueIndex" json:"-"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}
