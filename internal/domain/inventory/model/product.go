package model

import (
	"errors"

	baseModel "peb_market/pkg/model"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
)

// Product 商品（目录服务维护，结算只修改 stock 和 sold_count）
type Product struct {
	baseModel.BaseModel
	VendorID  string          `gorm:"type:uuid;index;not null" json:"vendorId"`
	Name      string          `gorm:"type:varchar(200);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Images    pq.StringArray  `gorm:"type:text[]" json:"images"`
	Stock     int             `gorm:"not null;check:stock >= 0" json:"stock"` // 剩余库存
	SoldCount int             `gorm:"not null;default:0" json:"soldCount"`
}

// Movement 库存扣减流水，每个订单项最多一条，用于结算重试时去重
type Movement struct {
	baseModel.Ledger
	OrderItemID string `gorm:"type:uuid;uniqueIndex;not null" json:"orderItemId"`
	ProductID   string `gorm:"type:uuid;index;not null" json:"productId"`
	Quantity    int    `gorm:"not null" json:"quantity"`
}

func (Movement) TableName() string {
	return "inventory_movements"
}
