package model

import (
	"errors"

	inventoryModel "peb_market/internal/domain/inventory/model"
	userModel "peb_market/internal/domain/user/model"
	baseModel "peb_market/pkg/model"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrCreateFailed      = errors.New("failed to create order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateInFlight = errors.New("an order with this idempotency key is still being processed")
	ErrAddressNotFound   = errors.New("address not found")
)

const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Order 订单，下单后由结算流程处理库存、商家入账和通知
type Order struct {
	baseModel.BaseModel
	OrderNo        string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"orderNo"`
	UserID         string          `gorm:"type:uuid;index;not null" json:"userId"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	DeliveryFee    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"delivery"`
	Savings        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"savings"`
	Total          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	PaymentMethod  string          `gorm:"type:varchar(32);not null" json:"paymentMethod"`
	DeliveryMethod string          `gorm:"type:varchar(32);not null" json:"deliveryMethod"`
	AddressID      string          `gorm:"type:uuid;not null" json:"addressId"`
	Status         string          `gorm:"type:varchar(20);not null" json:"status"`

	Items   []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Address *Address        `gorm:"foreignKey:AddressID" json:"address,omitempty"`
	User    *userModel.User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// OrderItem 订单项，Total = Price * Quantity
type OrderItem struct {
	baseModel.BaseModel
	OrderID   string          `gorm:"type:uuid;index;not null" json:"orderId"`
	ProductID string          `gorm:"type:uuid;index;not null" json:"productId"`
	VendorID  string          `gorm:"type:uuid;index;not null" json:"vendorId"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Total     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`

	Product *inventoryModel.Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// Address 收货地址（由用户资料维护，这里只读）
type Address struct {
	baseModel.BaseModel
	UserID string `gorm:"type:uuid;index;not null" json:"userId"`
	Label  string `gorm:"type:varchar(50)" json:"label"`
	Line1  string `gorm:"type:varchar(255);not null" json:"line1"`
	Line2  string `gorm:"type:varchar(255)" json:"line2,omitempty"`
	City   string `gorm:"type:varchar(100)" json:"city"`
	Phone  string `gorm:"type:varchar(32)" json:"phone"`
}

// ItemCount 商品件数合计
func (o *Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}
