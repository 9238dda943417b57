package model

import "peb_market/pkg/model"

// 通知类型
const (
	TypeSale     = "sale"      // 商家：商品售出
	TypeNewOrder = "new_order" // 运营：新订单汇总
)

// Notification 站内通知
type Notification struct {
	model.BaseModel
	UserID  string `gorm:"type:uuid;index;not null" json:"userId"`
	Title   string `gorm:"type:varchar(200);not null" json:"title"`
	Message string `gorm:"type:text;not null" json:"message"`
	Type    string `gorm:"type:varchar(32);index" json:"type"`
	Link    string `gorm:"type:varchar(255)" json:"link,omitempty"`
	Read    bool   `json:"read"`
}
