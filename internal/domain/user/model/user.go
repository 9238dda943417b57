package model

import baseModel "peb_market/pkg/model"

// 用户角色
const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleAdmin  = "admin" // 运营人员，接收订单汇总通知
)

// User 用户身份信息（由身份服务维护，这里只读）
type User struct {
	baseModel.BaseModel
	Name  string `gorm:"type:varchar(100)" json:"name"`
	Email string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Role  string `gorm:"type:varchar(20);default:'user'" json:"role"`
}
