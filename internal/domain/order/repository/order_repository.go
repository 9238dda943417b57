package repository

import (
	"context"
	"errors"

	"peb_market/internal/domain/order/model"

	"gorm.io/gorm"
)

// ErrOrderNoTaken 订单号与已有订单冲突，调用方应重新生成
var ErrOrderNoTaken = errors.New("order number already taken")

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]model.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create 在一个事务内校验地址归属并写入订单和订单项，任一步失败都不会留下数据
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Address{}).
			Where("id = ? AND user_id = ?", order.AddressID, order.UserID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return model.ErrAddressNotFound
		}

		// Items 随订单一起写入
		return tx.Create(order).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrOrderNoTaken
	}
	return err
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Address").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ExistsByOrderNo 包含已软删除的订单，唯一索引同样覆盖它们
func (r *orderRepository) ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Unscoped().
		Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByUser 用户订单历史，按创建时间倒序，带商品、地址和买家信息
func (r *orderRepository) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at")
		}).
		Preload("Items.Product").
		Preload("Address").
		Preload("User").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
