package repository

import (
	"context"
	"errors"

	"peb_market/internal/domain/inventory/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*model.Product, error)
	// ApplyMovement 为订单项扣减库存；同一订单项重复调用不会重复扣减，返回 duplicate=true
	ApplyMovement(ctx context.Context, orderItemID, productID string, quantity int) (*model.Product, bool, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	return getProduct(r.db.WithContext(ctx), id)
}

func (r *productRepository) ApplyMovement(ctx context.Context, orderItemID, productID string, quantity int) (*model.Product, bool, error) {
	var product *model.Product
	duplicate := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		movement := &model.Movement{
			OrderItemID: orderItemID,
			ProductID:   productID,
			Quantity:    quantity,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_item_id"}},
			DoNothing: true,
		}).Create(movement)
		if result.Error != nil {
			return result.Error
		}

		var err error
		if result.RowsAffected == 0 {
			// 该订单项已扣减过
			duplicate = true
			product, err = getProduct(tx, productID)
			return err
		}

		product, err = decrementStock(tx, productID, quantity)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return product, duplicate, nil
}

// decrementStock 条件更新扣减库存，库存不足时不修改任何数据
func decrementStock(tx *gorm.DB, productID string, quantity int) (*model.Product, error) {
	result := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumns(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", quantity),
			"sold_count": gorm.Expr("sold_count + ?", quantity),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, model.ErrProductNotFound
		}
		return nil, model.ErrInsufficientStock
	}

	return getProduct(tx, productID)
}

func getProduct(tx *gorm.DB, id string) (*model.Product, error) {
	var product model.Product
	if err := tx.Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}
