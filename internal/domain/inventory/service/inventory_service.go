package service

import (
	"context"
	"fmt"

	"peb_market/internal/domain/inventory/model"
	"peb_market/internal/domain/inventory/repository"
)

// Adjustment 一次库存扣减的结果，后续记账和通知需要商品名和商家
type Adjustment struct {
	ProductID string
	Name      string
	VendorID  string
	NewStock  int
	SoldCount int
	Duplicate bool // 该订单项此前已扣减
}

type InventoryService interface {
	DecrementStock(ctx context.Context, orderItemID, productID string, quantity int) (*Adjustment, error)
}

type inventoryService struct {
	repo repository.ProductRepository
}

func NewInventoryService(repo repository.ProductRepository) InventoryService {
	return &inventoryService{repo: repo}
}

// DecrementStock 扣减库存并累加销量
// 商品不存在返回 model.ErrProductNotFound，库存不足返回 model.ErrInsufficientStock，两种情况库存均不变
func (s *inventoryService) DecrementStock(ctx context.Context, orderItemID, productID string, quantity int) (*Adjustment, error) {
	if quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	product, duplicate, err := s.repo.ApplyMovement(ctx, orderItemID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("decrement stock of product %s: %w", productID, err)
	}

	return &Adjustment{
		ProductID: product.ID,
		Name:      product.Name,
		VendorID:  product.VendorID,
		NewStock:  product.Stock,
		SoldCount: product.SoldCount,
		Duplicate: duplicate,
	}, nil
}
