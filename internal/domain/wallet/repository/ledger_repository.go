package repository

import (
	"context"
	"errors"

	"peb_market/internal/domain/wallet/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PendingCredit 一笔待结算入账
type PendingCredit struct {
	VendorID       string
	Amount         decimal.Decimal
	Description    string
	ReferenceID    string
	IdempotencyKey string
}

// CreditResult 入账结果
type CreditResult struct {
	Transaction *model.Transaction
	Vendor      *model.Vendor
	Duplicate   bool // 幂等键已存在，本次未重复入账
}

type LedgerRepository interface {
	GetVendor(ctx context.Context, id string) (*model.Vendor, error)
	GetVendorByUserID(ctx context.Context, userID string) (*model.Vendor, error)
	CreditPending(ctx context.Context, credit PendingCredit) (*CreditResult, error)
	CreditAvailable(ctx context.Context, vendorID string, amount decimal.Decimal, description string, referenceID *string) (*model.Vendor, *model.Transaction, error)
	RecordFailed(ctx context.Context, vendorID string, amount decimal.Decimal, description string, referenceID *string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, vendorID string, offset, limit int) ([]model.Transaction, int64, error)
}

var errAlreadyApplied = errors.New("ledger entry already applied")

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) GetVendor(ctx context.Context, id string) (*model.Vendor, error) {
	return getVendor(r.db.WithContext(ctx), "id = ?", id)
}

func (r *ledgerRepository) GetVendorByUserID(ctx context.Context, userID string) (*model.Vendor, error) {
	return getVendor(r.db.WithContext(ctx), "user_id = ?", userID)
}

// CreditPending 增加待结算余额并追加一条 PENDING 入账流水
// 余额更新与流水写入在同一事务内；幂等键冲突时回滚余额更新，返回已有流水
func (r *ledgerRepository) CreditPending(ctx context.Context, credit PendingCredit) (*CreditResult, error) {
	txn := &model.Transaction{
		VendorID:       credit.VendorID,
		Amount:         credit.Amount,
		Type:           model.TypeCredit,
		Status:         model.StatusPending,
		Description:    credit.Description,
		ReferenceID:    optional(credit.ReferenceID),
		IdempotencyKey: optional(credit.IdempotencyKey),
	}

	var vendor *model.Vendor
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := addToBalance(tx, "pending_balance", credit.VendorID, credit.Amount); err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(txn)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errAlreadyApplied
		}

		var err error
		vendor, err = getVendor(tx, "id = ?", credit.VendorID)
		return err
	})

	if errors.Is(err, errAlreadyApplied) {
		return r.existingCredit(ctx, credit)
	}
	if err != nil {
		return nil, err
	}
	return &CreditResult{Transaction: txn, Vendor: vendor}, nil
}

func (r *ledgerRepository) existingCredit(ctx context.Context, credit PendingCredit) (*CreditResult, error) {
	var existing model.Transaction
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", credit.IdempotencyKey).First(&existing).Error; err != nil {
		return nil, err
	}
	vendor, err := r.GetVendor(ctx, credit.VendorID)
	if err != nil {
		return nil, err
	}
	return &CreditResult{Transaction: &existing, Vendor: vendor, Duplicate: true}, nil
}

// CreditAvailable 直接增加可用余额并追加一条 COMPLETED 入账流水（充值）
func (r *ledgerRepository) CreditAvailable(ctx context.Context, vendorID string, amount decimal.Decimal, description string, referenceID *string) (*model.Vendor, *model.Transaction, error) {
	txn := &model.Transaction{
		VendorID:    vendorID,
		Amount:      amount,
		Type:        model.TypeCredit,
		Status:      model.StatusCompleted,
		Description: description,
		ReferenceID: referenceID,
	}

	var vendor *model.Vendor
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := addToBalance(tx, "available_balance", vendorID, amount); err != nil {
			return err
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}

		var err error
		vendor, err = getVendor(tx, "id = ?", vendorID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return vendor, txn, nil
}

// RecordFailed 追加一条 FAILED 流水，余额不变
func (r *ledgerRepository) RecordFailed(ctx context.Context, vendorID string, amount decimal.Decimal, description string, referenceID *string) (*model.Transaction, error) {
	txn := &model.Transaction{
		VendorID:    vendorID,
		Amount:      amount,
		Type:        model.TypeCredit,
		Status:      model.StatusFailed,
		Description: description,
		ReferenceID: referenceID,
	}
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions 分页获取流水，按时间倒序
func (r *ledgerRepository) ListTransactions(ctx context.Context, vendorID string, offset, limit int) ([]model.Transaction, int64, error) {
	var txns []model.Transaction
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Transaction{}).Where("vendor_id = ?", vendorID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Where("vendor_id = ?", vendorID).Order("created_at DESC").Offset(offset).Limit(limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// addToBalance 在数据库层做相对更新，避免并发入账丢失
func addToBalance(tx *gorm.DB, column, vendorID string, amount decimal.Decimal) error {
	result := tx.Model(&model.Vendor{}).
		Where("id = ?", vendorID).
		UpdateColumn(column, gorm.Expr(column+" + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrVendorNotFound
	}
	return nil
}

func getVendor(tx *gorm.DB, query string, arg interface{}) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := tx.Where(query, arg).First(&vendor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrVendorNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
