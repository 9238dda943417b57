package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"peb_market/internal/domain/wallet/model"
	"peb_market/internal/domain/wallet/repository"
	"peb_market/internal/domain/wallet/strategy"
	"peb_market/pkg/cache"
	"peb_market/pkg/metrics"
	"peb_market/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionView 钱包页展示的流水
type TransactionView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReferenceID *string         `json:"referenceId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Summary 钱包概览
type Summary struct {
	VendorID       string            `json:"vendorId"`
	Balance        decimal.Decimal   `json:"balance"`
	PendingBalance decimal.Decimal   `json:"pendingBalance"`
	Transactions   []TransactionView `json:"transactions"`
	Total          int64             `json:"total"`
}

// TopUpResult 充值结果
type TopUpResult struct {
	NewBalance  decimal.Decimal    `json:"newBalance"`
	Transaction *model.Transaction `json:"transaction"`
}

// Options 钱包服务参数
type Options struct {
	MaxTopUp    decimal.Decimal // 为 0 表示不限
	CacheTTL    time.Duration
	HistorySize int
}

type WalletService interface {
	GetWallet(ctx context.Context, userID string, page, limit int) (*Summary, error)
	TopUp(ctx context.Context, userID, rawAmount, paymentMethod string) (*TopUpResult, error)
	CreditPending(ctx context.Context, credit repository.PendingCredit) (*repository.CreditResult, error)
	Reconcile(ctx context.Context, vendorID string) (*repository.Reconciliation, error)
	RegisterStrategy(method string, s strategy.PaymentStrategy)
}

type walletService struct {
	repo       repository.LedgerRepository
	reconciler repository.ReconcileRepository
	cache      cache.CacheService
	strategies map[string]strategy.PaymentStrategy
	opts       Options
	log        *zap.Logger
	metrics    *metrics.MetricsCollector
}

// NewWalletService 创建钱包服务；cache、reconciler、metrics 可为 nil
func NewWalletService(repo repository.LedgerRepository, reconciler repository.ReconcileRepository, c cache.CacheService, opts Options, log *zap.Logger, m *metrics.MetricsCollector) WalletService {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 20
	}
	return &walletService{
		repo:       repo,
		reconciler: reconciler,
		cache:      c,
		strategies: make(map[string]strategy.PaymentStrategy),
		opts:       opts,
		log:        log.Named("wallet"),
		metrics:    m,
	}
}

// RegisterStrategy 注册充值支付方式
func (s *walletService) RegisterStrategy(method string, st strategy.PaymentStrategy) {
	s.strategies[method] = st
}

func walletCacheKey(userID string) string {
	return "wallet:" + userID
}

// GetWallet 获取钱包余额和流水（第一页走缓存）
func (s *walletService) GetWallet(ctx context.Context, userID string, page, limit int) (*Summary, error) {
	p := utils.Pagination{Page: page, Limit: limit}
	offset, limit := p.GetPageOffset(s.opts.HistorySize)
	cacheable := s.cache != nil && p.Page == 1 && limit == s.opts.HistorySize

	if cacheable {
		var cached Summary
		if err := s.cache.Get(ctx, walletCacheKey(userID), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("Wallet cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	vendor, err := s.repo.GetVendorByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	txns, total, err := s.repo.ListTransactions(ctx, vendor.ID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}

	summary := &Summary{
		VendorID:       vendor.ID,
		Balance:        vendor.AvailableBalance,
		PendingBalance: vendor.PendingBalance,
		Transactions:   make([]TransactionView, 0, len(txns)),
		Total:          total,
	}
	for _, t := range txns {
		summary.Transactions = append(summary.Transactions, TransactionView{
			ID:          t.ID,
			Type:        t.Type,
			Status:      t.Status,
			Amount:      t.Amount,
			Description: t.Description,
			ReferenceID: t.ReferenceID,
			CreatedAt:   t.CreatedAt,
		})
	}

	if cacheable {
		if err := s.cache.Set(ctx, walletCacheKey(userID), summary, s.opts.CacheTTL); err != nil {
			s.log.Warn("Wallet cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return summary, nil
}

// ParseAmount 解析金额，非数字、非正数或超过上限都返回 model.ErrInvalidAmount
func ParseAmount(raw string, max decimal.Decimal) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", model.ErrInvalidAmount, raw)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrInvalidAmount, raw)
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return decimal.Zero, fmt.Errorf("%w: exceeds limit %s", model.ErrInvalidAmount, max.StringFixed(2))
	}
	return amount, nil
}

// TopUp 充值：校验金额 -> 模拟支付 -> 增加可用余额并记录 COMPLETED 流水
// 支付失败时记录 FAILED 流水，余额不变
func (s *walletService) TopUp(ctx context.Context, userID, rawAmount, paymentMethod string) (*TopUpResult, error) {
	// 1. 校验（任何修改之前）
	amount, err := ParseAmount(rawAmount, s.opts.MaxTopUp)
	if err != nil {
		s.metrics.RecordTopUp("rejected")
		return nil, err
	}
	payment, ok := s.strategies[paymentMethod]
	if !ok {
		s.metrics.RecordTopUp("rejected")
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedPaymentMethod, paymentMethod)
	}

	vendor, err := s.repo.GetVendorByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 2. 支付
	description := fmt.Sprintf("Wallet top-up of %s via %s", amount.StringFixed(2), paymentMethod)
	reference, err := payment.Charge(ctx, strategy.ChargeRequest{
		VendorID: vendor.ID,
		Amount:   amount,
		Method:   paymentMethod,
	})
	if err != nil {
		s.metrics.RecordTopUp(model.StatusFailed)
		if _, recErr := s.repo.RecordFailed(ctx, vendor.ID, amount, description+" (failed)", nil); recErr != nil {
			s.log.Error("Failed to record failed top-up",
				zap.String("vendor_id", vendor.ID), zap.Error(recErr))
		}
		s.invalidate(ctx, userID)
		return nil, fmt.Errorf("%w: %v", model.ErrPaymentFailed, err)
	}

	// 3. 入账
	updated, txn, err := s.repo.CreditAvailable(ctx, vendor.ID, amount, description, &reference)
	if err != nil {
		// 支付已成功但入账失败，需要人工对账
		s.log.Error("Top-up charged but credit failed",
			zap.String("vendor_id", vendor.ID),
			zap.String("payment_reference", reference),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err))
		return nil, fmt.Errorf("credit top-up: %w", err)
	}
	s.metrics.RecordTopUp(model.StatusCompleted)
	s.invalidate(ctx, userID)

	s.log.Info("Wallet topped up",
		zap.String("vendor_id", vendor.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("payment_method", paymentMethod))

	return &TopUpResult{NewBalance: updated.AvailableBalance, Transaction: txn}, nil
}

// CreditPending 销售入账到待结算余额
func (s *walletService) CreditPending(ctx context.Context, credit repository.PendingCredit) (*repository.CreditResult, error) {
	if credit.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidAmount, credit.Amount.String())
	}

	result, err := s.repo.CreditPending(ctx, credit)
	if err != nil {
		return nil, fmt.Errorf("credit pending for vendor %s: %w", credit.VendorID, err)
	}
	if !result.Duplicate && result.Vendor != nil {
		s.invalidate(ctx, result.Vendor.UserID)
	}
	return result, nil
}

// Reconcile 对账
func (s *walletService) Reconcile(ctx context.Context, vendorID string) (*repository.Reconciliation, error) {
	if s.reconciler == nil {
		return nil, errors.New("reconciliation is not configured")
	}
	return s.reconciler.Reconcile(ctx, vendorID)
}

func (s *walletService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, walletCacheKey(userID)); err != nil {
		s.log.Warn("Wallet cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
