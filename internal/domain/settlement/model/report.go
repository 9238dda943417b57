package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 订单项结算状态
const (
	StatusSettled   = "settled"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate" // 此前已结算，本次没有重复扣减或入账
)

// 结算步骤，失败时记录在 ItemResult.Step
const (
	StepInventory    = "inventory"
	StepLedger       = "ledger"
	StepNotification = "notification"
)

// ItemResult 单个订单项的结算结果
type ItemResult struct {
	OrderItemID   string          `json:"orderItemId"`
	ProductID     string          `json:"productId"`
	VendorID      string          `json:"vendorId"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Step          string          `json:"step,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	NewStock      *int            `json:"newStock,omitempty"`
}

// Report 一次订单结算的汇总
type Report struct {
	OrderID    string        `json:"orderId"`
	OrderNo    string        `json:"orderNo"`
	Items      []ItemResult  `json:"items"`
	Settled    int           `json:"settled"`
	Failed     int           `json:"failed"`
	Duplicates int           `json:"duplicates"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	ArchiveURL string        `json:"archiveUrl,omitempty"`
}

// HasFailures 是否有订单项需要人工对账
func (r *Report) HasFailures() bool {
	return r.Failed > 0
}

// Tally 根据 Items 重新统计各状态数量
func (r *Report) Tally() {
	r.Settled, r.Failed, r.Duplicates = 0, 0, 0
	for _, item := range r.Items {
		switch item.Status {
		case StatusSettled:
			r.Settled++
		case StatusDuplicate:
			r.Duplicates++
		default:
			r.Failed++
		}
	}
}

// FailedItems 失败的订单项
func (r *Report) FailedItems() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if item.Status == StatusFailed {
			failed = append(failed, item)
		}
	}
	return failed
}
