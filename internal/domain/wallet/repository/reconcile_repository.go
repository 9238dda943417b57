package repository

import (
	"context"
	"database/sql"
	"errors"

	"peb_market/internal/domain/wallet/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Reconciliation 商家余额与流水汇总的对账结果
type Reconciliation struct {
	VendorID         string          `db:"vendor_id" json:"vendorId"`
	AvailableBalance decimal.Decimal `db:"available_balance" json:"balance"`
	PendingBalance   decimal.Decimal `db:"pending_balance" json:"pendingBalance"`
	LedgerAvailable  decimal.Decimal `db:"ledger_available" json:"ledgerAvailable"`
	LedgerPending    decimal.Decimal `db:"ledger_pending" json:"ledgerPending"`
}

// Drift 余额合计与流水合计的差额，0 表示一致
func (r *Reconciliation) Drift() decimal.Decimal {
	return r.AvailableBalance.Add(r.PendingBalance).Sub(r.LedgerAvailable.Add(r.LedgerPending))
}

// Consistent 可用与待结算两个维度分别一致
func (r *Reconciliation) Consistent() bool {
	return r.AvailableBalance.Equal(r.LedgerAvailable) && r.PendingBalance.Equal(r.LedgerPending)
}

type ReconcileRepository interface {
	Reconcile(ctx context.Context, vendorID string) (*Reconciliation, error)
}

const reconcileQuery = `
SELECT v.id AS vendor_id,
       v.available_balance,
       v.pending_balance,
       COALESCE(SUM(CASE WHEN t.status = 'COMPLETED' AND t.type = 'CREDIT' THEN t.amount
                         WHEN t.status = 'COMPLETED' AND t.type = 'DEBIT' THEN -t.amount
                         ELSE 0 END), 0) AS ledger_available,
       COALESCE(SUM(CASE WHEN t.status = 'PENDING' AND t.type = 'CREDIT' THEN t.amount
                         WHEN t.status = 'PENDING' AND t.type = 'DEBIT' THEN -t.amount
                         ELSE 0 END), 0) AS ledger_pending
FROM vendors v
LEFT JOIN wallet_transactions t ON t.vendor_id = v.id
WHERE v.id = $1 AND v.deleted_at IS NULL
GROUP BY v.id, v.available_balance, v.pending_balance`

type reconcileRepository struct {
	db *sqlx.DB
}

func NewReconcileRepository(db *sqlx.DB) ReconcileRepository {
	return &reconcileRepository{db: db}
}

func (r *reconcileRepository) Reconcile(ctx context.Context, vendorID string) (*Reconciliation, error) {
	var rec Reconciliation
	if err := r.db.GetContext(ctx, &rec, reconcileQuery, vendorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrVendorNotFound
		}
		return nil, err
	}
	return &rec, nil
}
