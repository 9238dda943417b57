package repository

import (
	"context"
	"testing"
	"time"

	"peb_market/internal/domain/wallet/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

func vendorRows(available, pending string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "name", "available_balance", "pending_balance"}).
		AddRow("vendor-1", "user-v1", "Kiln & Co", available, pending)
}

func saleCredit() PendingCredit {
	return PendingCredit{
		VendorID:       "vendor-1",
		Amount:         decimal.NewFromInt(200),
		Description:    "Sale of 2 x Clay Teapot (order PEB-AB12CD3)",
		ReferenceID:    "order-1",
		IdempotencyKey: "sale:item-1",
	}
}

func TestCreditPending(t *testing.T) {
	ctx := context.Background()

	t.Run("Credits pending balance and appends a PENDING transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "vendors" SET "pending_balance"=pending_balance \+ \$1 WHERE id = \$2`).
			WithArgs(sqlmock.AnyArg(), "vendor-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "wallet_transactions" .* ON CONFLICT \("idempotency_key"\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT \* FROM "vendors" WHERE id = \$1`).
			WillReturnRows(vendorRows("0", "200"))
		mock.ExpectCommit()

		res, err := repo.CreditPending(ctx, saleCredit())

		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, model.TypeCredit, res.Transaction.Type)
		assert.Equal(t, model.StatusPending, res.Transaction.Status)
		require.NotNil(t, res.Transaction.ReferenceID)
		assert.Equal(t, "order-1", *res.Transaction.ReferenceID)
		assert.Equal(t, "user-v1", res.Vendor.UserID)
		assert.True(t, res.Vendor.PendingBalance.Equal(decimal.NewFromInt(200)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Replay rolls back the balance update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "vendors" SET "pending_balance"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "wallet_transactions"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()
		mock.ExpectQuery(`SELECT \* FROM "wallet_transactions" WHERE idempotency_key = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_id", "amount", "type", "status", "created_at"}).
				AddRow("txn-1", "vendor-1", "200.00", "CREDIT", "PENDING", time.Now()))
		mock.ExpectQuery(`SELECT \* FROM "vendors" WHERE id = \$1`).
			WillReturnRows(vendorRows("0", "200"))

		res, err := repo.CreditPending(ctx, saleCredit())

		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, "txn-1", res.Transaction.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown vendor", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "vendors" SET "pending_balance"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.CreditPending(ctx, saleCredit())

		assert.ErrorIs(t, err, model.ErrVendorNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreditAvailable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "vendors" SET "available_balance"=available_balance \+ \$1 WHERE id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "wallet_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "vendors"`).
		WillReturnRows(vendorRows("350.00", "0"))
	mock.ExpectCommit()

	ref := "SIM-12345678"
	vendor, txn, err := repo.CreditAvailable(context.Background(), "vendor-1", decimal.NewFromInt(250), "Wallet top-up of 250.00 via card", &ref)

	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, txn.Status)
	assert.Nil(t, txn.IdempotencyKey)
	assert.Equal(t, "350", vendor.AvailableBalance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectExec(`INSERT INTO "wallet_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	txn, err := repo.RecordFailed(context.Background(), "vendor-1", decimal.NewFromInt(75), "Wallet top-up of 75.00 via card (failed)", nil)

	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, txn.Status)
	assert.NotEmpty(t, txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	repo := NewReconcileRepository(sqlx.NewDb(sqlDB, "sqlmock"))

	t.Run("Drift is reported", func(t *testing.T) {
		mock.ExpectQuery(`SELECT v.id AS vendor_id`).
			WithArgs("vendor-1").
			WillReturnRows(sqlmock.NewRows([]string{"vendor_id", "available_balance", "pending_balance", "ledger_available", "ledger_pending"}).
				AddRow("vendor-1", "250.00", "210.00", "250.00", "200.00"))

		rec, err := repo.Reconcile(context.Background(), "vendor-1")

		require.NoError(t, err)
		assert.False(t, rec.Consistent())
		assert.Equal(t, "10", rec.Drift().String())
	})

	t.Run("Unknown vendor", func(t *testing.T) {
		mock.ExpectQuery(`SELECT v.id AS vendor_id`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"vendor_id"}))

		_, err := repo.Reconcile(context.Background(), "missing")
		assert.ErrorIs(t, err, model.ErrVendorNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
