package store

import (
	"context"
	"testing"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func seedBatch(t *testing.T, s *Store, tc tenant.Context, id, productID string, qty int, unitCost string, receivedAt time.Time) {
	t.Helper()
	err := s.InsertBatch(context.Background(), s.DB(), tc, &models.InventoryBatch{
		ID:           id,
		ProductID:    productID,
		QtyIn:        qty,
		QtyAvailable: qty,
		UnitCost:     dec(t, unitCost),
		ReceivedAt:   receivedAt,
	})
	require.NoError(t, err)
}

func TestReserveFIFOWeightedCost(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedBatch(t, s, tc, "batch-1", "prod-1", 5, "10", base)
	seedBatch(t, s, tc, "batch-2", "prod-1", 10, "12", base.Add(time.Hour))

	res, err := s.ReserveFIFO(ctx, s.DB(), tc, "prod-1", 7)
	require.NoError(t, err)

	require.Len(t, res.Takes, 2)
	assert.Equal(t, "batch-1", res.Takes[0].BatchID)
	assert.Equal(t, 5, res.Takes[0].Quantity)
	assert.Equal(t, "batch-2", res.Takes[1].BatchID)
	assert.Equal(t, 2, res.Takes[1].Quantity)

	// (5*10 + 2*12) / 7 = 74/7, rounded to 4 places.
	assert.Equal(t, "10.5714", res.UnitCost.String())
}

func TestReserveFIFOTieBreaksOnID(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedBatch(t, s, tc, "batch-b", "prod-1", 5, "10", at)
	seedBatch(t, s, tc, "batch-a", "prod-1", 5, "20", at)

	res, err := s.ReserveFIFO(ctx, s.DB(), tc, "prod-1", 6)
	require.NoError(t, err)

	require.Len(t, res.Takes, 2)
	assert.Equal(t, "batch-a", res.Takes[0].BatchID)
	assert.Equal(t, "batch-b", res.Takes[1].BatchID)
}

func TestReserveFIFORejectsNonPositiveQuantity(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}
	ctx := context.Background()

	seedBatch(t, s, tc, "batch-1", "prod-1", 3, "10", time.Now().UTC())

	_, err := s.ReserveFIFO(ctx, s.DB(), tc, "prod-1", 0)
	require.Error(t, err)
	_, err = s.ReserveFIFO(ctx, s.DB(), tc, "prod-1", -2)
	require.Error(t, err)
}

func TestReserveFIFOInsufficientStock(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}
	ctx := context.Background()

	seedBatch(t, s, tc, "batch-1", "prod-1", 3, "10", time.Now().UTC())

	_, err := s.ReserveFIFO(ctx, s.DB(), tc, "prod-1", 5)
	var short *ErrInsufficientStock
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "prod-1", short.ProductID)
	assert.Equal(t, 5, short.Requested)
	assert.Equal(t, 3, short.Available)

	// Nothing was consumed.
	stock, err := s.ProductStock(ctx, s.DB(), tc, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
}

func TestApplyReservationDecrementsAndAudits(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedBatch(t, s, tc, "batch-1", "prod-1", 5, "10", base)
	seedBatch(t, s, tc, "batch-2", "prod-1", 10, "12", base.Add(time.Hour))

	res, err := s.ReserveFIFO(ctx, s.DB(), tc, "prod-1", 7)
	require.NoError(t, err)
	require.NoError(t, s.ApplyReservation(ctx, s.DB(), tc, res, models.ReferenceSale, "sale-1"))

	stock, err := s.ProductStock(ctx, s.DB(), tc, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 8, stock)

	batches, err := s.BatchesForProduct(ctx, s.DB(), tc, "prod-1", false)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "batch-2", batches[0].ID)
	assert.Equal(t, 8, batches[0].QtyAvailable)

	var movements []models.InventoryMovement
	require.NoError(t, s.DB().Select(&movements, `SELECT * FROM inventory_movements`))
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementOut, movements[0].Direction)
	assert.Equal(t, 7, movements[0].Quantity)
	assert.Equal(t, "sale-1", movements[0].ReferenceID)
}

func TestNextSaleNumberPerTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t1 := tenant.Context{TenantID: "t1"}
	t2 := tenant.Context{TenantID: "t2"}

	for want := 1; want <= 3; want++ {
		n, err := s.NextSaleNumber(ctx, s.DB(), t1)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := s.NextSaleNumber(ctx, s.DB(), t2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConsumeSupplyStockFloorsAtZero(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}
	ctx := context.Background()

	supply := &models.Supply{ID: uuid.New().String(), Name: "Boxes", Stock: 3, UnitCost: dec(t, "0.5")}
	require.NoError(t, s.CreateSupply(ctx, s.DB(), tc, supply))

	require.NoError(t, s.ConsumeSupplyStock(ctx, s.DB(), tc, supply.ID, 5))

	got, err := s.GetSupply(ctx, s.DB(), tc, supply.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	err = s.ConsumeSupplyStock(ctx, s.DB(), tc, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyAccountDeltaMissingAccount(t *testing.T) {
	s := newTestStore(t)
	tc := tenant.Context{TenantID: "t1"}

	err := s.ApplyAccountDelta(context.Background(), s.DB(), tc, "missing", dec(t, "10"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t1 := tenant.Context{TenantID: "t1"}
	t2 := tenant.Context{TenantID: "t2"}

	acc := &models.Account{ID: "acc-1", Name: "Cash", Type: models.AccountTypeCash, Balance: dec(t, "100"), Active: true}
	require.NoError(t, s.CreateAccount(ctx, s.DB(), t1, acc))

	_, err := s.GetAccount(ctx, s.DB(), t2, "acc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	seedBatch(t, s, t1, "batch-1", "prod-1", 5, "10", time.Now().UTC())
	stock, err := s.ProductStock(ctx, s.DB(), t2, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
}

func TestSignedPostingSum(t *testing.T) {
	other := "acc-2"
	txs := []models.Transaction{
		{Type: models.TransactionIncome, AccountID: "acc-1", Amount: decimal.NewFromInt(100)},
		{Type: models.TransactionExpense, AccountID: "acc-1", Amount: decimal.NewFromInt(30)},
		{Type: models.TransactionTransfer, AccountID: "acc-1", ToAccountID: &other, Amount: decimal.NewFromInt(20)},
		{Type: models.TransactionIncome, AccountID: other, Amount: decimal.NewFromInt(999)},
	}

	assert.Equal(t, "50", SignedPostingSum("acc-1", txs).String())
	assert.Equal(t, "1019", SignedPostingSum("acc-2", txs).String())
}
