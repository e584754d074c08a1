package service

import (
	"testing"
	"time"

	"commerce-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSaleConsumesFIFOLayers(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	env.seedBatch(t, prod.ID, 5, "10", base)
	env.seedBatch(t, prod.ID, 10, "12", base.Add(time.Hour))

	resp, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 7, UnitPrice: dec(t, "20")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "S-00001", resp.SaleNumber)
	assert.Equal(t, "140", resp.Subtotal.String())
	assert.Equal(t, "140", resp.Total.String())

	items, err := env.store.GetSaleItems(env.ctx, env.store.DB(), resp.SaleID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "10.5714", items[0].UnitCost.String())

	assert.Equal(t, 8, env.productStock(t, prod.ID))
	assert.Equal(t, "140", env.accountBalance(t, acc.ID))

	txs, err := env.store.TransactionsForReference(env.ctx, env.store.DB(), env.tc, models.ReferenceSale, resp.SaleID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionIncome, txs[0].Type)
	assert.Equal(t, "140", txs[0].Amount.String())
}

func TestCreateSaleRepeatedProductLines(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	env.seedBatch(t, prod.ID, 4, "10", base)
	env.seedBatch(t, prod.ID, 4, "20", base.Add(time.Hour))

	// Two lines of the same product must draw from one consumption plan over
	// the summed quantity, not claim the oldest layer twice.
	resp, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 3, UnitPrice: dec(t, "30")},
			{ProductID: prod.ID, Quantity: 3, UnitPrice: dec(t, "30")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "180", resp.Subtotal.String())
	assert.Equal(t, 2, env.productStock(t, prod.ID))

	// 4@10 + 2@20 over 6 units, attributed identically to both lines.
	items, err := env.store.GetSaleItems(env.ctx, env.store.DB(), resp.SaleID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "13.3333", items[0].UnitCost.String())
	assert.Equal(t, "13.3333", items[1].UnitCost.String())

	var movements []models.InventoryMovement
	require.NoError(t, env.store.DB().Select(&movements, `SELECT * FROM inventory_movements`))
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementOut, movements[0].Direction)
	assert.Equal(t, 6, movements[0].Quantity)
}

func TestCreateSaleRepeatedProductShortageAcrossLines(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	env.seedBatch(t, prod.ID, 8, "10", time.Now().UTC())

	_, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 5, UnitPrice: dec(t, "30")},
			{ProductID: prod.ID, Quantity: 4, UnitPrice: dec(t, "30")},
		},
	})

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "Mug", short.ProductName)
	assert.Equal(t, 9, short.Requested)
	assert.Equal(t, 8, short.Available)
	assert.Equal(t, 8, env.productStock(t, prod.ID))
}

func TestCreateSaleShortageRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "50")
	mug := env.seedProduct(t, "Mug")
	plate := env.seedProduct(t, "Plate")
	now := time.Now().UTC()
	env.seedBatch(t, mug.ID, 5, "10", now)
	env.seedBatch(t, plate.ID, 1, "8", now)

	_, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: mug.ID, Quantity: 2, UnitPrice: dec(t, "20")},
			{ProductID: plate.ID, Quantity: 3, UnitPrice: dec(t, "15")},
		},
	})

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "Plate", short.ProductName)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 1, short.Available)

	// The first line's reservation must not survive the failed second line.
	assert.Equal(t, 5, env.productStock(t, mug.ID))
	assert.Equal(t, 1, env.productStock(t, plate.ID))
	assert.Equal(t, "50", env.accountBalance(t, acc.ID))

	sales, err := svc.ListSales(env.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateSaleExtractsInclusiveTax(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	env.seedBatch(t, prod.ID, 10, "10", time.Now().UTC())

	resp, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		PaymentMethod: "CARD",
		DiscountType:  DiscountPercent,
		DiscountValue: dec(t, "10"),
		TaxRate:       dec(t, "0.1"),
		ShippingCost:  dec(t, "5"),
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 2, UnitPrice: dec(t, "50")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "100", resp.Subtotal.String())
	assert.Equal(t, "10", resp.Discount.String())
	// Tax is contained in the discounted total: 90 * 0.1 / 1.1.
	assert.Equal(t, "8.18", resp.Tax.String())
	assert.Equal(t, "95", resp.Total.String())

	// The persisted header carries the same figures the response reported.
	sale, err := env.store.GetSale(env.ctx, env.store.DB(), env.tc, resp.SaleID)
	require.NoError(t, err)
	assert.True(t, sale.Tax.Equal(resp.Tax))
	assert.True(t, sale.Total.Equal(resp.Total))
}

func TestCreateSaleRejectsMixedDiscounts(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	_, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     "acc",
		PaymentMethod: "CASH",
		DiscountType:  DiscountAmount,
		DiscountValue: dec(t, "5"),
		Items: []SaleItemRequest{
			{ProductID: "p", Quantity: 1, UnitPrice: dec(t, "10"), Discount: dec(t, "1")},
		},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateSaleRejectsDiscountOverSubtotal(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	_, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     "acc",
		PaymentMethod: "CASH",
		DiscountType:  DiscountAmount,
		DiscountValue: dec(t, "100"),
		Items: []SaleItemRequest{
			{ProductID: "p", Quantity: 1, UnitPrice: dec(t, "10")},
		},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateSaleBumpsCustomerAggregates(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	customer := env.seedCustomer(t)
	env.seedBatch(t, prod.ID, 10, "10", time.Now().UTC())

	_, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		CustomerID:    &customer.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 3, UnitPrice: dec(t, "20")},
		},
	})
	require.NoError(t, err)

	got, err := env.store.GetCustomer(env.ctx, env.store.DB(), env.tc, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalOrders)
	assert.Equal(t, "60", got.TotalSpent.String())
}

func TestCreateSaleSupplyUsageFloorsAtZero(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	supply := env.seedSupply(t, 3)
	env.seedBatch(t, prod.ID, 10, "10", time.Now().UTC())

	resp, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 1, UnitPrice: dec(t, "20")},
		},
		SuppliesUsed: []SaleSupplyRequest{
			{SupplyID: supply.ID, Quantity: 5, UnitCost: dec(t, "0.25")},
		},
	})
	require.NoError(t, err)

	got, err := env.store.GetSupply(env.ctx, env.store.DB(), env.tc, supply.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	// The usage row keeps the requested quantity even though the counter
	// bottomed out.
	usages, err := env.store.GetSaleSupplies(env.ctx, env.store.DB(), resp.SaleID)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, 5, usages[0].Quantity)
}

func TestCreateSaleAtEventTagsIncomePosting(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	event := env.seedEvent(t, "25")
	env.seedBatch(t, prod.ID, 10, "10", time.Now().UTC())

	resp, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
		AccountID:     acc.ID,
		EventID:       &event.ID,
		PaymentMethod: "CASH",
		Items: []SaleItemRequest{
			{ProductID: prod.ID, Quantity: 2, UnitPrice: dec(t, "20")},
		},
	})
	require.NoError(t, err)

	txs, err := env.store.TransactionsForReference(env.ctx, env.store.DB(), env.tc, models.ReferenceEvent, event.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionIncome, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(resp.Total))
}

func TestSaleNumbersAreSequential(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSaleService(env.store, nil, nil)

	acc := env.seedAccount(t, "0")
	prod := env.seedProduct(t, "Mug")
	env.seedBatch(t, prod.ID, 10, "10", time.Now().UTC())

	want := []string{"S-00001", "S-00002", "S-00003"}
	for _, num := range want {
		resp, err := svc.CreateSale(env.ctx, &CreateSaleRequest{
			AccountID:     acc.ID,
			PaymentMethod: "CASH",
			Items: []SaleItemRequest{
				{ProductID: prod.ID, Quantity: 1, UnitPrice: dec(t, "20")},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, num, resp.SaleNumber)
	}
}

func TestComputeTotalsItemDiscounts(t *testing.T) {
	svc := &SaleService{}

	totals := svc.computeTotals(&CreateSaleRequest{
		Items: []SaleItemRequest{
			{ProductID: "a", Quantity: 2, UnitPrice: decimal.NewFromInt(30), Discount: decimal.NewFromInt(5)},
			{ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
		},
	})

	assert.Equal(t, "100", totals.subtotal.String())
	assert.Equal(t, "5", totals.discount.String())
	assert.Equal(t, "95", totals.total.String())
	assert.True(t, totals.tax.IsZero())
}
