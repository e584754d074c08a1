package service

import (
	"testing"

	"commerce-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePurchaseForeignCurrencyLandedCost(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPurchaseService(env.store, nil, nil, "USD")

	acc := env.seedAccount(t, "1000")
	prod := env.seedProduct(t, "Mug")

	resp, err := svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID:    acc.ID,
		Currency:     "CNY",
		ExchangeRate: dec(t, "25"),
		ShippingCost: dec(t, "20"),
		Items: []PurchaseItemRequest{
			{ProductID: prod.ID, Quantity: 10, UnitCost: dec(t, "2")},
		},
	})
	require.NoError(t, err)

	// 2 * 25 = 50 local per unit, plus 20 shipping over 10 units.
	assert.Equal(t, "520", resp.TotalCost.String())
	assert.Equal(t, 1, resp.ItemsProcessed)

	batches, err := env.store.BatchesForProduct(env.ctx, env.store.DB(), env.tc, prod.ID, false)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 10, batches[0].QtyAvailable)
	assert.Equal(t, "52", batches[0].UnitCost.String())

	assert.Equal(t, "480", env.accountBalance(t, acc.ID))

	txs, err := env.store.TransactionsForReference(env.ctx, env.store.DB(), env.tc, models.ReferencePurchase, resp.PurchaseBatchID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionExpense, txs[0].Type)
	assert.Equal(t, "520", txs[0].Amount.String())
}

func TestCreatePurchaseBaseCurrencySkipsConversion(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPurchaseService(env.store, nil, nil, "USD")

	acc := env.seedAccount(t, "100")
	prod := env.seedProduct(t, "Mug")

	resp, err := svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID: acc.ID,
		Items: []PurchaseItemRequest{
			{ProductID: prod.ID, Quantity: 4, UnitCost: dec(t, "2.5")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "10", resp.TotalCost.String())
	assert.Equal(t, "90", env.accountBalance(t, acc.ID))
	assert.Equal(t, 4, env.productStock(t, prod.ID))
}

func TestCreatePurchaseSpreadsShippingAcrossAllUnits(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPurchaseService(env.store, nil, nil, "USD")

	acc := env.seedAccount(t, "1000")
	mug := env.seedProduct(t, "Mug")
	plate := env.seedProduct(t, "Plate")

	// 12 shipping over 6 total units = 2 per unit, on every line.
	resp, err := svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID:    acc.ID,
		ShippingCost: dec(t, "12"),
		Items: []PurchaseItemRequest{
			{ProductID: mug.ID, Quantity: 2, UnitCost: dec(t, "10")},
			{ProductID: plate.ID, Quantity: 4, UnitCost: dec(t, "5")},
		},
	})
	require.NoError(t, err)

	items, err := env.store.GetPurchaseItems(env.ctx, env.store.DB(), resp.PurchaseBatchID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	costs := map[string]string{}
	for _, item := range items {
		costs[item.ProductID] = item.UnitCost.String()
	}
	assert.Equal(t, "12", costs[mug.ID])
	assert.Equal(t, "7", costs[plate.ID])

	// 2*12 + 4*7
	assert.Equal(t, "52", resp.TotalCost.String())
}

func TestCreatePurchaseValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPurchaseService(env.store, nil, nil, "USD")

	var verr *ValidationError

	_, err := svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID: "acc",
		Currency:  "CNY",
		Items: []PurchaseItemRequest{
			{ProductID: "p", Quantity: 1, UnitCost: dec(t, "2")},
		},
	})
	require.ErrorAs(t, err, &verr, "foreign purchase without exchange rate")

	_, err = svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID:    "acc",
		ShippingCost: dec(t, "-1"),
		Items: []PurchaseItemRequest{
			{ProductID: "p", Quantity: 1, UnitCost: dec(t, "2")},
		},
	})
	require.ErrorAs(t, err, &verr, "negative shipping")

	_, err = svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID: "acc",
		Items: []PurchaseItemRequest{
			{ProductID: "p", Quantity: 0, UnitCost: dec(t, "2")},
		},
	})
	require.ErrorAs(t, err, &verr, "zero quantity")
}

func TestCreatePurchaseUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPurchaseService(env.store, nil, nil, "USD")

	acc := env.seedAccount(t, "100")

	_, err := svc.CreatePurchase(env.ctx, &CreatePurchaseRequest{
		AccountID: acc.ID,
		Items: []PurchaseItemRequest{
			{ProductID: "missing", Quantity: 1, UnitCost: dec(t, "2")},
		},
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "100", env.accountBalance(t, acc.ID))
}
