package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store *store.Store
	tc    tenant.Context
	ctx   context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	tc := tenant.Context{TenantID: "t1"}
	return &testEnv{
		store: st,
		tc:    tc,
		ctx:   tenant.NewContext(context.Background(), tc),
	}
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func (e *testEnv) seedAccount(t *testing.T, balance string) *models.Account {
	t.Helper()
	acc := &models.Account{
		ID:      uuid.New().String(),
		Name:    "Cash",
		Type:    models.AccountTypeCash,
		Balance: dec(t, balance),
		Active:  true,
	}
	require.NoError(t, e.store.CreateAccount(e.ctx, e.store.DB(), e.tc, acc))
	return acc
}

func (e *testEnv) seedProduct(t *testing.T, name string) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:     uuid.New().String(),
		SKU:    "SKU-" + name,
		Name:   name,
		Price:  dec(t, "10"),
		Active: true,
	}
	require.NoError(t, e.store.CreateProduct(e.ctx, e.store.DB(), e.tc, p))
	return p
}

func (e *testEnv) seedBatch(t *testing.T, productID string, qty int, unitCost string, receivedAt time.Time) {
	t.Helper()
	require.NoError(t, e.store.InsertBatch(e.ctx, e.store.DB(), e.tc, &models.InventoryBatch{
		ID:           uuid.New().String(),
		ProductID:    productID,
		QtyIn:        qty,
		QtyAvailable: qty,
		UnitCost:     dec(t, unitCost),
		ReceivedAt:   receivedAt,
	}))
}

func (e *testEnv) seedCustomer(t *testing.T) *models.Customer {
	t.Helper()
	c := &models.Customer{
		ID:         uuid.New().String(),
		Name:       "Dana",
		TotalSpent: decimal.Zero,
	}
	require.NoError(t, e.store.CreateCustomer(e.ctx, e.store.DB(), e.tc, c))
	return c
}

func (e *testEnv) seedSupply(t *testing.T, stock int) *models.Supply {
	t.Helper()
	s := &models.Supply{
		ID:       uuid.New().String(),
		Name:     "Wrapping",
		Stock:    stock,
		UnitCost: dec(t, "0.25"),
	}
	require.NoError(t, e.store.CreateSupply(e.ctx, e.store.DB(), e.tc, s))
	return s
}

func (e *testEnv) seedEvent(t *testing.T, fixedCost string) *models.Event {
	t.Helper()
	ev := &models.Event{
		ID:        uuid.New().String(),
		Name:      "Spring Market",
		Status:    models.EventStatusActive,
		FixedCost: dec(t, fixedCost),
	}
	require.NoError(t, e.store.CreateEvent(e.ctx, e.store.DB(), e.tc, ev))
	return ev
}

func (e *testEnv) accountBalance(t *testing.T, id string) string {
	t.Helper()
	acc, err := e.store.GetAccount(e.ctx, e.store.DB(), e.tc, id)
	require.NoError(t, err)
	return acc.Balance.String()
}

func (e *testEnv) productStock(t *testing.T, id string) int {
	t.Helper()
	stock, err := e.store.ProductStock(e.ctx, e.store.DB(), e.tc, id)
	require.NoError(t, err)
	return stock
}

// fakeCache is an in-memory ReportCache that counts hits and writes.
type fakeCache struct {
	data map[string][]byte
	hits int
	sets int
}

func (f *fakeCache) GetDashboard(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := f.data[key]
	if !ok {
		return false, nil
	}
	f.hits++
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeCache) SetDashboard(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.sets++
	f.data[key] = raw
	return nil
}

func (f *fakeCache) InvalidateDashboard(_ context.Context, tenantID string) error {
	for key := range f.data {
		if strings.HasPrefix(key, tenantID+":") {
			delete(f.data, key)
		}
	}
	return nil
}
