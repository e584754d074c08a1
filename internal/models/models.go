package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a monetary account. Balance is denormalized and mutated only
// through transaction postings.
type Account struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"-"`
	Name      string          `db:"name" json:"name"`
	Type      string          `db:"type" json:"type"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Account types
const (
	AccountTypeCash   = "CASH"
	AccountTypeBank   = "BANK"
	AccountTypeWallet = "WALLET"
)

// Product is a catalog item sold from FIFO cost layers.
type Product struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"-"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// InventoryBatch is one cost layer: a lot received at a fixed unit cost.
// Rows are append-only; only qty_available ever changes, and only downward.
type InventoryBatch struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"-"`
	ProductID    string          `db:"product_id" json:"product_id"`
	QtyIn        int             `db:"qty_in" json:"qty_in"`
	QtyAvailable int             `db:"qty_available" json:"qty_available"`
	UnitCost     decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	ReceivedAt   time.Time       `db:"received_at" json:"received_at"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// InventoryMovement is the audit entry for stock changes: one row per
// product per operation, not per batch touched.
type InventoryMovement struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"-"`
	ProductID     string    `db:"product_id" json:"product_id"`
	Direction     string    `db:"direction" json:"direction"`
	Quantity      int       `db:"quantity" json:"quantity"`
	ReferenceType string    `db:"reference_type" json:"reference_type"`
	ReferenceID   string    `db:"reference_id" json:"reference_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Movement directions
const (
	MovementIn  = "IN"
	MovementOut = "OUT"
)

// Supply is a consumable with a single running stock counter, no cost layers.
type Supply struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"-"`
	Name      string          `db:"name" json:"name"`
	Stock     int             `db:"stock" json:"stock"`
	UnitCost  decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// SupplyMovement mirrors InventoryMovement for supplies.
type SupplyMovement struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"-"`
	SupplyID      string    `db:"supply_id" json:"supply_id"`
	Direction     string    `db:"direction" json:"direction"`
	Quantity      int       `db:"quantity" json:"quantity"`
	ReferenceType string    `db:"reference_type" json:"reference_type"`
	ReferenceID   string    `db:"reference_id" json:"reference_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PurchaseBatch is the immutable header of one purchase event.
type PurchaseBatch struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"-"`
	AccountID    string          `db:"account_id" json:"account_id"`
	Currency     string          `db:"currency" json:"currency"`
	ExchangeRate decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	ShippingCost decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	TotalCost    decimal.Decimal `db:"total_cost" json:"total_cost"`
	Notes        string          `db:"notes" json:"notes,omitempty"`
	ReceivedAt   time.Time       `db:"received_at" json:"received_at"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// PurchaseBatchItem is one purchase line. UnitCost is the final landed cost
// in local currency, shipping allocation included.
type PurchaseBatchItem struct {
	ID              string          `db:"id" json:"id"`
	PurchaseBatchID string          `db:"purchase_batch_id" json:"purchase_batch_id"`
	ProductID       string          `db:"product_id" json:"product_id"`
	Quantity        int             `db:"quantity" json:"quantity"`
	UnitCost        decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	LineTotal       decimal.Decimal `db:"line_total" json:"line_total"`
}

// Sale is the immutable header of one sale. Tax is the tax-inclusive portion
// extracted once at commit time; Total = Subtotal - Discount + ShippingCost.
type Sale struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"-"`
	SaleNumber    string          `db:"sale_number" json:"sale_number"`
	CustomerID    *string         `db:"customer_id" json:"customer_id,omitempty"`
	EventID       *string         `db:"event_id" json:"event_id,omitempty"`
	AccountID     string          `db:"account_id" json:"account_id"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	ShippingCost  decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	Total         decimal.Decimal `db:"total" json:"total"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// SaleItem is one sale line. UnitCost is the quantity-weighted FIFO cost of
// every layer the line actually consumed.
type SaleItem struct {
	ID        string          `db:"id" json:"id"`
	SaleID    string          `db:"sale_id" json:"sale_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
	UnitCost  decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	LineTotal decimal.Decimal `db:"line_total" json:"line_total"`
}

// SaleSupplyUsage records consumables used by a sale.
type SaleSupplyUsage struct {
	ID       string          `db:"id" json:"id"`
	SaleID   string          `db:"sale_id" json:"sale_id"`
	SupplyID string          `db:"supply_id" json:"supply_id"`
	Quantity int             `db:"quantity" json:"quantity"`
	UnitCost decimal.Decimal `db:"unit_cost" json:"unit_cost"`
}

// Transaction is an immutable ledger posting. A TRANSFER names both sides:
// -amount on AccountID, +amount on ToAccountID.
type Transaction struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"-"`
	Type          string          `db:"type" json:"type"`
	AccountID     string          `db:"account_id" json:"account_id"`
	ToAccountID   *string         `db:"to_account_id" json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Description   string          `db:"description" json:"description"`
	ReferenceType string          `db:"reference_type" json:"reference_type"`
	ReferenceID   *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Transaction types
const (
	TransactionIncome   = "INCOME"
	TransactionExpense  = "EXPENSE"
	TransactionTransfer = "TRANSFER"
)

// Transaction reference types
const (
	ReferenceSale     = "SALE"
	ReferencePurchase = "PURCHASE"
	ReferenceEvent    = "EVENT"
	ReferenceOther    = "OTHER"
)

// Customer carries aggregates bumped exactly once per committed sale that
// names it.
type Customer struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"-"`
	Name        string          `db:"name" json:"name"`
	Phone       string          `db:"phone" json:"phone,omitempty"`
	TotalOrders int             `db:"total_orders" json:"total_orders"`
	TotalSpent  decimal.Decimal `db:"total_spent" json:"total_spent"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Event is a selling event (market, fair). Its expenses are EXPENSE
// transactions referencing it, plus the fixed cost on the row itself.
type Event struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"-"`
	Name      string          `db:"name" json:"name"`
	Status    string          `db:"status" json:"status"`
	FixedCost decimal.Decimal `db:"fixed_cost" json:"fixed_cost"`
	StartsAt  *time.Time      `db:"starts_at" json:"starts_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Event statuses
const (
	EventStatusPlanned   = "PLANNED"
	EventStatusActive    = "ACTIVE"
	EventStatusCompleted = "COMPLETED"
)
