package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCompleted    = "SALE_COMPLETED"
	EventTypePurchaseReceived = "PURCHASE_RECEIVED"
	EventTypeFundsTransferred = "FUNDS_TRANSFERRED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published after a sale transaction commits
type SaleCompletedEvent struct {
	BaseEvent
	SaleID      string          `json:"sale_id"`
	SaleNumber  string          `json:"sale_number"`
	AccountID   string          `json:"account_id"`
	SaleEventID *string         `json:"sale_event_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Items       []SaleItemData  `json:"items"`
}

// PurchaseReceivedEvent published after a purchase transaction commits
type PurchaseReceivedEvent struct {
	BaseEvent
	PurchaseBatchID string          `json:"purchase_batch_id"`
	AccountID       string          `json:"account_id"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	ItemCount       int             `json:"item_count"`
}

// FundsTransferredEvent published after a transfer commits
type FundsTransferredEvent struct {
	BaseEvent
	TransactionID string          `json:"transaction_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}
