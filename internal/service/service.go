package service

import (
	"context"

	"commerce-ledger/internal/models"
)

// EventPublisher publishes committed business events. Publishing is
// best-effort: a failure is logged and never unwinds a committed operation.
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishPurchaseReceived(ctx context.Context, event *models.PurchaseReceivedEvent) error
	PublishFundsTransferred(ctx context.Context, event *models.FundsTransferredEvent) error
}

// ReportCache caches computed report payloads. A nil cache disables caching.
type ReportCache interface {
	GetDashboard(ctx context.Context, key string, dest interface{}) (bool, error)
	SetDashboard(ctx context.Context, key string, value interface{}) error
	InvalidateDashboard(ctx context.Context, tenantID string) error
}
