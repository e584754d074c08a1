package worker

import (
	"context"

	"commerce-ledger/internal/broker"
	"commerce-ledger/internal/models"
	"commerce-ledger/internal/service"
	"commerce-ledger/internal/util"

	"go.uber.org/zap"
)

// CacheWorker consumes committed business events and drops the cached
// reports they stale. The write paths also invalidate synchronously; this
// covers other service instances sharing the cache.
type CacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCacheWorker creates a new cache worker
func NewCacheWorker(consumer *broker.Consumer, cache service.ReportCache) *CacheWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnSaleCompleted(func(ctx context.Context, event *models.SaleCompletedEvent) error {
		logger.Debug("Invalidating dashboard cache",
			zap.String("tenant_id", event.TenantID),
			zap.String("sale_id", event.SaleID))
		return cache.InvalidateDashboard(ctx, event.TenantID)
	})
	eventHandler.OnPurchaseReceived(func(ctx context.Context, event *models.PurchaseReceivedEvent) error {
		return cache.InvalidateDashboard(ctx, event.TenantID)
	})

	return &CacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *CacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CacheWorker) Stop() error {
	w.logger.Info("Stopping cache worker")
	return w.consumer.Close()
}
