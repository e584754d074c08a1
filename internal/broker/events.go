package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events keyed by tenant.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleCompleted publishes a SaleCompleted event
func (ep *EventPublisher) PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("tenant-%s", event.TenantID), event)
}

// PublishPurchaseReceived publishes a PurchaseReceived event
func (ep *EventPublisher) PublishPurchaseReceived(ctx context.Context, event *models.PurchaseReceivedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("tenant-%s", event.TenantID), event)
}

// PublishFundsTransferred publishes a FundsTransferred event
func (ep *EventPublisher) PublishFundsTransferred(ctx context.Context, event *models.FundsTransferredEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("tenant-%s", event.TenantID), event)
}

// EventHandler routes consumed messages to registered handlers.
type EventHandler struct {
	logger          *zap.Logger
	onSaleCompleted func(context.Context, *models.SaleCompletedEvent) error
	onPurchase      func(context.Context, *models.PurchaseReceivedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSaleCompleted registers a handler for SaleCompleted events
func (eh *EventHandler) OnSaleCompleted(handler func(context.Context, *models.SaleCompletedEvent) error) {
	eh.onSaleCompleted = handler
}

// OnPurchaseReceived registers a handler for PurchaseReceived events
func (eh *EventHandler) OnPurchaseReceived(handler func(context.Context, *models.PurchaseReceivedEvent) error) {
	eh.onPurchase = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSaleCompleted:
		if eh.onSaleCompleted != nil {
			var event models.SaleCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleCompleted event: %w", err)
			}
			return eh.onSaleCompleted(ctx, &event)
		}

	case models.EventTypePurchaseReceived:
		if eh.onPurchase != nil {
			var event models.PurchaseReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PurchaseReceived event: %w", err)
			}
			return eh.onPurchase(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
