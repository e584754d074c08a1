package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/tenant"
	"commerce-ledger/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseService converts a purchase into new cost layers and one expense
// posting. Everything commits in one database transaction; there is no
// compensating-delete path.
type PurchaseService struct {
	store        *store.Store
	events       EventPublisher
	cache        ReportCache
	baseCurrency string
	logger       *zap.Logger
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(st *store.Store, events EventPublisher, cache ReportCache, baseCurrency string) *PurchaseService {
	return &PurchaseService{
		store:        st,
		events:       events,
		cache:        cache,
		baseCurrency: baseCurrency,
		logger:       util.GetLogger(),
	}
}

// PurchaseItemRequest is one purchase line. UnitCost is expressed in the
// request's currency.
type PurchaseItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// CreatePurchaseRequest represents a request to register a purchase.
type CreatePurchaseRequest struct {
	AccountID    string                `json:"account_id" binding:"required"`
	Currency     string                `json:"currency,omitempty"`
	ExchangeRate decimal.Decimal       `json:"exchange_rate"`
	ShippingCost decimal.Decimal       `json:"shipping_cost"`
	Notes        string                `json:"notes,omitempty"`
	Items        []PurchaseItemRequest `json:"items" binding:"required,min=1"`
}

// CreatePurchaseResponse returns the generated identifiers and computed totals.
type CreatePurchaseResponse struct {
	PurchaseBatchID string          `json:"purchase_batch_id"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	ItemsProcessed  int             `json:"items_processed"`
}

// CreatePurchase processes a purchase command. Unit costs are converted to
// the base currency at the request's exchange rate, shipping is spread evenly
// across every unit in the whole purchase, and one new cost layer is created
// per line.
func (p *PurchaseService) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*CreatePurchaseResponse, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.CreatePurchase")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	foreign := req.Currency != "" && req.Currency != p.baseCurrency
	if err := p.validateRequest(req, foreign); err != nil {
		util.PurchasesFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	db := p.store.DB()

	account, err := p.store.GetAccount(ctx, db, tc, req.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.PurchasesFailedTotal.WithLabelValues("account_not_found").Inc()
			return nil, notFound("account", req.AccountID)
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Active {
		return nil, validationf("account %q is inactive", account.Name)
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	products, err := p.store.GetProductsByIDs(ctx, db, tc, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for _, item := range req.Items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, notFound("product", item.ProductID)
		}
	}

	totalUnits := 0
	for _, item := range req.Items {
		totalUnits += item.Quantity
	}
	// Shipping is allocated per unit across the whole purchase, not per
	// product line.
	shippingPerUnit := decimal.Zero
	if req.ShippingCost.IsPositive() {
		shippingPerUnit = req.ShippingCost.Div(decimal.NewFromInt(int64(totalUnits)))
	}

	rate := req.ExchangeRate
	if !foreign {
		rate = decimal.NewFromInt(1)
	}

	batch := &models.PurchaseBatch{
		ID:           uuid.New().String(),
		AccountID:    req.AccountID,
		Currency:     req.Currency,
		ExchangeRate: rate,
		ShippingCost: req.ShippingCost,
		Notes:        req.Notes,
	}
	if batch.Currency == "" {
		batch.Currency = p.baseCurrency
	}

	type plannedItem struct {
		item     *models.PurchaseBatchItem
		unitCost decimal.Decimal
	}
	planned := make([]plannedItem, 0, len(req.Items))
	totalCost := decimal.Zero
	for _, item := range req.Items {
		unitCostLocal := item.UnitCost
		if foreign {
			unitCostLocal = unitCostLocal.Mul(rate)
		}
		finalUnitCost := unitCostLocal.Add(shippingPerUnit).Round(unitCostScale)
		lineTotal := finalUnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(moneyScale)
		totalCost = totalCost.Add(lineTotal)

		planned = append(planned, plannedItem{
			item: &models.PurchaseBatchItem{
				ID:              uuid.New().String(),
				PurchaseBatchID: batch.ID,
				ProductID:       item.ProductID,
				Quantity:        item.Quantity,
				UnitCost:        finalUnitCost,
				LineTotal:       lineTotal,
			},
			unitCost: finalUnitCost,
		})
	}
	batch.TotalCost = totalCost

	err = p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.store.InsertPurchaseBatch(ctx, tx, tc, batch); err != nil {
			return fmt.Errorf("failed to insert purchase batch: %w", err)
		}

		for _, pl := range planned {
			if err := p.store.InsertPurchaseItem(ctx, tx, pl.item); err != nil {
				return fmt.Errorf("failed to insert purchase item: %w", err)
			}

			if err := p.store.InsertBatch(ctx, tx, tc, &models.InventoryBatch{
				ID:           uuid.New().String(),
				ProductID:    pl.item.ProductID,
				QtyIn:        pl.item.Quantity,
				QtyAvailable: pl.item.Quantity,
				UnitCost:     pl.unitCost,
				ReceivedAt:   batch.ReceivedAt,
			}); err != nil {
				return fmt.Errorf("failed to insert cost layer: %w", err)
			}

			if err := p.store.InsertInventoryMovement(ctx, tx, tc, &models.InventoryMovement{
				ID:            uuid.New().String(),
				ProductID:     pl.item.ProductID,
				Direction:     models.MovementIn,
				Quantity:      pl.item.Quantity,
				ReferenceType: models.ReferencePurchase,
				ReferenceID:   batch.ID,
			}); err != nil {
				return err
			}
		}

		if err := p.store.InsertTransaction(ctx, tx, tc, &models.Transaction{
			ID:            uuid.New().String(),
			Type:          models.TransactionExpense,
			AccountID:     batch.AccountID,
			Amount:        totalCost,
			Description:   "Inventory purchase",
			ReferenceType: models.ReferencePurchase,
			ReferenceID:   &batch.ID,
		}); err != nil {
			return fmt.Errorf("failed to insert expense posting: %w", err)
		}

		return p.store.ApplyAccountDelta(ctx, tx, tc, batch.AccountID, totalCost.Neg())
	})
	if err != nil {
		util.PurchasesFailedTotal.WithLabelValues("commit_failed").Inc()
		return nil, err
	}

	util.PurchasesCreatedTotal.Inc()
	p.logger.Info("Purchase committed",
		zap.String("purchase_batch_id", batch.ID),
		zap.String("total_cost", totalCost.String()))

	p.publishPurchaseReceived(ctx, tc, batch, len(req.Items))

	return &CreatePurchaseResponse{
		PurchaseBatchID: batch.ID,
		TotalCost:       totalCost,
		ItemsProcessed:  len(req.Items),
	}, nil
}

func (p *PurchaseService) validateRequest(req *CreatePurchaseRequest, foreign bool) error {
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return validationf("item %d: quantity must be positive", i)
		}
		if item.UnitCost.IsNegative() {
			return validationf("item %d: unit cost cannot be negative", i)
		}
	}
	if req.ShippingCost.IsNegative() {
		return validationf("shipping cost cannot be negative")
	}
	if foreign && !req.ExchangeRate.IsPositive() {
		return validationf("exchange rate must be positive for foreign currency purchases")
	}
	return nil
}

// GetPurchase returns a purchase header with its lines.
func (p *PurchaseService) GetPurchase(ctx context.Context, id string) (*models.PurchaseBatch, []models.PurchaseBatchItem, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	db := p.store.DB()
	batch, err := p.store.GetPurchaseBatch(ctx, db, tc, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, notFound("purchase", id)
		}
		return nil, nil, err
	}
	items, err := p.store.GetPurchaseItems(ctx, db, batch.ID)
	if err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

// ListPurchases returns the tenant's recent purchases.
func (p *PurchaseService) ListPurchases(ctx context.Context, limit int) ([]models.PurchaseBatch, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return p.store.ListPurchases(ctx, p.store.DB(), tc, limit)
}

func (p *PurchaseService) publishPurchaseReceived(ctx context.Context, tc tenant.Context, batch *models.PurchaseBatch, itemCount int) {
	if p.cache != nil {
		if err := p.cache.InvalidateDashboard(ctx, tc.TenantID); err != nil {
			p.logger.Warn("Failed to invalidate dashboard cache", zap.Error(err))
		}
	}

	if p.events == nil {
		return
	}

	event := &models.PurchaseReceivedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePurchaseReceived,
			TenantID:  tc.TenantID,
			Timestamp: time.Now(),
		},
		PurchaseBatchID: batch.ID,
		AccountID:       batch.AccountID,
		TotalCost:       batch.TotalCost,
		ItemCount:       itemCount,
	}
	if err := p.events.PublishPurchaseReceived(ctx, event); err != nil {
		p.logger.Error("Failed to publish PurchaseReceived event", zap.Error(err))
	}
}
