package service

import (
	"context"
	"errors"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/tenant"
	"commerce-ledger/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService manages the master data the processors sell from: products,
// supplies, customers and selling events.
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st *store.Store) *CatalogService {
	return &CatalogService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest represents a request to register a product.
type CreateProductRequest struct {
	SKU   string          `json:"sku" binding:"required"`
	Name  string          `json:"name" binding:"required"`
	Price decimal.Decimal `json:"price"`
}

// CreateProduct registers a new product. Stock arrives later through
// purchases; a fresh product has no cost layers.
func (c *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, validationf("price cannot be negative")
	}

	product := &models.Product{
		ID:     uuid.New().String(),
		SKU:    req.SKU,
		Name:   req.Name,
		Price:  req.Price,
		Active: true,
	}
	if err := c.store.CreateProduct(ctx, c.store.DB(), tc, product); err != nil {
		return nil, err
	}
	return product, nil
}

// ProductWithStock is a product joined with its live on-hand quantity.
type ProductWithStock struct {
	models.Product
	Stock int `json:"stock"`
}

// GetProduct returns one product with its current stock.
func (c *CatalogService) GetProduct(ctx context.Context, id string) (*ProductWithStock, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := c.store.DB()
	product, err := c.store.GetProduct(ctx, db, tc, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("product", id)
		}
		return nil, err
	}
	stock, err := c.store.ProductStock(ctx, db, tc, id)
	if err != nil {
		return nil, err
	}
	return &ProductWithStock{Product: *product, Stock: stock}, nil
}

// ListProducts returns the tenant's products.
func (c *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.ListProducts(ctx, c.store.DB(), tc)
}

// GetProductLayers returns the open cost layers for a product in
// consumption order.
func (c *CatalogService) GetProductLayers(ctx context.Context, id string) ([]models.InventoryBatch, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := c.store.DB()
	if _, err := c.store.GetProduct(ctx, db, tc, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("product", id)
		}
		return nil, err
	}
	return c.store.BatchesForProduct(ctx, db, tc, id, false)
}

// CreateSupplyRequest represents a request to register a consumable.
type CreateSupplyRequest struct {
	Name     string          `json:"name" binding:"required"`
	Stock    int             `json:"stock"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// CreateSupply registers a consumable with an opening stock.
func (c *CatalogService) CreateSupply(ctx context.Context, req *CreateSupplyRequest) (*models.Supply, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.Stock < 0 {
		return nil, validationf("stock cannot be negative")
	}
	if req.UnitCost.IsNegative() {
		return nil, validationf("unit cost cannot be negative")
	}

	supply := &models.Supply{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Stock:    req.Stock,
		UnitCost: req.UnitCost,
	}
	if err := c.store.CreateSupply(ctx, c.store.DB(), tc, supply); err != nil {
		return nil, err
	}
	return supply, nil
}

// ListSupplies returns the tenant's consumables.
func (c *CatalogService) ListSupplies(ctx context.Context) ([]models.Supply, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.ListSupplies(ctx, c.store.DB(), tc)
}

// CreateCustomerRequest represents a request to register a customer.
type CreateCustomerRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone,omitempty"`
}

// CreateCustomer registers a customer with zeroed aggregates.
func (c *CatalogService) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*models.Customer, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	customer := &models.Customer{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Phone:      req.Phone,
		TotalSpent: decimal.Zero,
	}
	if err := c.store.CreateCustomer(ctx, c.store.DB(), tc, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// GetCustomer returns one customer with its lifetime aggregates.
func (c *CatalogService) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	customer, err := c.store.GetCustomer(ctx, c.store.DB(), tc, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("customer", id)
		}
		return nil, err
	}
	return customer, nil
}

// ListCustomers returns the tenant's customers.
func (c *CatalogService) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.ListCustomers(ctx, c.store.DB(), tc)
}

// CreateEventRequest represents a request to plan a selling event.
type CreateEventRequest struct {
	Name      string          `json:"name" binding:"required"`
	FixedCost decimal.Decimal `json:"fixed_cost"`
	StartsAt  *string         `json:"starts_at,omitempty"`
}

// CreateEvent plans a new selling event.
func (c *CatalogService) CreateEvent(ctx context.Context, req *CreateEventRequest) (*models.Event, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.FixedCost.IsNegative() {
		return nil, validationf("fixed cost cannot be negative")
	}

	event := &models.Event{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Status:    models.EventStatusPlanned,
		FixedCost: req.FixedCost,
	}
	if req.StartsAt != nil {
		t, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			return nil, validationf("starts_at must be RFC 3339")
		}
		event.StartsAt = &t
	}
	if err := c.store.CreateEvent(ctx, c.store.DB(), tc, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns the tenant's selling events.
func (c *CatalogService) ListEvents(ctx context.Context) ([]models.Event, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.ListEvents(ctx, c.store.DB(), tc)
}

// UpdateEventStatus moves an event through PLANNED -> ACTIVE -> COMPLETED.
// Backward moves are rejected; a completed event is frozen.
func (c *CatalogService) UpdateEventStatus(ctx context.Context, id, status string) (*models.Event, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	rank := map[string]int{
		models.EventStatusPlanned:   0,
		models.EventStatusActive:    1,
		models.EventStatusCompleted: 2,
	}
	newRank, ok := rank[status]
	if !ok {
		return nil, validationf("unknown event status %q", status)
	}

	db := c.store.DB()
	event, err := c.store.GetEvent(ctx, db, tc, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("event", id)
		}
		return nil, err
	}
	if newRank <= rank[event.Status] {
		return nil, validationf("cannot move event from %s to %s", event.Status, status)
	}

	if err := c.store.UpdateEventStatus(ctx, db, tc, id, status); err != nil {
		return nil, err
	}
	event.Status = status
	return event, nil
}
