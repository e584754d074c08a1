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

// moneyScale is the precision kept for monetary totals; unitCostScale for
// computed per-unit costs.
const (
	moneyScale    = 2
	unitCostScale = 4
)

// Global discount modes. A request uses either a global discount or per-item
// discounts, never both.
const (
	DiscountPercent = "PERCENT"
	DiscountAmount  = "AMOUNT"
)

// SaleService turns a cart into FIFO-costed sale lines, inventory and supply
// consumption, one income posting and customer aggregate updates, all inside
// a single database transaction.
type SaleService struct {
	store  *store.Store
	events EventPublisher
	cache  ReportCache
	logger *zap.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(st *store.Store, events EventPublisher, cache ReportCache) *SaleService {
	return &SaleService{
		store:  st,
		events: events,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// SaleItemRequest is one cart line.
type SaleItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// SaleSupplyRequest is one consumable usage line.
type SaleSupplyRequest struct {
	SupplyID string          `json:"supply_id" binding:"required"`
	Quantity int             `json:"quantity" binding:"required,min=1"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// CreateSaleRequest represents a request to register a sale.
type CreateSaleRequest struct {
	CustomerID    *string             `json:"customer_id,omitempty"`
	Items         []SaleItemRequest   `json:"items" binding:"required,min=1"`
	DiscountType  string              `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	TaxRate       decimal.Decimal     `json:"tax_rate"`
	ShippingCost  decimal.Decimal     `json:"shipping_cost"`
	PaymentMethod string              `json:"payment_method" binding:"required"`
	AccountID     string              `json:"account_id" binding:"required"`
	Notes         string              `json:"notes,omitempty"`
	EventID       *string             `json:"event_id,omitempty"`
	SuppliesUsed  []SaleSupplyRequest `json:"supplies_used,omitempty"`
}

// CreateSaleResponse returns the generated identifiers and computed totals.
type CreateSaleResponse struct {
	SaleID         string          `json:"sale_id"`
	SaleNumber     string          `json:"sale_number"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	Total          decimal.Decimal `json:"total"`
	ItemsProcessed int             `json:"items_processed"`
}

// CreateSale processes a sale command. All validation and the FIFO
// availability check for every line happen before any row is written; the
// writes then commit or roll back as one unit.
func (s *SaleService) CreateSale(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CreateSale")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validateRequest(req); err != nil {
		util.SalesFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	db := s.store.DB()

	account, err := s.store.GetAccount(ctx, db, tc, req.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.SalesFailedTotal.WithLabelValues("account_not_found").Inc()
			return nil, notFound("account", req.AccountID)
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Active {
		return nil, validationf("account %q is inactive", account.Name)
	}

	if req.EventID != nil {
		if _, err := s.store.GetEvent(ctx, db, tc, *req.EventID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("event", *req.EventID)
			}
			return nil, fmt.Errorf("failed to load event: %w", err)
		}
	}

	if req.CustomerID != nil {
		if _, err := s.store.GetCustomer(ctx, db, tc, *req.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("customer", *req.CustomerID)
			}
			return nil, fmt.Errorf("failed to load customer: %w", err)
		}
	}

	products, err := s.loadProducts(ctx, tc, req.Items)
	if err != nil {
		return nil, err
	}

	for _, su := range req.SuppliesUsed {
		if _, err := s.store.GetSupply(ctx, db, tc, su.SupplyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("supply", su.SupplyID)
			}
			return nil, fmt.Errorf("failed to load supply: %w", err)
		}
	}

	totals := s.computeTotals(req)

	sale := &models.Sale{
		ID:            uuid.New().String(),
		CustomerID:    req.CustomerID,
		EventID:       req.EventID,
		AccountID:     req.AccountID,
		Subtotal:      totals.subtotal,
		Discount:      totals.discount,
		Tax:           totals.tax,
		ShippingCost:  totals.shipping,
		Total:         totals.total,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}

	start := time.Now()
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.commitSale(ctx, tx, tc, req, sale)
	})
	util.SaleCommitLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var short *store.ErrInsufficientStock
		if errors.As(err, &short) {
			util.SalesFailedTotal.WithLabelValues("insufficient_stock").Inc()
			name := short.ProductID
			if p, ok := products[short.ProductID]; ok {
				name = p.Name
			}
			return nil, &InsufficientStockError{
				ProductName: name,
				Requested:   short.Requested,
				Available:   short.Available,
			}
		}
		util.SalesFailedTotal.WithLabelValues("commit_failed").Inc()
		return nil, err
	}

	util.SalesCreatedTotal.Inc()
	s.logger.Info("Sale committed",
		zap.String("sale_id", sale.ID),
		zap.String("sale_number", sale.SaleNumber),
		zap.String("total", sale.Total.String()))

	s.publishSaleCompleted(ctx, tc, sale)

	return &CreateSaleResponse{
		SaleID:         sale.ID,
		SaleNumber:     sale.SaleNumber,
		Subtotal:       sale.Subtotal,
		Discount:       sale.Discount,
		Tax:            sale.Tax,
		ShippingCost:   sale.ShippingCost,
		Total:          sale.Total,
		ItemsProcessed: len(req.Items),
	}, nil
}

// commitSale holds every write of the sale. Reservations for all lines are
// planned before anything is mutated, so a shortage on line N never leaves
// earlier lines partially consumed.
func (s *SaleService) commitSale(ctx context.Context, tx *sqlx.Tx, tc tenant.Context, req *CreateSaleRequest, sale *models.Sale) error {
	number, err := s.store.NextSaleNumber(ctx, tx, tc)
	if err != nil {
		return err
	}
	sale.SaleNumber = fmt.Sprintf("S-%05d", number)

	// A cart may repeat a product across lines. Reservations are planned per
	// product over the summed quantity so each cost layer is claimed once;
	// every line of the product carries the same weighted unit cost.
	quantities := make(map[string]int, len(req.Items))
	productOrder := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			productOrder = append(productOrder, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	reservations := make(map[string]*store.FIFOReservation, len(productOrder))
	for _, productID := range productOrder {
		res, err := s.store.ReserveFIFO(ctx, tx, tc, productID, quantities[productID])
		if err != nil {
			return err
		}
		reservations[productID] = res
	}

	if err := s.store.InsertSale(ctx, tx, tc, sale); err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	for _, item := range req.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Sub(item.Discount).Round(moneyScale)

		saleItem := &models.SaleItem{
			ID:        uuid.New().String(),
			SaleID:    sale.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			UnitCost:  reservations[item.ProductID].UnitCost,
			LineTotal: lineTotal,
		}
		if err := s.store.InsertSaleItem(ctx, tx, saleItem); err != nil {
			return fmt.Errorf("failed to insert sale item: %w", err)
		}
	}

	for _, productID := range productOrder {
		if err := s.store.ApplyReservation(ctx, tx, tc, reservations[productID], models.ReferenceSale, sale.ID); err != nil {
			return err
		}
	}

	for _, su := range req.SuppliesUsed {
		usage := &models.SaleSupplyUsage{
			ID:       uuid.New().String(),
			SaleID:   sale.ID,
			SupplyID: su.SupplyID,
			Quantity: su.Quantity,
			UnitCost: su.UnitCost,
		}
		if err := s.store.InsertSaleSupply(ctx, tx, usage); err != nil {
			return fmt.Errorf("failed to insert supply usage: %w", err)
		}
		if err := s.store.ConsumeSupplyStock(ctx, tx, tc, su.SupplyID, su.Quantity); err != nil {
			return err
		}
		if err := s.store.InsertSupplyMovement(ctx, tx, tc, &models.SupplyMovement{
			ID:            uuid.New().String(),
			SupplyID:      su.SupplyID,
			Direction:     models.MovementOut,
			Quantity:      su.Quantity,
			ReferenceType: models.ReferenceSale,
			ReferenceID:   sale.ID,
		}); err != nil {
			return err
		}
	}

	posting := &models.Transaction{
		ID:            uuid.New().String(),
		Type:          models.TransactionIncome,
		AccountID:     sale.AccountID,
		Amount:        sale.Total,
		Description:   fmt.Sprintf("Sale %s", sale.SaleNumber),
		ReferenceType: models.ReferenceSale,
		ReferenceID:   &sale.ID,
	}
	if sale.EventID != nil {
		posting.ReferenceType = models.ReferenceEvent
		posting.ReferenceID = sale.EventID
	}
	if err := s.store.InsertTransaction(ctx, tx, tc, posting); err != nil {
		return fmt.Errorf("failed to insert income posting: %w", err)
	}
	if err := s.store.ApplyAccountDelta(ctx, tx, tc, sale.AccountID, sale.Total); err != nil {
		return err
	}

	if sale.CustomerID != nil {
		if err := s.store.BumpCustomerAggregates(ctx, tx, tc, *sale.CustomerID, sale.Total); err != nil {
			return err
		}
	}

	return nil
}

type saleTotals struct {
	subtotal decimal.Decimal
	discount decimal.Decimal
	tax      decimal.Decimal
	shipping decimal.Decimal
	total    decimal.Decimal
}

// computeTotals derives the sale's money figures. Tax is tax-inclusive: the
// charged price already contains it, so it is extracted from the discounted
// total rather than added on top.
func (s *SaleService) computeTotals(req *CreateSaleRequest) saleTotals {
	subtotal := decimal.Zero
	itemDiscounts := decimal.Zero
	for _, item := range req.Items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		itemDiscounts = itemDiscounts.Add(item.Discount)
	}
	subtotal = subtotal.Round(moneyScale)

	discount := itemDiscounts
	switch req.DiscountType {
	case DiscountPercent:
		discount = subtotal.Mul(req.DiscountValue).Div(decimal.NewFromInt(100)).Round(moneyScale)
	case DiscountAmount:
		discount = req.DiscountValue
	}

	saleTotal := subtotal.Sub(discount)

	tax := decimal.Zero
	if req.TaxRate.IsPositive() {
		one := decimal.NewFromInt(1)
		tax = saleTotal.Mul(req.TaxRate).Div(one.Add(req.TaxRate)).Round(moneyScale)
	}

	return saleTotals{
		subtotal: subtotal,
		discount: discount,
		tax:      tax,
		shipping: req.ShippingCost,
		total:    saleTotal.Add(req.ShippingCost).Round(moneyScale),
	}
}

func (s *SaleService) validateRequest(req *CreateSaleRequest) error {
	hasItemDiscount := false
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return validationf("item %d: quantity must be positive", i)
		}
		if item.UnitPrice.IsNegative() {
			return validationf("item %d: unit price cannot be negative", i)
		}
		if item.Discount.IsNegative() {
			return validationf("item %d: discount cannot be negative", i)
		}
		if item.Discount.IsPositive() {
			hasItemDiscount = true
		}
	}

	switch req.DiscountType {
	case "":
	case DiscountPercent:
		if req.DiscountValue.IsNegative() || req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return validationf("percent discount must be between 0 and 100")
		}
	case DiscountAmount:
		if req.DiscountValue.IsNegative() {
			return validationf("discount amount cannot be negative")
		}
	default:
		return validationf("unknown discount type %q", req.DiscountType)
	}
	if req.DiscountType != "" && hasItemDiscount {
		return validationf("global and per-item discounts are mutually exclusive")
	}

	if req.ShippingCost.IsNegative() {
		return validationf("shipping cost cannot be negative")
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return validationf("tax rate must be in [0, 1)")
	}

	totals := s.computeTotals(req)
	if totals.discount.GreaterThan(totals.subtotal) {
		return validationf("discount exceeds subtotal")
	}

	for i, su := range req.SuppliesUsed {
		if su.Quantity <= 0 {
			return validationf("supply %d: quantity must be positive", i)
		}
		if su.UnitCost.IsNegative() {
			return validationf("supply %d: unit cost cannot be negative", i)
		}
	}

	return nil
}

func (s *SaleService) loadProducts(ctx context.Context, tc tenant.Context, items []SaleItemRequest) (map[string]*models.Product, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, s.store.DB(), tc, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	for _, item := range items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, notFound("product", item.ProductID)
		}
	}
	return products, nil
}

// ListSales returns the tenant's recent sales.
func (s *SaleService) ListSales(ctx context.Context, limit int) ([]models.Sale, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListSales(ctx, s.store.DB(), tc, limit)
}

func (s *SaleService) publishSaleCompleted(ctx context.Context, tc tenant.Context, sale *models.Sale) {
	if s.cache != nil {
		if err := s.cache.InvalidateDashboard(ctx, tc.TenantID); err != nil {
			s.logger.Warn("Failed to invalidate dashboard cache", zap.Error(err))
		}
	}

	if s.events == nil {
		return
	}

	items, err := s.store.GetSaleItems(ctx, s.store.DB(), sale.ID)
	if err != nil {
		s.logger.Error("Failed to load sale items for event", zap.Error(err))
		return
	}
	itemData := make([]models.SaleItemData, 0, len(items))
	for _, it := range items {
		itemData = append(itemData, models.SaleItemData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			UnitCost:  it.UnitCost,
		})
	}

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			TenantID:  tc.TenantID,
			Timestamp: time.Now(),
		},
		SaleID:      sale.ID,
		SaleNumber:  sale.SaleNumber,
		AccountID:   sale.AccountID,
		SaleEventID: sale.EventID,
		Total:       sale.Total,
		Items:       itemData,
	}
	if err := s.events.PublishSaleCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleCompleted event", zap.Error(err))
	}
}
