package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/tenant"
	"commerce-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReportService is a pure read path over committed rows. Every view it
// serves computes profit through the same three functions below; it never
// re-derives inventory state.
type ReportService struct {
	store  *store.Store
	cache  ReportCache
	logger *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(st *store.Store, cache ReportCache) *ReportService {
	return &ReportService{
		store:  st,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// LineProfit is revenue minus FIFO cost for one committed sale line.
func LineProfit(item models.SaleItem) decimal.Decimal {
	cost := item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity)))
	return item.LineTotal.Sub(cost)
}

// SaleProfit is the tax-inclusive profit of one committed sale: the charged
// prices already contain tax, so it is subtracted, never added.
func SaleProfit(sale *models.Sale, items []models.SaleItem) decimal.Decimal {
	profit := decimal.Zero
	for _, item := range items {
		profit = profit.Add(LineProfit(item))
	}
	return profit.Sub(sale.Tax)
}

// ProductTaxShare allocates a sale's tax to one line proportionally to its
// share of the discounted subtotal. A fully discounted sale carries no
// allocatable base.
func ProductTaxShare(sale *models.Sale, lineTotal decimal.Decimal) decimal.Decimal {
	base := sale.Subtotal.Sub(sale.Discount)
	if base.IsZero() {
		return decimal.Zero
	}
	return sale.Tax.Mul(lineTotal).Div(base)
}

// SaleDetail is the sale view with its computed profit.
type SaleDetail struct {
	Sale     *models.Sale             `json:"sale"`
	Items    []models.SaleItem        `json:"items"`
	Supplies []models.SaleSupplyUsage `json:"supplies,omitempty"`
	Profit   decimal.Decimal          `json:"profit"`
}

// GetSaleDetail returns one sale with its lines and profit.
func (r *ReportService) GetSaleDetail(ctx context.Context, saleID string) (*SaleDetail, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := r.store.DB()
	sale, err := r.store.GetSale(ctx, db, tc, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("sale", saleID)
		}
		return nil, err
	}
	items, err := r.store.GetSaleItems(ctx, db, sale.ID)
	if err != nil {
		return nil, err
	}
	supplies, err := r.store.GetSaleSupplies(ctx, db, sale.ID)
	if err != nil {
		return nil, err
	}

	return &SaleDetail{
		Sale:     sale,
		Items:    items,
		Supplies: supplies,
		Profit:   SaleProfit(sale, items),
	}, nil
}

// DashboardMetrics aggregates the tenant's committed sales over a period.
type DashboardMetrics struct {
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	SaleCount int             `json:"sale_count"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Tax       decimal.Decimal `json:"tax"`
	Profit    decimal.Decimal `json:"profit"`
}

// GetDashboard aggregates sales in [from, to). Results are served from the
// report cache when present; the write paths invalidate it on commit.
func (r *ReportService) GetDashboard(ctx context.Context, from, to time.Time) (*DashboardMetrics, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.GetDashboard")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s:%d:%d", tc.TenantID, from.Unix(), to.Unix())
	if r.cache != nil {
		var cached DashboardMetrics
		if hit, err := r.cache.GetDashboard(ctx, cacheKey, &cached); err != nil {
			r.logger.Warn("Dashboard cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	db := r.store.DB()
	sales, err := r.store.SalesInPeriod(ctx, db, tc, from, to)
	if err != nil {
		return nil, err
	}

	saleIDs := make([]string, len(sales))
	saleByID := make(map[string]*models.Sale, len(sales))
	for i := range sales {
		saleIDs[i] = sales[i].ID
		saleByID[sales[i].ID] = &sales[i]
	}
	items, err := r.store.SaleItemsForSales(ctx, db, saleIDs)
	if err != nil {
		return nil, err
	}
	itemsBySale := make(map[string][]models.SaleItem)
	for _, item := range items {
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}

	metrics := &DashboardMetrics{
		From:    from,
		To:      to,
		Revenue: decimal.Zero,
		Cost:    decimal.Zero,
		Tax:     decimal.Zero,
		Profit:  decimal.Zero,
	}
	for _, sale := range sales {
		saleItems := itemsBySale[sale.ID]
		metrics.SaleCount++
		metrics.Revenue = metrics.Revenue.Add(sale.Total)
		metrics.Tax = metrics.Tax.Add(sale.Tax)
		for _, item := range saleItems {
			metrics.Cost = metrics.Cost.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		metrics.Profit = metrics.Profit.Add(SaleProfit(saleByID[sale.ID], saleItems))
	}

	if r.cache != nil {
		if err := r.cache.SetDashboard(ctx, cacheKey, metrics); err != nil {
			r.logger.Warn("Dashboard cache write failed", zap.Error(err))
		}
	}

	return metrics, nil
}

// EventDetail is the event view with profit attribution: sale profits minus
// the fixed cost minus every non-fixed expense posted against the event.
type EventDetail struct {
	Event         *models.Event   `json:"event"`
	Sales         []models.Sale   `json:"sales"`
	Revenue       decimal.Decimal `json:"revenue"`
	SalesProfit   decimal.Decimal `json:"sales_profit"`
	FixedCost     decimal.Decimal `json:"fixed_cost"`
	ExtraExpenses decimal.Decimal `json:"extra_expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

// GetEventDetail returns one event with its recomputed net profit.
func (r *ReportService) GetEventDetail(ctx context.Context, eventID string) (*EventDetail, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.GetEventDetail")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := r.store.DB()
	event, err := r.store.GetEvent(ctx, db, tc, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("event", eventID)
		}
		return nil, err
	}

	sales, err := r.store.SalesForEvent(ctx, db, tc, eventID)
	if err != nil {
		return nil, err
	}
	saleIDs := make([]string, len(sales))
	for i := range sales {
		saleIDs[i] = sales[i].ID
	}
	items, err := r.store.SaleItemsForSales(ctx, db, saleIDs)
	if err != nil {
		return nil, err
	}
	itemsBySale := make(map[string][]models.SaleItem)
	for _, item := range items {
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}

	detail := &EventDetail{
		Event:         event,
		Sales:         sales,
		Revenue:       decimal.Zero,
		SalesProfit:   decimal.Zero,
		FixedCost:     event.FixedCost,
		ExtraExpenses: decimal.Zero,
	}
	for i := range sales {
		detail.Revenue = detail.Revenue.Add(sales[i].Total)
		detail.SalesProfit = detail.SalesProfit.Add(SaleProfit(&sales[i], itemsBySale[sales[i].ID]))
	}

	// Income postings also reference the event; only expenses count here.
	txs, err := r.store.TransactionsForReference(ctx, db, tc, models.ReferenceEvent, eventID)
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		if t.Type == models.TransactionExpense {
			detail.ExtraExpenses = detail.ExtraExpenses.Add(t.Amount)
		}
	}

	detail.NetProfit = detail.SalesProfit.Sub(detail.FixedCost).Sub(detail.ExtraExpenses)
	return detail, nil
}

// ProductPerformance aggregates one product across many sales. Tax is
// allocated per line proportionally to its share of each sale's discounted
// subtotal.
type ProductPerformance struct {
	ProductID string          `json:"product_id"`
	QtySold   int             `json:"qty_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	TaxShare  decimal.Decimal `json:"tax_share"`
	Profit    decimal.Decimal `json:"profit"`
}

// GetTopProducts ranks products by profit over a period.
func (r *ReportService) GetTopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductPerformance, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.GetTopProducts")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	db := r.store.DB()
	sales, err := r.store.SalesInPeriod(ctx, db, tc, from, to)
	if err != nil {
		return nil, err
	}
	saleIDs := make([]string, len(sales))
	saleByID := make(map[string]*models.Sale, len(sales))
	for i := range sales {
		saleIDs[i] = sales[i].ID
		saleByID[sales[i].ID] = &sales[i]
	}
	items, err := r.store.SaleItemsForSales(ctx, db, saleIDs)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]*ProductPerformance)
	order := make([]string, 0)
	for _, item := range items {
		perf, ok := byProduct[item.ProductID]
		if !ok {
			perf = &ProductPerformance{
				ProductID: item.ProductID,
				Revenue:   decimal.Zero,
				Cost:      decimal.Zero,
				TaxShare:  decimal.Zero,
				Profit:    decimal.Zero,
			}
			byProduct[item.ProductID] = perf
			order = append(order, item.ProductID)
		}

		sale := saleByID[item.SaleID]
		taxShare := ProductTaxShare(sale, item.LineTotal)

		perf.QtySold += item.Quantity
		perf.Revenue = perf.Revenue.Add(item.LineTotal)
		perf.Cost = perf.Cost.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
		perf.TaxShare = perf.TaxShare.Add(taxShare)
		perf.Profit = perf.Profit.Add(LineProfit(item).Sub(taxShare))
	}

	result := make([]ProductPerformance, 0, len(byProduct))
	for _, id := range order {
		result = append(result, *byProduct[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Profit.GreaterThan(result[j].Profit)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
