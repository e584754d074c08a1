package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/jmoiron/sqlx"
)

// NextSaleNumber bumps the tenant's sale sequence atomically. The upsert is a
// single statement, so concurrent sales never read the same number; the bump
// participates in the sale transaction and rolls back with it.
func (s *Store) NextSaleNumber(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context) (int, error) {
	query := s.rebind(`
		INSERT INTO sale_counters (tenant_id, last_number) VALUES (?, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET last_number = sale_counters.last_number + 1
		RETURNING last_number`)

	var n int
	if err := sqlx.GetContext(ctx, ext, &n, query, tc.TenantID); err != nil {
		return 0, fmt.Errorf("failed to advance sale counter: %w", err)
	}
	return n, nil
}

// InsertSale inserts the immutable sale header.
func (s *Store) InsertSale(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, sale *models.Sale) error {
	sale.TenantID = tc.TenantID
	sale.CreatedAt = now()

	query := s.rebind(`
		INSERT INTO sales (id, tenant_id, sale_number, customer_id, event_id, account_id,
			subtotal, discount, tax, shipping_cost, total, payment_method, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		sale.ID, sale.TenantID, sale.SaleNumber, sale.CustomerID, sale.EventID, sale.AccountID,
		sale.Subtotal, sale.Discount, sale.Tax, sale.ShippingCost, sale.Total,
		sale.PaymentMethod, sale.Notes, sale.CreatedAt)
	return err
}

// InsertSaleItem inserts one sale line.
func (s *Store) InsertSaleItem(ctx context.Context, ext sqlx.ExtContext, item *models.SaleItem) error {
	query := s.rebind(`
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, discount, unit_cost, line_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		item.ID, item.SaleID, item.ProductID, item.Quantity,
		item.UnitPrice, item.Discount, item.UnitCost, item.LineTotal)
	return err
}

// InsertSaleSupply inserts one consumable usage row.
func (s *Store) InsertSaleSupply(ctx context.Context, ext sqlx.ExtContext, usage *models.SaleSupplyUsage) error {
	query := s.rebind(`
		INSERT INTO sale_supplies (id, sale_id, supply_id, quantity, unit_cost)
		VALUES (?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		usage.ID, usage.SaleID, usage.SupplyID, usage.Quantity, usage.UnitCost)
	return err
}

// GetSale retrieves a sale header scoped to the tenant.
func (s *Store) GetSale(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.Sale, error) {
	var sale models.Sale
	query := s.rebind(`SELECT * FROM sales WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &sale, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleItems retrieves the lines of one sale.
func (s *Store) GetSaleItems(ctx context.Context, ext sqlx.ExtContext, saleID string) ([]models.SaleItem, error) {
	var items []models.SaleItem
	query := s.rebind(`SELECT * FROM sale_items WHERE sale_id = ?`)
	err := sqlx.SelectContext(ctx, ext, &items, query, saleID)
	return items, err
}

// GetSaleSupplies retrieves the consumable usage of one sale.
func (s *Store) GetSaleSupplies(ctx context.Context, ext sqlx.ExtContext, saleID string) ([]models.SaleSupplyUsage, error) {
	var usages []models.SaleSupplyUsage
	query := s.rebind(`SELECT * FROM sale_supplies WHERE sale_id = ?`)
	err := sqlx.SelectContext(ctx, ext, &usages, query, saleID)
	return usages, err
}

// SalesInPeriod retrieves committed sales in [from, to).
func (s *Store) SalesInPeriod(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, from, to time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	query := s.rebind(`
		SELECT * FROM sales
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at`)
	err := sqlx.SelectContext(ctx, ext, &sales, query, tc.TenantID, from, to)
	return sales, err
}

// SalesForEvent retrieves every sale attached to an event.
func (s *Store) SalesForEvent(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, eventID string) ([]models.Sale, error) {
	var sales []models.Sale
	query := s.rebind(`
		SELECT * FROM sales WHERE tenant_id = ? AND event_id = ? ORDER BY created_at`)
	err := sqlx.SelectContext(ctx, ext, &sales, query, tc.TenantID, eventID)
	return sales, err
}

// SaleItemsForSales retrieves the lines of many sales at once.
func (s *Store) SaleItemsForSales(ctx context.Context, ext sqlx.ExtContext, saleIDs []string) ([]models.SaleItem, error) {
	if len(saleIDs) == 0 {
		return []models.SaleItem{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM sale_items WHERE sale_id IN (?)`, saleIDs)
	if err != nil {
		return nil, err
	}
	query = s.rebind(query)

	var items []models.SaleItem
	err = sqlx.SelectContext(ctx, ext, &items, query, args...)
	return items, err
}

// ListSales retrieves the tenant's sales, newest first.
func (s *Store) ListSales(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	query := s.rebind(`
		SELECT * FROM sales WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`)
	err := sqlx.SelectContext(ctx, ext, &sales, query, tc.TenantID, limit)
	return sales, err
}
