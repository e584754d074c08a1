package store

import (
	"context"
	"database/sql"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/jmoiron/sqlx"
)

// InsertPurchaseBatch inserts the immutable purchase header.
func (s *Store) InsertPurchaseBatch(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, pb *models.PurchaseBatch) error {
	pb.TenantID = tc.TenantID
	pb.CreatedAt = now()
	if pb.ReceivedAt.IsZero() {
		pb.ReceivedAt = pb.CreatedAt
	}

	query := s.rebind(`
		INSERT INTO purchase_batches (id, tenant_id, account_id, currency, exchange_rate,
			shipping_cost, total_cost, notes, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		pb.ID, pb.TenantID, pb.AccountID, pb.Currency, pb.ExchangeRate,
		pb.ShippingCost, pb.TotalCost, pb.Notes, pb.ReceivedAt, pb.CreatedAt)
	return err
}

// InsertPurchaseItem inserts one purchase line.
func (s *Store) InsertPurchaseItem(ctx context.Context, ext sqlx.ExtContext, item *models.PurchaseBatchItem) error {
	query := s.rebind(`
		INSERT INTO purchase_batch_items (id, purchase_batch_id, product_id, quantity, unit_cost, line_total)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		item.ID, item.PurchaseBatchID, item.ProductID, item.Quantity, item.UnitCost, item.LineTotal)
	return err
}

// GetPurchaseBatch retrieves a purchase header scoped to the tenant.
func (s *Store) GetPurchaseBatch(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.PurchaseBatch, error) {
	var pb models.PurchaseBatch
	query := s.rebind(`SELECT * FROM purchase_batches WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &pb, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pb, nil
}

// GetPurchaseItems retrieves the lines of one purchase.
func (s *Store) GetPurchaseItems(ctx context.Context, ext sqlx.ExtContext, batchID string) ([]models.PurchaseBatchItem, error) {
	var items []models.PurchaseBatchItem
	query := s.rebind(`SELECT * FROM purchase_batch_items WHERE purchase_batch_id = ?`)
	err := sqlx.SelectContext(ctx, ext, &items, query, batchID)
	return items, err
}

// ListPurchases retrieves the tenant's purchases, newest first.
func (s *Store) ListPurchases(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, limit int) ([]models.PurchaseBatch, error) {
	var batches []models.PurchaseBatch
	query := s.rebind(`
		SELECT * FROM purchase_batches WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`)
	err := sqlx.SelectContext(ctx, ext, &batches, query, tc.TenantID, limit)
	return batches, err
}
