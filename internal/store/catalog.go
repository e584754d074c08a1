package store

import (
	"context"
	"database/sql"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/jmoiron/sqlx"
)

// CreateProduct inserts a new product.
func (s *Store) CreateProduct(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, p *models.Product) error {
	p.TenantID = tc.TenantID
	p.CreatedAt = now()

	query := s.rebind(`
		INSERT INTO products (id, tenant_id, sku, name, price, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		p.ID, p.TenantID, p.SKU, p.Name, p.Price, p.Active, p.CreatedAt)
	return err
}

// GetProduct retrieves a product scoped to the tenant.
func (s *Store) GetProduct(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.Product, error) {
	var p models.Product
	query := s.rebind(`SELECT * FROM products WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &p, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts retrieves all of the tenant's products.
func (s *Store) ListProducts(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context) ([]models.Product, error) {
	var products []models.Product
	query := s.rebind(`SELECT * FROM products WHERE tenant_id = ? ORDER BY name`)
	err := sqlx.SelectContext(ctx, ext, &products, query, tc.TenantID)
	return products, err
}

// GetProductsByIDs retrieves multiple products scoped to the tenant.
func (s *Store) GetProductsByIDs(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, ids []string) (map[string]*models.Product, error) {
	result := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM products WHERE tenant_id = ? AND id IN (?)`, tc.TenantID, ids)
	if err != nil {
		return nil, err
	}
	query = s.rebind(query)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, ext, &products, query, args...); err != nil {
		return nil, err
	}
	for i := range products {
		result[products[i].ID] = &products[i]
	}
	return result, nil
}

// CreateSupply inserts a new supply.
func (s *Store) CreateSupply(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, sp *models.Supply) error {
	sp.TenantID = tc.TenantID
	sp.CreatedAt = now()
	sp.UpdatedAt = sp.CreatedAt

	query := s.rebind(`
		INSERT INTO supplies (id, tenant_id, name, stock, unit_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		sp.ID, sp.TenantID, sp.Name, sp.Stock, sp.UnitCost, sp.CreatedAt, sp.UpdatedAt)
	return err
}

// GetSupply retrieves a supply scoped to the tenant.
func (s *Store) GetSupply(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.Supply, error) {
	var sp models.Supply
	query := s.rebind(`SELECT * FROM supplies WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &sp, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// ListSupplies retrieves all of the tenant's supplies.
func (s *Store) ListSupplies(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context) ([]models.Supply, error) {
	var supplies []models.Supply
	query := s.rebind(`SELECT * FROM supplies WHERE tenant_id = ? ORDER BY name`)
	err := sqlx.SelectContext(ctx, ext, &supplies, query, tc.TenantID)
	return supplies, err
}

// CreateEvent inserts a new selling event.
func (s *Store) CreateEvent(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, ev *models.Event) error {
	ev.TenantID = tc.TenantID
	ev.CreatedAt = now()

	query := s.rebind(`
		INSERT INTO events (id, tenant_id, name, status, fixed_cost, starts_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		ev.ID, ev.TenantID, ev.Name, ev.Status, ev.FixedCost, ev.StartsAt, ev.CreatedAt)
	return err
}

// GetEvent retrieves an event scoped to the tenant.
func (s *Store) GetEvent(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.Event, error) {
	var ev models.Event
	query := s.rebind(`SELECT * FROM events WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &ev, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEvents retrieves all of the tenant's events.
func (s *Store) ListEvents(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context) ([]models.Event, error) {
	var events []models.Event
	query := s.rebind(`SELECT * FROM events WHERE tenant_id = ? ORDER BY created_at DESC`)
	err := sqlx.SelectContext(ctx, ext, &events, query, tc.TenantID)
	return events, err
}

// UpdateEventStatus moves an event through PLANNED/ACTIVE/COMPLETED.
func (s *Store) UpdateEventStatus(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id, status string) error {
	query := s.rebind(`UPDATE events SET status = ? WHERE id = ? AND tenant_id = ?`)
	res, err := ext.ExecContext(ctx, query, status, id, tc.TenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
