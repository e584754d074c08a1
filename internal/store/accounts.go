package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a tenant-scoped lookup matches no row.
var ErrNotFound = errors.New("not found")

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, acc *models.Account) error {
	acc.TenantID = tc.TenantID
	acc.CreatedAt = now()
	acc.UpdatedAt = acc.CreatedAt

	query := s.rebind(`
		INSERT INTO accounts (id, tenant_id, name, type, balance, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		acc.ID, acc.TenantID, acc.Name, acc.Type, acc.Balance, acc.Active, acc.CreatedAt, acc.UpdatedAt)
	return err
}

// GetAccount retrieves an account scoped to the tenant.
func (s *Store) GetAccount(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.Account, error) {
	var acc models.Account
	query := s.rebind(`SELECT * FROM accounts WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &acc, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ListAccounts retrieves all of the tenant's accounts.
func (s *Store) ListAccounts(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context) ([]models.Account, error) {
	var accounts []models.Account
	query := s.rebind(`SELECT * FROM accounts WHERE tenant_id = ? ORDER BY created_at`)
	err := sqlx.SelectContext(ctx, ext, &accounts, query, tc.TenantID)
	return accounts, err
}

// ApplyAccountDelta adjusts the denormalized balance by a signed amount.
// Callers must run it in the same transaction as the posting that caused it.
func (s *Store) ApplyAccountDelta(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, accountID string, delta decimal.Decimal) error {
	query := s.rebind(`
		UPDATE accounts SET balance = balance + ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`)

	res, err := ext.ExecContext(ctx, query, delta, now(), accountID, tc.TenantID)
	if err != nil {
		return fmt.Errorf("failed to adjust account balance: %w", err)
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

// CreateCustomer inserts a new customer.
func (s *Store) CreateCustomer(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, c *models.Customer) error {
	c.TenantID = tc.TenantID
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt

	query := s.rebind(`
		INSERT INTO customers (id, tenant_id, name, phone, total_orders, total_spent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		c.ID, c.TenantID, c.Name, c.Phone, c.TotalOrders, c.TotalSpent, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetCustomer retrieves a customer scoped to the tenant.
func (s *Store) GetCustomer(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, id string) (*models.Customer, error) {
	var c models.Customer
	query := s.rebind(`SELECT * FROM customers WHERE id = ? AND tenant_id = ?`)
	err := sqlx.GetContext(ctx, ext, &c, query, id, tc.TenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCustomers retrieves all of the tenant's customers.
func (s *Store) ListCustomers(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context) ([]models.Customer, error) {
	var customers []models.Customer
	query := s.rebind(`SELECT * FROM customers WHERE tenant_id = ? ORDER BY name`)
	err := sqlx.SelectContext(ctx, ext, &customers, query, tc.TenantID)
	return customers, err
}

// BumpCustomerAggregates records one committed sale against the customer.
func (s *Store) BumpCustomerAggregates(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, customerID string, spent decimal.Decimal) error {
	query := s.rebind(`
		UPDATE customers
		SET total_orders = total_orders + 1, total_spent = total_spent + ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`)

	res, err := ext.ExecContext(ctx, query, spent, now(), customerID, tc.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update customer aggregates: %w", err)
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
