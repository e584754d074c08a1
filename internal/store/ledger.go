package store

import (
	"context"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// InsertTransaction appends an immutable ledger posting. Balance effects are
// applied separately (ApplyAccountDelta) inside the same transaction.
func (s *Store) InsertTransaction(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, t *models.Transaction) error {
	t.TenantID = tc.TenantID
	t.CreatedAt = now()

	query := s.rebind(`
		INSERT INTO transactions (id, tenant_id, type, account_id, to_account_id, amount,
			description, reference_type, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		t.ID, t.TenantID, t.Type, t.AccountID, t.ToAccountID, t.Amount,
		t.Description, t.ReferenceType, t.ReferenceID, t.CreatedAt)
	return err
}

// ListTransactions retrieves the tenant's postings, newest first.
func (s *Store) ListTransactions(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := s.rebind(`
		SELECT * FROM transactions WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`)
	err := sqlx.SelectContext(ctx, ext, &txs, query, tc.TenantID, limit)
	return txs, err
}

// TransactionsInPeriod retrieves postings in [from, to).
func (s *Store) TransactionsInPeriod(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, from, to time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := s.rebind(`
		SELECT * FROM transactions
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at`)
	err := sqlx.SelectContext(ctx, ext, &txs, query, tc.TenantID, from, to)
	return txs, err
}

// TransactionsForReference retrieves postings tagged with a business event.
func (s *Store) TransactionsForReference(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, refType, refID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := s.rebind(`
		SELECT * FROM transactions
		WHERE tenant_id = ? AND reference_type = ? AND reference_id = ?
		ORDER BY created_at`)
	err := sqlx.SelectContext(ctx, ext, &txs, query, tc.TenantID, refType, refID)
	return txs, err
}

// TransactionsTouchingAccount retrieves every posting that names the account
// as origin or destination.
func (s *Store) TransactionsTouchingAccount(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, accountID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := s.rebind(`
		SELECT * FROM transactions
		WHERE tenant_id = ? AND (account_id = ? OR to_account_id = ?)
		ORDER BY created_at`)
	err := sqlx.SelectContext(ctx, ext, &txs, query, tc.TenantID, accountID, accountID)
	return txs, err
}

// SignedPostingSum recomputes an account balance from its posting log. The
// stored balance is denormalized; this is the reconciliation source of truth.
func SignedPostingSum(accountID string, txs []models.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case models.TransactionIncome:
			if t.AccountID == accountID {
				sum = sum.Add(t.Amount)
			}
		case models.TransactionExpense:
			if t.AccountID == accountID {
				sum = sum.Sub(t.Amount)
			}
		case models.TransactionTransfer:
			if t.AccountID == accountID {
				sum = sum.Sub(t.Amount)
			}
			if t.ToAccountID != nil && *t.ToAccountID == accountID {
				sum = sum.Add(t.Amount)
			}
		}
	}
	return sum
}
