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

// LedgerService owns account management and manual postings: income and
// expense entries (including event expenses) and transfers between accounts.
type LedgerService struct {
	store  *store.Store
	events EventPublisher
	logger *zap.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(st *store.Store, events EventPublisher) *LedgerService {
	return &LedgerService{
		store:  st,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateAccountRequest represents a request to open an account.
type CreateAccountRequest struct {
	Name           string          `json:"name" binding:"required"`
	Type           string          `json:"type" binding:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// CreateAccount opens a new account for the tenant.
func (l *LedgerService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*models.Account, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case models.AccountTypeCash, models.AccountTypeBank, models.AccountTypeWallet:
	default:
		return nil, validationf("unknown account type %q", req.Type)
	}
	if req.InitialBalance.IsNegative() {
		return nil, validationf("initial balance cannot be negative")
	}

	acc := &models.Account{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Type:    req.Type,
		Balance: req.InitialBalance,
		Active:  true,
	}
	if err := l.store.CreateAccount(ctx, l.store.DB(), tc, acc); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

// ListAccounts returns the tenant's accounts.
func (l *LedgerService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return l.store.ListAccounts(ctx, l.store.DB(), tc)
}

// CreateTransactionRequest represents a manual income or expense posting.
// Tagging it with reference_type EVENT attributes the amount to that event's
// profit.
type CreateTransactionRequest struct {
	Type          string          `json:"type" binding:"required"`
	AccountID     string          `json:"account_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   *string         `json:"reference_id,omitempty"`
}

// CreateTransaction posts a manual income or expense entry.
func (l *LedgerService) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.CreateTransaction")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if req.Type != models.TransactionIncome && req.Type != models.TransactionExpense {
		return nil, validationf("transaction type must be INCOME or EXPENSE")
	}
	if !req.Amount.IsPositive() {
		return nil, validationf("amount must be positive")
	}

	refType := req.ReferenceType
	if refType == "" {
		refType = models.ReferenceOther
	}
	switch refType {
	case models.ReferenceEvent:
		if req.ReferenceID == nil {
			return nil, validationf("event reference requires a reference_id")
		}
		if _, err := l.store.GetEvent(ctx, l.store.DB(), tc, *req.ReferenceID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("event", *req.ReferenceID)
			}
			return nil, err
		}
	case models.ReferenceOther:
	default:
		return nil, validationf("manual postings may only reference EVENT or OTHER")
	}

	account, err := l.store.GetAccount(ctx, l.store.DB(), tc, req.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("account", req.AccountID)
		}
		return nil, err
	}
	if !account.Active {
		return nil, validationf("account %q is inactive", account.Name)
	}

	posting := &models.Transaction{
		ID:            uuid.New().String(),
		Type:          req.Type,
		AccountID:     req.AccountID,
		Amount:        req.Amount,
		Description:   req.Description,
		ReferenceType: refType,
		ReferenceID:   req.ReferenceID,
	}

	delta := req.Amount
	if req.Type == models.TransactionExpense {
		delta = delta.Neg()
	}

	err = l.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := l.store.InsertTransaction(ctx, tx, tc, posting); err != nil {
			return fmt.Errorf("failed to insert posting: %w", err)
		}
		return l.store.ApplyAccountDelta(ctx, tx, tc, req.AccountID, delta)
	})
	if err != nil {
		return nil, err
	}

	return posting, nil
}

// TransferRequest represents a transfer between two of the tenant's accounts.
type TransferRequest struct {
	FromAccountID string          `json:"from_account_id" binding:"required"`
	ToAccountID   string          `json:"to_account_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

// Transfer debits the origin and credits the destination in one posting.
func (l *LedgerService) Transfer(ctx context.Context, req *TransferRequest) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Transfer")
	defer span.End()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return nil, validationf("amount must be positive")
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, validationf("cannot transfer to the same account")
	}

	db := l.store.DB()
	from, err := l.store.GetAccount(ctx, db, tc, req.FromAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("account", req.FromAccountID)
		}
		return nil, err
	}
	if !from.Active {
		return nil, validationf("account %q is inactive", from.Name)
	}
	to, err := l.store.GetAccount(ctx, db, tc, req.ToAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("account", req.ToAccountID)
		}
		return nil, err
	}
	if !to.Active {
		return nil, validationf("account %q is inactive", to.Name)
	}

	posting := &models.Transaction{
		ID:            uuid.New().String(),
		Type:          models.TransactionTransfer,
		AccountID:     req.FromAccountID,
		ToAccountID:   &req.ToAccountID,
		Amount:        req.Amount,
		Description:   req.Description,
		ReferenceType: models.ReferenceOther,
	}

	err = l.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := l.store.InsertTransaction(ctx, tx, tc, posting); err != nil {
			return fmt.Errorf("failed to insert transfer: %w", err)
		}
		if err := l.store.ApplyAccountDelta(ctx, tx, tc, req.FromAccountID, req.Amount.Neg()); err != nil {
			return err
		}
		return l.store.ApplyAccountDelta(ctx, tx, tc, req.ToAccountID, req.Amount)
	})
	if err != nil {
		return nil, err
	}

	util.TransfersCreatedTotal.Inc()

	if l.events != nil {
		event := &models.FundsTransferredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeFundsTransferred,
				TenantID:  tc.TenantID,
				Timestamp: time.Now(),
			},
			TransactionID: posting.ID,
			FromAccountID: req.FromAccountID,
			ToAccountID:   req.ToAccountID,
			Amount:        req.Amount,
		}
		if err := l.events.PublishFundsTransferred(ctx, event); err != nil {
			l.logger.Error("Failed to publish FundsTransferred event", zap.Error(err))
		}
	}

	return posting, nil
}

// Reconciliation compares an account's denormalized balance against the sum
// of its signed postings. The two figures agree for a healthy ledger; initial
// balances set at account creation are not postings and show up as the
// difference.
type Reconciliation struct {
	AccountID     string          `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	PostingSum    decimal.Decimal `json:"posting_sum"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
}

// ReconcileAccount recomputes the account balance from the posting log.
func (l *LedgerService) ReconcileAccount(ctx context.Context, accountID string) (*Reconciliation, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := l.store.DB()
	account, err := l.store.GetAccount(ctx, db, tc, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("account", accountID)
		}
		return nil, err
	}

	txs, err := l.store.TransactionsTouchingAccount(ctx, db, tc, accountID)
	if err != nil {
		return nil, err
	}

	sum := store.SignedPostingSum(accountID, txs)
	return &Reconciliation{
		AccountID:     accountID,
		Balance:       account.Balance,
		PostingSum:    sum,
		OpeningAmount: account.Balance.Sub(sum),
	}, nil
}

// ListTransactions returns the tenant's recent postings.
func (l *LedgerService) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.ListTransactions(ctx, l.store.DB(), tc, limit)
}
