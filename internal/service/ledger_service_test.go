package service

import (
	"testing"

	"commerce-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesBothBalances(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	from := env.seedAccount(t, "100")
	to := env.seedAccount(t, "5")

	posting, err := svc.Transfer(env.ctx, &TransferRequest{
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        dec(t, "40"),
	})
	require.NoError(t, err)

	assert.Equal(t, "60", env.accountBalance(t, from.ID))
	assert.Equal(t, "45", env.accountBalance(t, to.ID))

	// One posting names both sides; there is no second row to drift from.
	assert.Equal(t, models.TransactionTransfer, posting.Type)
	assert.Equal(t, from.ID, posting.AccountID)
	require.NotNil(t, posting.ToAccountID)
	assert.Equal(t, to.ID, *posting.ToAccountID)

	txs, err := svc.ListTransactions(env.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestTransferValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	acc := env.seedAccount(t, "100")
	var verr *ValidationError

	_, err := svc.Transfer(env.ctx, &TransferRequest{
		FromAccountID: acc.ID,
		ToAccountID:   acc.ID,
		Amount:        dec(t, "10"),
	})
	require.ErrorAs(t, err, &verr, "same account")

	_, err = svc.Transfer(env.ctx, &TransferRequest{
		FromAccountID: acc.ID,
		ToAccountID:   "other",
		Amount:        dec(t, "0"),
	})
	require.ErrorAs(t, err, &verr, "non-positive amount")
}

func TestCreateTransactionAppliesSignedDelta(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	acc := env.seedAccount(t, "100")

	_, err := svc.CreateTransaction(env.ctx, &CreateTransactionRequest{
		Type:      models.TransactionIncome,
		AccountID: acc.ID,
		Amount:    dec(t, "30"),
	})
	require.NoError(t, err)
	assert.Equal(t, "130", env.accountBalance(t, acc.ID))

	_, err = svc.CreateTransaction(env.ctx, &CreateTransactionRequest{
		Type:      models.TransactionExpense,
		AccountID: acc.ID,
		Amount:    dec(t, "50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "80", env.accountBalance(t, acc.ID))
}

func TestCreateTransactionRejectsTransferType(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	_, err := svc.CreateTransaction(env.ctx, &CreateTransactionRequest{
		Type:      models.TransactionTransfer,
		AccountID: "acc",
		Amount:    dec(t, "10"),
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateTransactionEventReferenceMustExist(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	acc := env.seedAccount(t, "100")
	missing := "missing-event"

	_, err := svc.CreateTransaction(env.ctx, &CreateTransactionRequest{
		Type:          models.TransactionExpense,
		AccountID:     acc.ID,
		Amount:        dec(t, "10"),
		ReferenceType: models.ReferenceEvent,
		ReferenceID:   &missing,
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	event := env.seedEvent(t, "0")
	_, err = svc.CreateTransaction(env.ctx, &CreateTransactionRequest{
		Type:          models.TransactionExpense,
		AccountID:     acc.ID,
		Amount:        dec(t, "10"),
		ReferenceType: models.ReferenceEvent,
		ReferenceID:   &event.ID,
	})
	require.NoError(t, err)
}

func TestReconcileAccountSeparatesOpeningBalance(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	acc := env.seedAccount(t, "100")

	_, err := svc.CreateTransaction(env.ctx, &CreateTransactionRequest{
		Type:      models.TransactionIncome,
		AccountID: acc.ID,
		Amount:    dec(t, "50"),
	})
	require.NoError(t, err)

	rec, err := svc.ReconcileAccount(env.ctx, acc.ID)
	require.NoError(t, err)

	assert.Equal(t, "150", rec.Balance.String())
	assert.Equal(t, "50", rec.PostingSum.String())
	assert.Equal(t, "100", rec.OpeningAmount.String())
}

func TestCreateAccountValidatesType(t *testing.T) {
	env := newTestEnv(t)
	svc := NewLedgerService(env.store, nil)

	_, err := svc.CreateAccount(env.ctx, &CreateAccountRequest{
		Name: "Petty",
		Type: "SHOEBOX",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	acc, err := svc.CreateAccount(env.ctx, &CreateAccountRequest{
		Name:           "Petty",
		Type:           models.AccountTypeCash,
		InitialBalance: dec(t, "25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "25", acc.Balance.String())
	assert.True(t, acc.Active)
}
