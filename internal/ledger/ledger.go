// Package ledger records every balance change as an immutable transaction.
// An account balance is never touched except here or inside the order
// engine's atomic create-and-debit path; both pair the mutation with an
// appended transaction row.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"doc-courier/internal/model"
)

var ErrNonPositiveAmount = errors.New("amount must be positive")

type Store interface {
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	AppendTransaction(ctx context.Context, t *model.Transaction) error
	ListTransactions(ctx context.Context, accountID *int64) ([]model.Transaction, error)
}

type Ledger struct {
	store Store
	log   *slog.Logger
}

func New(store Store, log *slog.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// Credit appends a positive entry and raises the balance by amount.
func (l *Ledger) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, txType model.TransactionType, orderID int64, description string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	t := &model.Transaction{
		AccountID:   accountID,
		OrderID:     orderID,
		Type:        txType,
		Amount:      amount.Round(2),
		Description: description,
		Approval:    model.ApprovalPending,
	}
	if err := l.store.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	l.log.Info("ledger credit", "account_id", accountID, "amount", t.Amount, "type", txType)
	return t, nil
}

// Debit appends a negative entry and lowers the balance by amount. The caller
// must have checked sufficiency first; the ledger does not re-enforce
// non-negativity.
func (l *Ledger) Debit(ctx context.Context, accountID int64, amount decimal.Decimal, orderID int64, description string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	t := &model.Transaction{
		AccountID:   accountID,
		OrderID:     orderID,
		Type:        model.TxOrderPayment,
		Amount:      amount.Round(2).Neg(),
		Description: description,
		Approval:    model.ApprovalPending,
	}
	if err := l.store.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	l.log.Info("ledger debit", "account_id", accountID, "amount", t.Amount)
	return t, nil
}

// TopUp credits a prepaid balance and returns the refreshed account.
func (l *Ledger) TopUp(ctx context.Context, accountID int64, amount decimal.Decimal, description string) (*model.Account, error) {
	if description == "" {
		description = "balance top-up"
	}
	if _, err := l.Credit(ctx, accountID, amount, model.TxTopUp, 0, description); err != nil {
		return nil, err
	}
	return l.store.GetAccountByID(ctx, accountID)
}

// Refund credits back a previously debited order payment.
func (l *Ledger) Refund(ctx context.Context, accountID int64, amount decimal.Decimal, orderID int64, description string) (*model.Transaction, error) {
	if description == "" {
		description = "refund"
	}
	return l.Credit(ctx, accountID, amount, model.TxRefund, orderID, description)
}

func (l *Ledger) ListTransactions(ctx context.Context, accountID *int64) ([]model.Transaction, error) {
	return l.store.ListTransactions(ctx, accountID)
}
