package ledger

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"doc-courier/internal/model"
	"doc-courier/internal/store/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store, *model.Account) {
	t.Helper()
	st := memory.New()
	acc, err := st.CreateAccount(context.Background(), &model.Account{Login: "customer"})
	require.NoError(t, err)
	return New(st, slog.New(slog.NewTextHandler(io.Discard, nil))), st, acc
}

func TestTopUpAppendsTransaction(t *testing.T) {
	l, st, acc := newTestLedger(t)
	ctx := context.Background()

	got, err := l.TopUp(ctx, acc.ID, decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	txs, err := st.ListTransactions(ctx, &acc.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, model.TxTopUp, txs[0].Type)
	require.True(t, txs[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestCreditRejectsNonPositive(t *testing.T) {
	l, _, acc := newTestLedger(t)
	ctx := context.Background()

	_, err := l.TopUp(ctx, acc.ID, decimal.Zero, "")
	require.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = l.Debit(ctx, acc.ID, decimal.NewFromInt(-5), 0, "bad")
	require.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestTopUpUnknownAccount(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.TopUp(context.Background(), 999, decimal.NewFromInt(10), "")
	require.ErrorIs(t, err, model.ErrAccountNotFound)
}

// Reconciliation: after any sequence of credits and debits the balance equals
// the initial balance plus the signed sum of all transaction amounts.
func TestReconciliation(t *testing.T) {
	l, st, acc := newTestLedger(t)
	ctx := context.Background()

	_, err := l.TopUp(ctx, acc.ID, decimal.NewFromInt(1000), "seed")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		amount := decimal.NewFromFloat(1 + rng.Float64()*40).Round(2)
		if rng.Intn(2) == 0 {
			_, err = l.Credit(ctx, acc.ID, amount, model.TxTopUp, 0, "credit")
		} else {
			_, err = l.Debit(ctx, acc.ID, amount, 0, "debit")
		}
		require.NoError(t, err)
	}

	txs, err := st.ListTransactions(ctx, &acc.ID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}

	got, err := st.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(sum),
		"balance %s must equal transaction sum %s", got.Balance, sum)
}
