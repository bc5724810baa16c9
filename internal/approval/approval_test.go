package approval

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-courier/internal/model"
	"doc-courier/internal/store/memory"
)

func newTestGate(t *testing.T) (*Gate, *memory.Store, *model.Order, *model.Transaction) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	acc, err := st.CreateAccount(ctx, &model.Account{Login: "customer"})
	require.NoError(t, err)
	require.NoError(t, st.AppendTransaction(ctx, &model.Transaction{
		AccountID: acc.ID, Type: model.TxTopUp, Amount: decimal.NewFromInt(100),
	}))

	order := &model.Order{
		AccountID: acc.ID,
		Number:    "ORD-20260828-000001",
		Service:   model.ServiceStandard,
		TotalCost: decimal.NewFromInt(30),
		Status:    model.StatusPending,
		Approval:  model.ApprovalPending,
	}
	pay := &model.Transaction{
		AccountID: acc.ID,
		Type:      model.TxOrderPayment,
		Amount:    decimal.NewFromInt(-30),
		Approval:  model.ApprovalPending,
	}
	require.NoError(t, st.CreateOrderPaid(ctx, order, pay, 5))

	return NewGate(st, slog.New(slog.NewTextHandler(io.Discard, nil))), st, order, pay
}

func TestApproveOrder(t *testing.T) {
	g, st, order, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.Approve(ctx, KindOrder, order.ID, 42))

	got, err := st.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, got.Approval)
	assert.Equal(t, int64(42), got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)

	// Re-approval re-stamps with the new approver.
	require.NoError(t, g.Approve(ctx, KindOrder, order.ID, 43))
	got, err = st.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(43), got.ApprovedBy)
}

func TestApproveDoesNotTouchStatusOrBalance(t *testing.T) {
	g, st, order, _ := newTestGate(t)
	ctx := context.Background()

	before, err := st.GetAccountByID(ctx, order.AccountID)
	require.NoError(t, err)

	require.NoError(t, g.Approve(ctx, KindOrder, order.ID, 42))

	got, err := st.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	after, err := st.GetAccountByID(ctx, order.AccountID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(before.Balance))
}

func TestRejectRequiresReason(t *testing.T) {
	g, st, order, _ := newTestGate(t)
	ctx := context.Background()

	err := g.Reject(ctx, KindOrder, order.ID, 42, "")
	require.ErrorIs(t, err, ErrReasonRequired)

	got, err := st.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, got.Approval, "failed reject must not write")

	require.NoError(t, g.Reject(ctx, KindOrder, order.ID, 42, "address unverifiable"))
	got, err = st.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalRejected, got.Approval)
	assert.Equal(t, "address unverifiable", got.RejectionReason)
}

func TestApproveTransaction(t *testing.T) {
	g, st, order, pay := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.Approve(ctx, KindTransaction, pay.ID, 42))

	txs, err := st.ListTransactions(ctx, &order.AccountID)
	require.NoError(t, err)
	for _, tx := range txs {
		if tx.ID == pay.ID {
			assert.Equal(t, model.ApprovalApproved, tx.Approval)
			return
		}
	}
	t.Fatal("payment transaction not found")
}

func TestUnknownKindAndMissingEntities(t *testing.T) {
	g, _, _, _ := newTestGate(t)
	ctx := context.Background()

	require.ErrorIs(t, g.Approve(ctx, "invoice", 1, 42), ErrUnknownKind)
	require.ErrorIs(t, g.Approve(ctx, KindOrder, 404, 42), model.ErrOrderNotFound)
	require.ErrorIs(t, g.Reject(ctx, KindTransaction, 404, 42, "nope"), model.ErrTransactionNotFound)
}
