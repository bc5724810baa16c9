package orders

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-courier/internal/model"
	"doc-courier/internal/pricing"
	"doc-courier/internal/store/memory"
)

type recordedEvent struct {
	chatID int64
	number string
	status model.Status
	notes  string
}

type recordingNotifier struct {
	events []recordedEvent
	fail   bool
}

func (n *recordingNotifier) OrderEvent(_ context.Context, chatID int64, number string, status model.Status, notes string) error {
	n.events = append(n.events, recordedEvent{chatID, number, status, notes})
	if n.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func fixedFee(v string) pricing.DistanceFunc {
	return func(_, _ string) decimal.Decimal { return decimal.RequireFromString(v) }
}

func newTestEngine(t *testing.T, balance string) (*Engine, *memory.Store, *model.Account, *recordingNotifier) {
	t.Helper()
	st := memory.New()
	acc, err := st.CreateAccount(context.Background(), &model.Account{Login: "customer", ChatID: 77})
	require.NoError(t, err)
	if balance != "0" {
		err = st.AppendTransaction(context.Background(), &model.Transaction{
			AccountID: acc.ID,
			Type:      model.TxTopUp,
			Amount:    decimal.RequireFromString(balance),
			Approval:  model.ApprovalPending,
		})
		require.NoError(t, err)
	}
	n := &recordingNotifier{}
	calc := pricing.NewCalculator(pricing.DefaultRates(), fixedFee("10.00"))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(st, calc, n, log, 5), st, acc, n
}

func stdRequest() CreateRequest {
	return CreateRequest{
		Description:     "contracts to notary",
		PickupAddress:   "12 Main St",
		DeliveryAddress: "80 Oak Ave",
		Service:         model.ServiceStandard,
	}
}

func TestCreateStandardOrder(t *testing.T) {
	e, st, acc, n := newTestEngine(t, "100.00")
	ctx := context.Background()

	order, err := e.Create(ctx, acc.ID, stdRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, order.Status)
	assert.Equal(t, model.ApprovalPending, order.Approval)
	assert.True(t, order.TotalCost.Equal(decimal.NewFromInt(30)), "20 base + 10 fee")
	assert.True(t, order.TotalCost.Equal(order.BaseCost.Add(order.AddOnCost).Add(order.DistanceFee)))
	require.NotNil(t, order.Account)

	got, err := st.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(70)))

	txs, err := st.ListTransactions(ctx, &acc.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2, "top-up plus order payment")
	payment := txs[0]
	assert.Equal(t, model.TxOrderPayment, payment.Type)
	assert.Equal(t, order.ID, payment.OrderID)
	assert.True(t, payment.Amount.Equal(order.TotalCost.Neg()))

	require.Len(t, n.events, 1)
	assert.Equal(t, int64(77), n.events[0].chatID)
	assert.Equal(t, model.StatusPending, n.events[0].status)
}

func TestOrderNumberFormat(t *testing.T) {
	e, _, acc, _ := newTestEngine(t, "100.00")
	order, err := e.Create(context.Background(), acc.ID, stdRequest())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-\d{6}$`), order.Number)
	assert.Contains(t, order.Number, time.Now().Format("20060102"))
}

func TestCreateDocumentBoundary(t *testing.T) {
	e, st, acc, _ := newTestEngine(t, "500.00")
	ctx := context.Background()

	req := stdRequest()
	req.Service = model.ServiceDocument
	req.DocumentCount = 2
	_, err := e.Create(ctx, acc.ID, req)
	require.ErrorIs(t, err, pricing.ErrBelowMinimumQuantity)

	txs, _ := st.ListTransactions(ctx, &acc.ID)
	require.Len(t, txs, 1, "rejected order must not touch the ledger")

	req.DocumentCount = 3
	order, err := e.Create(ctx, acc.ID, req)
	require.NoError(t, err)
	assert.True(t, order.BaseCost.Equal(decimal.NewFromInt(48)))
}

func TestCreateInsufficientBalance(t *testing.T) {
	e, st, acc, n := newTestEngine(t, "10.00")
	ctx := context.Background()

	req := stdRequest()
	req.Service = model.ServiceExpress

	_, err := e.Create(ctx, acc.ID, req)
	var insErr *model.InsufficientBalanceError
	require.ErrorAs(t, err, &insErr)
	assert.True(t, insErr.Required.Equal(decimal.NewFromInt(45)), "35 base + 10 fee")
	assert.True(t, insErr.Available.Equal(decimal.NewFromInt(10)))

	got, _ := st.GetAccountByID(ctx, acc.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(10)), "balance untouched")

	orders, _ := st.ListOrders(ctx, model.OrderFilter{})
	assert.Empty(t, orders)
	assert.Empty(t, n.events)
}

func TestCreateActiveOrderCap(t *testing.T) {
	e, _, acc, _ := newTestEngine(t, "1000.00")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.Create(ctx, acc.ID, stdRequest())
		require.NoError(t, err, "order %d within the cap", i+1)
	}

	_, err := e.Create(ctx, acc.ID, stdRequest())
	require.ErrorIs(t, err, ErrTooManyActiveOrders)

	// Completing one frees a slot.
	_, err = e.UpdateStatus(ctx, 1, model.StatusCompleted, "", false)
	require.NoError(t, err)
	_, err = e.Create(ctx, acc.ID, stdRequest())
	require.NoError(t, err)
}

func TestCreateActiveOrderCapConcurrent(t *testing.T) {
	e, st, acc, _ := newTestEngine(t, "10000.00")
	ctx := context.Background()

	const workers = 16
	start := make(chan struct{})
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.Create(ctx, acc.ID, stdRequest())
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, ErrTooManyActiveOrders)
	}
	assert.Equal(t, 5, created)

	pendingOnly := model.StatusPending
	pending, err := st.ListOrders(ctx, model.OrderFilter{Status: &pendingOnly})
	require.NoError(t, err)
	assert.Len(t, pending, 5, "cap holds under concurrent creation")
}

func TestCreateValidation(t *testing.T) {
	e, st, acc, _ := newTestEngine(t, "100.00")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"empty description", func(r *CreateRequest) { r.Description = "" }},
		{"empty pickup", func(r *CreateRequest) { r.PickupAddress = "" }},
		{"no destination", func(r *CreateRequest) { r.DeliveryAddress = ""; r.Recipients = nil }},
		{"bad service", func(r *CreateRequest) { r.Service = "teleport" }},
		{"negative labels", func(r *CreateRequest) { r.ShippingLabels = -1 }},
		{"anonymous recipient", func(r *CreateRequest) { r.Recipients = []Recipient{{Address: "1 Road"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := stdRequest()
			tt.mutate(&req)
			_, err := e.Create(ctx, acc.ID, req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	txs, _ := st.ListTransactions(ctx, &acc.ID)
	require.Len(t, txs, 1, "no validation failure may reach the ledger")
}

func TestCreateAccountNotFound(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "100.00")
	_, err := e.Create(context.Background(), 98765, stdRequest())
	require.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestCreateMultiRecipient(t *testing.T) {
	e, _, acc, _ := newTestEngine(t, "500.00")

	req := stdRequest()
	req.Service = model.ServiceDocument
	req.DocumentCount = 3
	req.DeliveryAddress = ""
	req.Recipients = []Recipient{
		{Name: "A. Clerk", Address: "1 Court Sq", Files: []string{"deed.pdf"}},
		{Name: "B. Clerk", Address: "2 Court Sq"},
	}

	order, err := e.Create(context.Background(), acc.ID, req)
	require.NoError(t, err)
	require.Len(t, order.Addresses, 2)
	assert.Equal(t, order.ID, order.Addresses[0].OrderID)
	assert.Equal(t, []string{"deed.pdf"}, order.Addresses[0].Files)
}

func TestUpdateStatus(t *testing.T) {
	e, _, acc, n := newTestEngine(t, "100.00")
	ctx := context.Background()

	order, err := e.Create(ctx, acc.ID, stdRequest())
	require.NoError(t, err)
	n.events = nil

	updated, err := e.UpdateStatus(ctx, order.ID, model.StatusInProgress, "courier assigned", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, updated.Status)
	assert.Equal(t, "courier assigned", updated.Notes)
	assert.True(t, updated.UpdatedAt.After(order.UpdatedAt) || updated.UpdatedAt.Equal(order.UpdatedAt))

	require.Len(t, n.events, 1)
	assert.Equal(t, "courier assigned", n.events[0].notes)

	_, err = e.UpdateStatus(ctx, order.ID, model.StatusCompleted, "", false)
	require.NoError(t, err)
	require.Len(t, n.events, 1, "notify=false must not send")
}

func TestUpdateStatusNotFound(t *testing.T) {
	e, _, _, n := newTestEngine(t, "0")
	_, err := e.UpdateStatus(context.Background(), 404, model.StatusCompleted, "", true)
	require.ErrorIs(t, err, model.ErrOrderNotFound)
	assert.Empty(t, n.events)
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "0")
	_, err := e.UpdateStatus(context.Background(), 1, "lost", "", false)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	e, _, acc, n := newTestEngine(t, "100.00")
	n.fail = true

	order, err := e.Create(context.Background(), acc.ID, stdRequest())
	require.NoError(t, err, "notification failure must be swallowed")
	require.NotNil(t, order)
}

func TestListOrdersNewestFirst(t *testing.T) {
	e, st, acc, _ := newTestEngine(t, "1000.00")
	ctx := context.Background()

	other, err := st.CreateAccount(ctx, &model.Account{Login: "second"})
	require.NoError(t, err)
	require.NoError(t, st.AppendTransaction(ctx, &model.Transaction{
		AccountID: other.ID, Type: model.TxTopUp, Amount: decimal.NewFromInt(100),
	}))

	first, err := e.Create(ctx, acc.ID, stdRequest())
	require.NoError(t, err)
	second, err := e.Create(ctx, other.ID, stdRequest())
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, second.ID, model.StatusInProgress, "", false)
	require.NoError(t, err)

	all, err := e.List(ctx, model.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	require.NotNil(t, all[0].Account)
	assert.Equal(t, "second", all[0].Account.Login)

	pendingOnly := model.StatusPending
	pending, err := e.List(ctx, model.OrderFilter{Status: &pendingOnly})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	mine, err := e.List(ctx, model.OrderFilter{AccountID: &acc.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
}
