// Package orders is the order engine: it turns a service request into a
// priced, balance-checked, persisted order and drives status transitions.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"doc-courier/internal/model"
	"doc-courier/internal/notify"
	"doc-courier/internal/pricing"
)

var (
	ErrInvalidRequest      = errors.New("invalid order request")
	ErrTooManyActiveOrders = model.ErrTooManyActiveOrders
)

const DefaultActiveOrderCap = 5

type Store interface {
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	CreateOrderPaid(ctx context.Context, o *model.Order, pay *model.Transaction, activeCap int) error
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.Status, notes string) (*model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
}

type Engine struct {
	store    Store
	calc     *pricing.Calculator
	notifier notify.Notifier
	log      *slog.Logger
	cap      int
}

func NewEngine(store Store, calc *pricing.Calculator, notifier notify.Notifier, log *slog.Logger, activeOrderCap int) *Engine {
	if activeOrderCap <= 0 {
		activeOrderCap = DefaultActiveOrderCap
	}
	return &Engine{store: store, calc: calc, notifier: notifier, log: log, cap: activeOrderCap}
}

// Recipient is one destination of a multi-recipient document order.
type Recipient struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Notes   string   `json:"notes,omitempty"`
	Files   []string `json:"files,omitempty"`
}

type CreateRequest struct {
	Description         string            `json:"description"`
	PickupAddress       string            `json:"pickup_address"`
	DeliveryAddress     string            `json:"delivery_address"`
	Service             model.ServiceType `json:"service_type"`
	DocumentCount       int               `json:"document_count,omitempty"`
	ShippingLabels      int               `json:"shipping_labels,omitempty"`
	SpecialInstructions string            `json:"special_instructions,omitempty"`
	Recipients          []Recipient       `json:"recipients,omitempty"`
}

func (r *CreateRequest) validate() error {
	if r.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidRequest)
	}
	if r.PickupAddress == "" {
		return fmt.Errorf("%w: pickup address is required", ErrInvalidRequest)
	}
	if r.DeliveryAddress == "" && len(r.Recipients) == 0 {
		return fmt.Errorf("%w: delivery address or recipients required", ErrInvalidRequest)
	}
	if !r.Service.Valid() {
		return fmt.Errorf("%w: unknown service type %q", ErrInvalidRequest, r.Service)
	}
	if r.DocumentCount < 0 || r.ShippingLabels < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidRequest)
	}
	for _, rc := range r.Recipients {
		if rc.Name == "" || rc.Address == "" {
			return fmt.Errorf("%w: recipient name and address required", ErrInvalidRequest)
		}
	}
	return nil
}

// newOrderNumber builds the human-readable number: ORD-YYYYMMDD- plus the six
// trailing digits of the millisecond epoch.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), now.UnixMilli()%1_000_000)
}

// Create validates, prices and persists an order, debiting the owner's
// balance in the same storage transaction. All validation happens before any
// mutation: a rejected order leaves balance and ledger untouched.
func (e *Engine) Create(ctx context.Context, accountID int64, req CreateRequest) (*model.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	quote, err := e.calc.Quote(pricing.Request{
		Service:         req.Service,
		DocumentCount:   req.DocumentCount,
		ShippingLabels:  req.ShippingLabels,
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		return nil, err
	}

	account, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.Balance.LessThan(quote.TotalCost) {
		return nil, &model.InsufficientBalanceError{
			Required:  quote.TotalCost,
			Available: account.Balance,
		}
	}

	order := &model.Order{
		AccountID:       accountID,
		Number:          newOrderNumber(time.Now()),
		Description:     req.Description,
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		Service:         req.Service,
		BaseCost:        quote.BaseCost,
		AddOnCost:       quote.AddOnCost,
		DistanceFee:     quote.DistanceFee,
		TotalCost:       quote.TotalCost,
		Status:          model.StatusPending,
		Approval:        model.ApprovalPending,
		Notes:           req.SpecialInstructions,
	}
	for _, rc := range req.Recipients {
		order.Addresses = append(order.Addresses, model.DeliveryAddress{
			Recipient: rc.Name,
			Address:   rc.Address,
			Notes:     rc.Notes,
			Files:     rc.Files,
		})
	}

	pay := &model.Transaction{
		AccountID:   accountID,
		Type:        model.TxOrderPayment,
		Amount:      quote.TotalCost.Neg(),
		Description: fmt.Sprintf("payment for order %s", order.Number),
		Approval:    model.ApprovalPending,
	}

	// The store serializes the active-order count, balance re-check and debit
	// per account, so concurrent creations can neither overdraw past a stale
	// sufficiency check nor jointly exceed the active-order cap.
	if err := e.store.CreateOrderPaid(ctx, order, pay, e.cap); err != nil {
		return nil, err
	}
	order.Account = account

	e.log.Info("order created",
		"number", order.Number,
		"account_id", accountID,
		"service", order.Service,
		"total", order.TotalCost,
	)

	e.notifyEvent(ctx, account.ChatID, order.Number, order.Status, "")
	return order, nil
}

// UpdateStatus applies the new status unconditionally; transitions are
// operator-driven and not checked for legality beyond set membership.
func (e *Engine) UpdateStatus(ctx context.Context, orderID int64, status model.Status, notes string, sendNotify bool) (*model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}

	order, err := e.store.UpdateOrderStatus(ctx, orderID, status, notes)
	if err != nil {
		return nil, err
	}

	e.log.Info("order status updated", "number", order.Number, "status", status)

	if sendNotify && order.Account != nil {
		e.notifyEvent(ctx, order.Account.ChatID, order.Number, status, notes)
	}
	return order, nil
}

func (e *Engine) List(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	return e.store.ListOrders(ctx, f)
}

func (e *Engine) Get(ctx context.Context, orderID int64) (*model.Order, error) {
	return e.store.GetOrderByID(ctx, orderID)
}

// notifyEvent is fire-and-forget: delivery failures are logged and swallowed,
// never surfaced to the caller.
func (e *Engine) notifyEvent(ctx context.Context, chatID int64, number string, status model.Status, notes string) {
	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.notifier.OrderEvent(nctx, chatID, number, status, notes); err != nil {
		e.log.Warn("order notification failed", "number", number, "error", err)
	}
}
