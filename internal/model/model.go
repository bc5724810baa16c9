package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateLogin      = errors.New("login already exists")
	ErrTooManyActiveOrders = errors.New("too many active orders")
)

// InsufficientBalanceError reports a debit that would overdraw an account.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return "insufficient balance: required " + e.Required.StringFixed(2) +
		", available " + e.Available.StringFixed(2)
}

// ChatLink is a one-shot code binding a messaging chat to an account. It
// lives in the TTL cache, never in storage.
type ChatLink struct {
	Code   string
	ChatID int64
}

// OrderFilter narrows order listings; nil fields match everything.
type OrderFilter struct {
	Status    *Status
	AccountID *int64
}

type Account struct {
	ID           int64           `json:"account_id"`
	Login        string          `json:"login"`
	PasswordHash string          `json:"-"`
	Name         string          `json:"name"`
	ChatID       int64           `json:"chat_id,omitempty"` // external messaging handle, 0 when unlinked
	Balance      decimal.Decimal `json:"balance"`
	Active       bool            `json:"active"`
	Admin        bool            `json:"admin"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the lifecycle ends at s. UpdateStatus does not
// consult this; transitions are operator-driven and deliberately unchecked.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type ServiceType string

const (
	ServiceStandard ServiceType = "standard"
	ServiceExpress  ServiceType = "express"
	ServiceSameDay  ServiceType = "same_day"
	ServiceDocument ServiceType = "document"
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceStandard, ServiceExpress, ServiceSameDay, ServiceDocument:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type Order struct {
	ID              int64             `json:"order_id"`
	AccountID       int64             `json:"account_id"`
	Number          string            `json:"number"`
	Description     string            `json:"description"`
	PickupAddress   string            `json:"pickup_address"`
	DeliveryAddress string            `json:"delivery_address"`
	Service         ServiceType       `json:"service_type"`
	BaseCost        decimal.Decimal   `json:"base_cost"`
	AddOnCost       decimal.Decimal   `json:"add_on_cost"`
	DistanceFee     decimal.Decimal   `json:"distance_fee"`
	TotalCost       decimal.Decimal   `json:"total_cost"`
	Status          Status            `json:"status"`
	Approval        ApprovalStatus    `json:"approval_status"`
	ApprovedBy      int64             `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Addresses       []DeliveryAddress `json:"addresses,omitempty"`
	Account         *Account          `json:"account,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DeliveryAddress is one recipient of a multi-recipient document order.
type DeliveryAddress struct {
	ID        int64    `json:"id"`
	OrderID   int64    `json:"order_id"`
	Recipient string   `json:"recipient"`
	Address   string   `json:"address"`
	Notes     string   `json:"notes,omitempty"`
	Files     []string `json:"files,omitempty"`
}

type TransactionType string

const (
	TxTopUp        TransactionType = "top_up"
	TxOrderPayment TransactionType = "order_payment"
	TxRefund       TransactionType = "refund"
)

// Transaction is an immutable ledger entry. Amount is signed: top-ups and
// refunds positive, order payments negative. An account balance is the fold
// of its transactions in creation order.
type Transaction struct {
	ID              int64           `json:"transaction_id"`
	AccountID       int64           `json:"account_id"`
	OrderID         int64           `json:"order_id,omitempty"` // 0 for pure top-ups
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Approval        ApprovalStatus  `json:"approval_status"`
	ApprovedBy      int64           `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
