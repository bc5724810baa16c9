// Package approval tracks human sign-off on orders and transactions. The
// approval status is a workflow flag independent of order status: it never
// gates fulfillment or balance movement.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"doc-courier/internal/model"
)

var (
	ErrReasonRequired = errors.New("rejection reason is required")
	ErrUnknownKind    = errors.New("unknown entity kind")
)

type Kind string

const (
	KindOrder       Kind = "order"
	KindTransaction Kind = "transaction"
)

type Store interface {
	SetOrderApproval(ctx context.Context, id int64, st model.ApprovalStatus, approverID int64, reason string) error
	SetTransactionApproval(ctx context.Context, id int64, st model.ApprovalStatus, approverID int64, reason string) error
}

type Gate struct {
	store Store
	log   *slog.Logger
}

func NewGate(store Store, log *slog.Logger) *Gate {
	return &Gate{store: store, log: log}
}

// Approve stamps the entity approved with the approver and time. Calling it
// again simply re-stamps; there is no first-writer-wins protection.
func (g *Gate) Approve(ctx context.Context, kind Kind, id, approverID int64) error {
	if err := g.set(ctx, kind, id, model.ApprovalApproved, approverID, ""); err != nil {
		return err
	}
	g.log.Info("entity approved", "kind", kind, "id", id, "approver_id", approverID)
	return nil
}

// Reject stamps the entity rejected; a non-empty reason is mandatory.
func (g *Gate) Reject(ctx context.Context, kind Kind, id, approverID int64, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if err := g.set(ctx, kind, id, model.ApprovalRejected, approverID, reason); err != nil {
		return err
	}
	g.log.Info("entity rejected", "kind", kind, "id", id, "approver_id", approverID, "reason", reason)
	return nil
}

func (g *Gate) set(ctx context.Context, kind Kind, id int64, st model.ApprovalStatus, approverID int64, reason string) error {
	switch kind {
	case KindOrder:
		return g.store.SetOrderApproval(ctx, id, st, approverID, reason)
	case KindTransaction:
		return g.store.SetTransactionApproval(ctx, id, st, approverID, reason)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
