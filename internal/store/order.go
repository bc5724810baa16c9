package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"doc-courier/internal/model"
)

const orderColumns = `o.order_id, o.account_id, o.order_number, o.description,
	o.pickup_address, o.delivery_address, o.service_type,
	o.base_cost, o.add_on_cost, o.distance_fee, o.total_cost,
	o.status, o.approval_status, o.approved_by, o.approved_at,
	o.rejection_reason, o.notes, o.created_at, o.updated_at`

type orderScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row orderScanner) (*model.Order, error) {
	var o model.Order
	var approvedAt sql.NullTime
	err := row.Scan(&o.ID, &o.AccountID, &o.Number, &o.Description,
		&o.PickupAddress, &o.DeliveryAddress, &o.Service,
		&o.BaseCost, &o.AddOnCost, &o.DistanceFee, &o.TotalCost,
		&o.Status, &o.Approval, &o.ApprovedBy, &approvedAt,
		&o.RejectionReason, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, err
	}
	if approvedAt.Valid {
		o.ApprovedAt = &approvedAt.Time
	}
	return &o, nil
}

// CreateOrderPaid persists an order together with its payment in one database
// transaction: the account row is locked, the active-order cap and balance
// re-checked under the lock, the order and its delivery addresses inserted,
// the order_payment transaction appended and the balance debited. Concurrent
// creations against the same account serialize on the row lock, so two
// requests can neither pass the sufficiency check against a stale balance nor
// jointly exceed the cap.
func (d *Database) CreateOrderPaid(ctx context.Context, o *model.Order, pay *model.Transaction, activeCap int) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE account_id = $1 FOR UPDATE`, o.AccountID).
		Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrAccountNotFound
		}
		return err
	}

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE account_id = $1 AND status IN ($2, $3)`,
		o.AccountID, model.StatusPending, model.StatusInProgress).Scan(&active)
	if err != nil {
		return err
	}
	if active >= activeCap {
		return fmt.Errorf("%w: %d already pending or in progress (limit %d)",
			model.ErrTooManyActiveOrders, active, activeCap)
	}

	if balance.LessThan(o.TotalCost) {
		return &model.InsufficientBalanceError{Required: o.TotalCost, Available: balance}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (account_id, order_number, description, pickup_address,
			delivery_address, service_type, base_cost, add_on_cost, distance_fee,
			total_cost, status, approval_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING order_id, created_at, updated_at`,
		o.AccountID, o.Number, o.Description, o.PickupAddress,
		o.DeliveryAddress, o.Service, o.BaseCost, o.AddOnCost, o.DistanceFee,
		o.TotalCost, o.Status, o.Approval, o.Notes).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Addresses {
		addr := &o.Addresses[i]
		addr.OrderID = o.ID
		files, err := json.Marshal(addr.Files)
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO delivery_addresses (order_id, recipient, address, notes, files)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			addr.OrderID, addr.Recipient, addr.Address, addr.Notes, files).
			Scan(&addr.ID)
		if err != nil {
			return err
		}
	}

	pay.OrderID = o.ID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (account_id, order_id, transaction_type, amount, description, approval_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING transaction_id, created_at`,
		pay.AccountID, pay.OrderID, pay.Type, pay.Amount, pay.Description, pay.Approval).
		Scan(&pay.ID, &pay.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE account_id = $2`,
		pay.Amount, o.AccountID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (d *Database) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(d.DB.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.order_id = $1`, id))
	if err != nil {
		return nil, err
	}
	o.Account, err = d.GetAccountByID(ctx, o.AccountID)
	if err != nil {
		return nil, err
	}
	o.Addresses, err = d.getDeliveryAddresses(ctx, o.ID)
	return o, err
}

func (d *Database) getDeliveryAddresses(ctx context.Context, orderID int64) ([]model.DeliveryAddress, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, recipient, address, notes, files
		FROM delivery_addresses WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []model.DeliveryAddress
	for rows.Next() {
		var a model.DeliveryAddress
		var files []byte
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Recipient, &a.Address, &a.Notes, &files); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(files, &a.Files); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// UpdateOrderStatus applies the new status and optional notes and bumps
// updated_at. Balance and transactions are untouched.
func (d *Database) UpdateOrderStatus(ctx context.Context, id int64, status model.Status, notes string) (*model.Order, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = $1,
			notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END,
			updated_at = $3
		WHERE order_id = $4`,
		status, notes, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, model.ErrOrderNotFound
	}
	return d.GetOrderByID(ctx, id)
}

// ListOrders returns orders newest-first, each joined with its owner.
func (d *Database) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	q := `SELECT ` + orderColumns + `,
		a.account_id, a.login, a.password_hash, a.name, a.chat_id, a.balance, a.active, a.admin, a.created_at
		FROM orders o JOIN accounts a ON o.account_id = a.account_id WHERE 1=1`
	args := []any{}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += ` AND o.status = $1`
	}
	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		if len(args) == 1 {
			q += ` AND o.account_id = $1`
		} else {
			q += ` AND o.account_id = $2`
		}
	}
	q += ` ORDER BY o.created_at DESC`

	rows, err := d.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var a model.Account
		var approvedAt sql.NullTime
		err := rows.Scan(&o.ID, &o.AccountID, &o.Number, &o.Description,
			&o.PickupAddress, &o.DeliveryAddress, &o.Service,
			&o.BaseCost, &o.AddOnCost, &o.DistanceFee, &o.TotalCost,
			&o.Status, &o.Approval, &o.ApprovedBy, &approvedAt,
			&o.RejectionReason, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
			&a.ID, &a.Login, &a.PasswordHash, &a.Name, &a.ChatID,
			&a.Balance, &a.Active, &a.Admin, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		if approvedAt.Valid {
			o.ApprovedAt = &approvedAt.Time
		}
		o.Account = &a
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SetOrderApproval stamps the approval fields; it does not touch status,
// balance or transactions.
func (d *Database) SetOrderApproval(ctx context.Context, id int64, st model.ApprovalStatus, approverID int64, reason string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET approval_status = $1, approved_by = $2, approved_at = $3,
			rejection_reason = $4, updated_at = $3
		WHERE order_id = $5`,
		st, approverID, time.Now().UTC(), reason, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}
