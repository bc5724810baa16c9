package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"doc-courier/internal/model"
)

// AppendTransaction appends a ledger entry and moves the account balance by
// the entry's signed amount, atomically. The account row is locked for the
// duration so concurrent ledger operations serialize per account.
func (d *Database) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT TRUE FROM accounts WHERE account_id = $1 FOR UPDATE`, t.AccountID).
		Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrAccountNotFound
		}
		return err
	}

	var orderID any
	if t.OrderID != 0 {
		orderID = t.OrderID
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (account_id, order_id, transaction_type, amount, description, approval_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING transaction_id, created_at`,
		t.AccountID, orderID, t.Type, t.Amount, t.Description, t.Approval).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE account_id = $2`,
		t.Amount, t.AccountID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListTransactions returns ledger entries newest-first, optionally narrowed
// to one account.
func (d *Database) ListTransactions(ctx context.Context, accountID *int64) ([]model.Transaction, error) {
	q := `SELECT transaction_id, account_id, COALESCE(order_id, 0), transaction_type,
		amount, description, approval_status, approved_by, approved_at, rejection_reason, created_at
		FROM transactions`
	args := []any{}
	if accountID != nil {
		q += ` WHERE account_id = $1`
		args = append(args, *accountID)
	}
	q += ` ORDER BY created_at DESC, transaction_id DESC`

	rows, err := d.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var approvedAt sql.NullTime
		err := rows.Scan(&t.ID, &t.AccountID, &t.OrderID, &t.Type,
			&t.Amount, &t.Description, &t.Approval, &t.ApprovedBy, &approvedAt,
			&t.RejectionReason, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		if approvedAt.Valid {
			t.ApprovedAt = &approvedAt.Time
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SetTransactionApproval stamps the workflow fields; amount and type stay
// immutable.
func (d *Database) SetTransactionApproval(ctx context.Context, id int64, st model.ApprovalStatus, approverID int64, reason string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE transactions SET approval_status = $1, approved_by = $2,
			approved_at = $3, rejection_reason = $4
		WHERE transaction_id = $5`,
		st, approverID, time.Now().UTC(), reason, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrTransactionNotFound
	}
	return nil
}
