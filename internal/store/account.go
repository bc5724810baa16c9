package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"doc-courier/internal/model"
)

const accountColumns = `account_id, login, password_hash, name, chat_id, balance, active, admin, created_at`

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Login, &a.PasswordHash, &a.Name, &a.ChatID,
		&a.Balance, &a.Active, &a.Admin, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (d *Database) CreateAccount(ctx context.Context, a *model.Account) (*model.Account, error) {
	err := d.DB.QueryRowContext(ctx, `
		INSERT INTO accounts (login, password_hash, name, chat_id, admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+accountColumns,
		a.Login, a.PasswordHash, a.Name, a.ChatID, a.Admin).
		Scan(&a.ID, &a.Login, &a.PasswordHash, &a.Name, &a.ChatID,
			&a.Balance, &a.Active, &a.Admin, &a.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, model.ErrDuplicateLogin
		}
		return nil, err
	}
	return a, nil
}

func (d *Database) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	return scanAccount(d.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, id))
}

func (d *Database) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	return scanAccount(d.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE login = $1`, login))
}

func (d *Database) GetAccountByChatID(ctx context.Context, chatID int64) (*model.Account, error) {
	return scanAccount(d.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE chat_id = $1 AND chat_id <> 0`, chatID))
}

func (d *Database) SetAccountChatID(ctx context.Context, accountID, chatID int64) error {
	res, err := d.DB.ExecContext(ctx,
		`UPDATE accounts SET chat_id = $1 WHERE account_id = $2`, chatID, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
