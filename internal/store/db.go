package store

import (
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Database is the Postgres-backed store for accounts, orders and the
// transaction ledger.
type Database struct {
	DB *sql.DB
}

func Open(dsn string) (*Database, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	d := &Database{DB: db}
	if err := d.initDBTables(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

func (d *Database) initDBTables() error {
	var errs []error
	stmts := []string{
		`create table if not exists accounts (
			account_id BIGSERIAL PRIMARY KEY,
			login VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(60) NOT NULL DEFAULT '',
			name VARCHAR(200) NOT NULL DEFAULT '',
			chat_id BIGINT NOT NULL DEFAULT 0,
			balance DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc')
		);`,

		`create table if not exists orders (
			order_id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(account_id),
			order_number VARCHAR(30) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			pickup_address TEXT NOT NULL DEFAULT '',
			delivery_address TEXT NOT NULL DEFAULT '',
			service_type VARCHAR(30) NOT NULL,
			base_cost DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			add_on_cost DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			distance_fee DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			total_cost DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			status VARCHAR(30) NOT NULL DEFAULT 'pending',
			approval_status VARCHAR(30) NOT NULL DEFAULT 'pending',
			approved_by BIGINT NOT NULL DEFAULT 0,
			approved_at TIMESTAMP,
			rejection_reason TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc'),
			updated_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc')
		);`,

		`create table if not exists delivery_addresses (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
			recipient VARCHAR(200) NOT NULL,
			address TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			files JSONB NOT NULL DEFAULT '[]'
		);`,

		`create table if not exists transactions (
			transaction_id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(account_id),
			order_id BIGINT REFERENCES orders(order_id),
			transaction_type VARCHAR(30) NOT NULL,
			amount DECIMAL(12, 2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			approval_status VARCHAR(30) NOT NULL DEFAULT 'pending',
			approved_by BIGINT NOT NULL DEFAULT 0,
			approved_at TIMESTAMP,
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc')
		);`,
	}

	for _, s := range stmts {
		if _, err := d.DB.Exec(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
