package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the famledger store (SQLite).
var Migrations = migrate.NewGroup("famledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_famledger_users",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS famledger_users (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'child',
    date_of_birth TEXT,
    parent_id     TEXT NOT NULL DEFAULT '',
    parents       TEXT NOT NULL DEFAULT '[]',
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_famledger_users_email ON famledger_users (email COLLATE NOCASE) WHERE email != '';
CREATE INDEX IF NOT EXISTS idx_famledger_users_role ON famledger_users (role);
CREATE INDEX IF NOT EXISTS idx_famledger_users_parent ON famledger_users (parent_id) WHERE parent_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS famledger_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_famledger_accounts",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS famledger_accounts (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    name          TEXT NOT NULL DEFAULT '',
    type          TEXT NOT NULL DEFAULT 'spending',
    balance       INTEGER NOT NULL DEFAULT 0,
    interest_rate TEXT NOT NULL DEFAULT '0',
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_famledger_accounts_owner ON famledger_accounts (owner_id, type);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS famledger_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_famledger_transactions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS famledger_transactions (
    id               TEXT PRIMARY KEY,
    account_id       TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    amount           INTEGER NOT NULL DEFAULT 0,
    type             TEXT NOT NULL,
    date             TEXT NOT NULL DEFAULT (datetime('now')),
    approved         INTEGER NOT NULL DEFAULT 0,
    approved_by      TEXT NOT NULL DEFAULT '',
    approved_at      TEXT,
    rejected         INTEGER NOT NULL DEFAULT 0,
    rejected_by      TEXT NOT NULL DEFAULT '',
    rejected_at      TEXT,
    rejection_reason TEXT NOT NULL DEFAULT '',
    deleted          INTEGER NOT NULL DEFAULT 0,
    deleted_by       TEXT NOT NULL DEFAULT '',
    deleted_at       TEXT,
    recurring_id     TEXT NOT NULL DEFAULT '',
    created_by       TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_famledger_transactions_account ON famledger_transactions (account_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_famledger_transactions_recurring ON famledger_transactions (recurring_id) WHERE recurring_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS famledger_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_famledger_recurring",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS famledger_recurring (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    amount         INTEGER NOT NULL DEFAULT 0,
    type           TEXT NOT NULL,
    frequency      TEXT NOT NULL,
    account_id     TEXT NOT NULL DEFAULT '',
    user_id        TEXT NOT NULL,
    created_by     TEXT NOT NULL DEFAULT '',
    distribution   TEXT NOT NULL DEFAULT '',
    next_date      TEXT NOT NULL,
    last_processed TEXT,
    active         INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_famledger_recurring_due ON famledger_recurring (next_date) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_famledger_recurring_user ON famledger_recurring (user_id, type);
CREATE INDEX IF NOT EXISTS idx_famledger_recurring_account ON famledger_recurring (account_id, type, name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS famledger_recurring`)
				return err
			},
		},
	)
}
