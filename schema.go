package finledger

import "database/sql"

// migrate brings the store to the current schema version, following the
// numbered idempotent-migration style of stadam23-Eve-flipper's
// internal/db package: a schema_version table gates each versioned block of
// CREATE TABLE IF NOT EXISTS statements.
func migrate(db *sql.DB) error {
	var version int
	_ = db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)

	if version < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return storeErr("migration v1: %v", err)
		}
		log.Info().Msg("store: applied migration v1")
	}
	return nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS account_kinds (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	category          INTEGER NOT NULL,
	is_work_income    INTEGER NOT NULL DEFAULT 0,
	is_passive_income INTEGER NOT NULL DEFAULT 0,
	is_unrealized     INTEGER NOT NULL DEFAULT 0,
	is_networth       INTEGER NOT NULL DEFAULT 0,
	is_trading        INTEGER NOT NULL DEFAULT 0,
	is_stock          INTEGER NOT NULL DEFAULT 0,
	is_income_tax     INTEGER NOT NULL DEFAULT 0,
	is_misc_tax       INTEGER NOT NULL DEFAULT 0,
	UNIQUE (category, is_work_income, is_passive_income, is_unrealized, is_networth,
	        is_trading, is_stock, is_income_tax, is_misc_tax)
);

CREATE TABLE IF NOT EXISTS commodities (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	symbol_before     TEXT NOT NULL DEFAULT '',
	symbol_after      TEXT NOT NULL DEFAULT '',
	kind              INTEGER NOT NULL,
	price_scale       INTEGER NOT NULL,
	quote_source_id   INTEGER,
	quote_symbol      TEXT,
	quote_currency_id INTEGER REFERENCES commodities(id)
);

CREATE TABLE IF NOT EXISTS institutions (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL,
	contact TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS payees (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_sources (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
INSERT OR IGNORE INTO price_sources (id, name) VALUES (1, 'User');
INSERT OR IGNORE INTO price_sources (id, name) VALUES (2, 'Yahoo');
INSERT OR IGNORE INTO price_sources (id, name) VALUES (3, 'Transaction');

CREATE TABLE IF NOT EXISTS accounts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	iban            TEXT,
	number          TEXT,
	closed          INTEGER NOT NULL DEFAULT 0,
	commodity_id    INTEGER NOT NULL REFERENCES commodities(id),
	commodity_scu   INTEGER NOT NULL,
	last_reconciled TEXT,
	opening_date    TEXT,
	institution_id  INTEGER REFERENCES institutions(id),
	kind_id         INTEGER NOT NULL REFERENCES account_kinds(id),
	parent_id       INTEGER REFERENCES accounts(id)
);
CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(parent_id);
CREATE INDEX IF NOT EXISTS idx_accounts_kind ON accounts(kind_id);

CREATE TABLE IF NOT EXISTS prices (
	origin_id    INTEGER NOT NULL REFERENCES commodities(id),
	target_id    INTEGER NOT NULL REFERENCES commodities(id),
	ts           TEXT NOT NULL,
	scaled_price INTEGER NOT NULL,
	source_id    INTEGER NOT NULL REFERENCES price_sources(id),
	PRIMARY KEY (origin_id, target_id, source_id, ts)
);
CREATE INDEX IF NOT EXISTS idx_prices_lookup ON prices(origin_id, target_id, ts);

CREATE TABLE IF NOT EXISTS transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp       TEXT NOT NULL,
	memo            TEXT NOT NULL DEFAULT '',
	check_number    TEXT NOT NULL DEFAULT '',
	scenario_id     INTEGER NOT NULL DEFAULT 0,
	scheduled       TEXT,
	last_occurrence TEXT
);
CREATE INDEX IF NOT EXISTS idx_transactions_scenario ON transactions(scenario_id);

CREATE TABLE IF NOT EXISTS splits (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id     INTEGER NOT NULL REFERENCES transactions(id),
	account_id         INTEGER NOT NULL REFERENCES accounts(id),
	scaled_qty         INTEGER NOT NULL,
	ratio_qty          INTEGER NOT NULL DEFAULT 1,
	scaled_value       INTEGER NOT NULL,
	value_commodity_id INTEGER NOT NULL REFERENCES commodities(id),
	reconcile          INTEGER NOT NULL DEFAULT 0,
	reconcile_ts       TEXT,
	post_ts            TEXT NOT NULL,
	payee_id           INTEGER REFERENCES payees(id)
);
CREATE INDEX IF NOT EXISTS idx_splits_account_post ON splits(account_id, post_ts);
CREATE INDEX IF NOT EXISTS idx_splits_transaction ON splits(transaction_id);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`
