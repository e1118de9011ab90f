package finledger

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// buildKMyMoneySource creates a minimal kmymoney-schema sqlite file with one
// institution, one currency, one security, four accounts
// (asset/income/expense/stock), and three transactions, one of them a
// monthly schedule.
func buildKMyMoneySource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.kmy.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	ddl := []string{
		`CREATE TABLE kmm_key_value_pairs (account_id TEXT, key TEXT, value TEXT, kvp_type TEXT)`,
		`CREATE TABLE kmm_institutions (id TEXT, name TEXT, street TEXT)`,
		`CREATE TABLE kmm_currencies (id TEXT, name TEXT, symbol TEXT, smallest_account_fraction INTEGER)`,
		`CREATE TABLE kmm_securities (id TEXT, name TEXT, symbol TEXT, trading_market TEXT, trading_symbol TEXT)`,
		`CREATE TABLE kmm_payees (id TEXT, name TEXT)`,
		`CREATE TABLE kmm_accounts (id TEXT, parent_id TEXT, account_name TEXT, description TEXT,
			currency_id TEXT, institution_id TEXT, account_type TEXT)`,
		`CREATE TABLE kmm_prices (from_id TEXT, to_id TEXT, price_date TEXT, price TEXT, price_source TEXT)`,
		`CREATE TABLE kmm_transactions (id TEXT, post_date TEXT, memo TEXT, check_number TEXT, currency_id TEXT)`,
		`CREATE TABLE kmm_schedules (id TEXT, transaction_id TEXT, periodicity_code TEXT, interval INTEGER,
			schedule_end TEXT, last_day_in_month INTEGER, weekend_handling TEXT, last_occurrence TEXT)`,
		`CREATE TABLE kmm_splits (id TEXT, transaction_id TEXT, account_id TEXT, payee_id TEXT,
			action TEXT, shares TEXT, value TEXT, price TEXT, memo TEXT, reconcile_flag TEXT)`,
	}
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	_, err = db.Exec(`INSERT INTO kmm_institutions VALUES ('I000001', 'First Bank', '1 Main St')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_currencies VALUES ('USD', 'US Dollar', '$', 100)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_payees VALUES ('P000001', 'Employer')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO kmm_accounts VALUES ('A000001', '', 'Checking', '', 'USD', 'I000001', 'CHECKING')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_accounts VALUES ('A000002', '', 'Salary', '', 'USD', '', 'INCOME')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_accounts VALUES ('A000003', '', 'Groceries', '', 'USD', '', 'EXPENSE')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO kmm_key_value_pairs VALUES ('A000001', 'iban', 'DE00 1234', 'ACCOUNT')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO kmm_transactions VALUES ('T000001', '2024-01-05', 'paycheck', '', 'USD')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000001', 'T000001', 'A000001', '', '', '200000/100', '200000/100', '', '', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000002', 'T000001', 'A000002', 'P000001', '', '-200000/100', '-200000/100', '', '', '')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO kmm_transactions VALUES ('T000002', '2024-01-10', 'rent', '', 'USD')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_schedules VALUES
		('SCH001', 'T000002', 'MONTHLY', 1, '', 0, '', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000003', 'T000002', 'A000003', '', '', '150000/100', '150000/100', '', '', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000004', 'T000002', 'A000001', '', '', '-150000/100', '-150000/100', '', '', '')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO kmm_securities VALUES ('ACME', 'Acme Corp', 'ACME', '', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_accounts VALUES ('A000004', '', 'Brokerage', '', 'ACME', '', 'STOCK')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO kmm_transactions VALUES ('T000004', '2024-01-20', 'buy acme', '', 'USD')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000005', 'T000004', 'A000004', '', 'BUY', '1000/100', '100000/100', '10000/100', '', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000006', 'T000004', 'A000001', '', '', '', '-100000/100', '', '', '')`)
	require.NoError(t, err)

	return path
}

func TestImportKMyMoneyCreatesAccountsAndTransactions(t *testing.T) {
	source := buildKMyMoneySource(t)
	target := newTestStore(t)

	err := target.ImportKMyMoney(source)
	require.NoError(t, err)

	accounts, err := target.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 4)

	names := map[string]Account{}
	for _, a := range accounts {
		names[a.Name] = a
	}
	checking, ok := names["Checking"]
	require.True(t, ok)
	require.NotNil(t, checking.IBAN)
	require.Equal(t, "DE00 1234", *checking.IBAN)

	brokerage, ok := names["Brokerage"]
	require.True(t, ok)
	require.NotEqual(t, checking.CommodityID, brokerage.CommodityID) // held in ACME stock, not USD

	r := DateRange{Start: mustParseDate(t, "2023-01-01"), End: mustParseDate(t, "2025-01-01"), Granularity: GranularityDays}
	stream, err := target.SplitStream(r, ScenarioActual, OccurrencesNone)
	require.NoError(t, err)
	require.Len(t, stream, 4) // two real transactions, two splits each; the rent schedule is not expanded

	// Every split of a transaction must carry the transaction's single
	// recording currency, even when its account (like Brokerage, above)
	// holds a different commodity.
	for _, e := range stream {
		require.Equal(t, checking.CommodityID, e.ValueCommodityID)
	}

	scheduled, err := target.SplitStream(r, ScenarioActual, OccurrencesUnlimited)
	require.NoError(t, err)
	require.Greater(t, len(scheduled), len(stream)) // the rent schedule expands into further occurrences
}

func TestImportKMyMoneyRollsBackOnBadRational(t *testing.T) {
	source := buildKMyMoneySource(t)
	db, err := sql.Open("sqlite", source)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_transactions VALUES ('T000003', '2024-02-01', 'bad', '', 'USD')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kmm_splits VALUES
		('S000005', 'T000003', 'A000001', '', '', 'not-a-fraction', '100/1', '', '', '')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	target := newTestStore(t)
	err = target.ImportKMyMoney(source)
	require.Error(t, err)

	accounts, err := target.ListAccounts()
	require.NoError(t, err)
	require.Empty(t, accounts) // the whole import rolled back
}

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return tm.UTC()
}
