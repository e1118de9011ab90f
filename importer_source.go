package finledger

import (
	"database/sql"
	"fmt"
)

// ImportSource is a read-only handle onto a foreign finance store whose
// schema is pre-agreed (spec §4.H), grounded on
// other_examples/.../gnucash-mcp's read-only *sql.DB reader pattern --
// here opened against the kmymoney schema instead of GnuCash's.
type ImportSource struct {
	db *sql.DB
}

// OpenImportSource opens path read-only.
func OpenImportSource(path string) (*ImportSource, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, ioErr("open import source %s: %v", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ioErr("ping import source %s: %v", path, err)
	}
	return &ImportSource{db: db}, nil
}

func (src *ImportSource) Close() error { return src.db.Close() }

// ForeignSideCar is the key/value side-car facts harvested in import step
// 1: closed flag, IBAN, opening-balance marker, online-quote source,
// security identifier -- keyed by foreign account id.
type ForeignSideCar struct {
	Closed            bool
	IBAN              string
	OpeningBalance    string
	OnlineQuoteSource string
	SecurityID        string
}

// SideCarFacts implements import step 1.
func (src *ImportSource) SideCarFacts() (map[string]ForeignSideCar, error) {
	rows, err := src.db.Query(`SELECT account_id, key, value FROM kmm_key_value_pairs WHERE kvp_type = 'ACCOUNT'`)
	if err != nil {
		return nil, storeErr("read side-car facts: %v", err)
	}
	defer rows.Close()

	out := map[string]ForeignSideCar{}
	for rows.Next() {
		var accountID, key, value string
		if err := rows.Scan(&accountID, &key, &value); err != nil {
			return nil, storeErr("scan side-car fact: %v", err)
		}
		f := out[accountID]
		switch key {
		case "mm-closed":
			f.Closed = value == "yes"
		case "iban":
			f.IBAN = value
		case "mm-opening-balance-account":
			f.OpeningBalance = value
		case "kmm-online-source":
			f.OnlineQuoteSource = value
		case "kmm-security-id":
			f.SecurityID = value
		}
		out[accountID] = f
	}
	return out, rows.Err()
}

// ForeignInstitution is one row of the foreign institutions table.
type ForeignInstitution struct {
	ID, Name, Contact string
}

func (src *ImportSource) Institutions() ([]ForeignInstitution, error) {
	rows, err := src.db.Query(`SELECT id, name, COALESCE(street, '') FROM kmm_institutions`)
	if err != nil {
		return nil, storeErr("read institutions: %v", err)
	}
	defer rows.Close()
	var out []ForeignInstitution
	for rows.Next() {
		var f ForeignInstitution
		if err := rows.Scan(&f.ID, &f.Name, &f.Contact); err != nil {
			return nil, storeErr("scan institution: %v", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForeignCurrency is one row of the foreign currencies/securities tables,
// merged since both feed Commodity.
type ForeignCurrency struct {
	ID, Name, Symbol string
	IsSecurity        bool
	SmallestFraction  int64
	QuoteSource       string
	QuoteSymbol       string
}

func (src *ImportSource) Currencies() ([]ForeignCurrency, error) {
	rows, err := src.db.Query(`SELECT id, name, symbol, 0, smallest_account_fraction FROM kmm_currencies`)
	if err != nil {
		return nil, storeErr("read currencies: %v", err)
	}
	defer rows.Close()
	var out []ForeignCurrency
	for rows.Next() {
		var f ForeignCurrency
		var isSecurity int
		if err := rows.Scan(&f.ID, &f.Name, &f.Symbol, &isSecurity, &f.SmallestFraction); err != nil {
			return nil, storeErr("scan currency: %v", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (src *ImportSource) Securities() ([]ForeignCurrency, error) {
	rows, err := src.db.Query(`SELECT id, name, symbol, COALESCE(trading_market, ''), COALESCE(trading_symbol, '') FROM kmm_securities`)
	if err != nil {
		return nil, storeErr("read securities: %v", err)
	}
	defer rows.Close()
	var out []ForeignCurrency
	for rows.Next() {
		var f ForeignCurrency
		if err := rows.Scan(&f.ID, &f.Name, &f.Symbol, &f.QuoteSource, &f.QuoteSymbol); err != nil {
			return nil, storeErr("scan security: %v", err)
		}
		f.IsSecurity = true
		f.SmallestFraction = 100
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForeignPayee is one row of the foreign payees table.
type ForeignPayee struct{ ID, Name string }

func (src *ImportSource) Payees() ([]ForeignPayee, error) {
	rows, err := src.db.Query(`SELECT id, name FROM kmm_payees`)
	if err != nil {
		return nil, storeErr("read payees: %v", err)
	}
	defer rows.Close()
	var out []ForeignPayee
	for rows.Next() {
		var f ForeignPayee
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, storeErr("scan payee: %v", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForeignAccount is one row of the foreign accounts table, parent pointer
// unresolved until the second pass (spec §4.H step 3).
type ForeignAccount struct {
	ID, ParentID, Name, Description string
	CurrencyID                      string
	InstitutionID                   string
	AccountType                     string
}

func (src *ImportSource) Accounts() ([]ForeignAccount, error) {
	rows, err := src.db.Query(
		`SELECT id, COALESCE(parent_id, ''), account_name, COALESCE(description, ''),
		        currency_id, COALESCE(institution_id, ''), account_type
		 FROM kmm_accounts`)
	if err != nil {
		return nil, storeErr("read accounts: %v", err)
	}
	defer rows.Close()
	var out []ForeignAccount
	for rows.Next() {
		var f ForeignAccount
		if err := rows.Scan(&f.ID, &f.ParentID, &f.Name, &f.Description, &f.CurrencyID, &f.InstitutionID, &f.AccountType); err != nil {
			return nil, storeErr("scan account: %v", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForeignPrice is one row of the foreign price history table, values as
// the raw "num/den" text the scale-parsing step consumes.
type ForeignPrice struct {
	FromID, ToID, Date, Price, Source string
}

func (src *ImportSource) Prices() ([]ForeignPrice, error) {
	rows, err := src.db.Query(`SELECT from_id, to_id, price_date, price, COALESCE(price_source, '') FROM kmm_prices`)
	if err != nil {
		return nil, storeErr("read prices: %v", err)
	}
	defer rows.Close()
	var out []ForeignPrice
	for rows.Next() {
		var f ForeignPrice
		if err := rows.Scan(&f.FromID, &f.ToID, &f.Date, &f.Price, &f.Source); err != nil {
			return nil, storeErr("scan price: %v", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForeignTransaction is one row of the foreign transactions table, carrying
// the raw schedule encoding import step 5 translates.
type ForeignTransaction struct {
	ID, Date, Memo, CheckNumber string
	CurrencyID                  string
	ScheduleID                  string
	PeriodicityCode             string
	Interval                    int
	ScheduleEnd                 string
	LastDayInMonth              bool
	WeekendHandling             string
	LastOccurrence              string
}

func (src *ImportSource) Transactions() ([]ForeignTransaction, error) {
	rows, err := src.db.Query(
		`SELECT t.id, t.post_date, COALESCE(t.memo, ''), COALESCE(t.check_number, ''), COALESCE(t.currency_id, ''),
		        COALESCE(s.id, ''), COALESCE(s.periodicity_code, ''), COALESCE(s.interval, 0),
		        COALESCE(s.schedule_end, ''), COALESCE(s.last_day_in_month, 0),
		        COALESCE(s.weekend_handling, ''), COALESCE(s.last_occurrence, '')
		 FROM kmm_transactions t LEFT JOIN kmm_schedules s ON s.transaction_id = t.id`)
	if err != nil {
		return nil, storeErr("read transactions: %v", err)
	}
	defer rows.Close()
	var out []ForeignTransaction
	for rows.Next() {
		var f ForeignTransaction
		var lastDay int
		if err := rows.Scan(&f.ID, &f.Date, &f.Memo, &f.CheckNumber, &f.CurrencyID, &f.ScheduleID, &f.PeriodicityCode,
			&f.Interval, &f.ScheduleEnd, &lastDay, &f.WeekendHandling, &f.LastOccurrence); err != nil {
			return nil, storeErr("scan transaction: %v", err)
		}
		f.LastDayInMonth = lastDay != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForeignSplit is one row of the foreign splits table. Action is the
// foreign categorical field (Buy, Sell, Dividend, Add, Reinvest, Split,
// Interest, ...) import step 6 maps into the internal model.
type ForeignSplit struct {
	ID, TransactionID, AccountID, PayeeID string
	Action                                string
	Shares                                string // "num/den"
	Value                                 string // "num/den"
	Price                                 string // "num/den", may be empty
	Memo                                  string
	Reconcile                             string
}

func (src *ImportSource) Splits(transactionID string) ([]ForeignSplit, error) {
	rows, err := src.db.Query(
		`SELECT id, transaction_id, account_id, COALESCE(payee_id, ''), COALESCE(action, ''),
		        shares, value, COALESCE(price, ''), COALESCE(memo, ''), COALESCE(reconcile_flag, '')
		 FROM kmm_splits WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return nil, storeErr("read splits for transaction %s: %v", transactionID, err)
	}
	defer rows.Close()
	var out []ForeignSplit
	for rows.Next() {
		var f ForeignSplit
		if err := rows.Scan(&f.ID, &f.TransactionID, &f.AccountID, &f.PayeeID, &f.Action, &f.Shares,
			&f.Value, &f.Price, &f.Memo, &f.Reconcile); err != nil {
			return nil, storeErr("scan split: %v", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
