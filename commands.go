package finledger

import "time"

// Engine wires a Store and the process-wide Settings into the §6 command
// surface, replacing the teacher's AccountingEngine facade.
type Engine struct {
	store    *Store
	settings *Settings
}

// NewEngine starts an Engine with no bound store; call OpenFile or NewFile
// to bind one.
func NewEngine(settings *Settings) *Engine {
	return &Engine{settings: settings}
}

// OpenFile binds path as the engine's store, per §6's open_file command.
func (e *Engine) OpenFile(path string) error {
	store, err := OpenFile(path)
	if err != nil {
		return err
	}
	if e.store != nil {
		e.store.Close()
	}
	e.store = store
	if e.settings != nil {
		e.settings.Touch(path)
	}
	return nil
}

// NewFileKind is the §6 new_file() kind parameter.
type NewFileKind int

const (
	NewFileNone NewFileKind = iota
	NewFileKMyMoney
)

// NewFile implements §6's new_file(path, kind, source): create/truncate
// path, and when kind is kmymoney, run the importer against source first.
func (e *Engine) NewFile(path string, kind NewFileKind, source string) error {
	store, err := CreateFile(path)
	if err != nil {
		return err
	}
	if e.store != nil {
		e.store.Close()
	}
	e.store = store
	if e.settings != nil {
		e.settings.Touch(path)
	}
	if kind == NewFileKMyMoney {
		if err := e.store.ImportKMyMoney(source); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the bound store, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// FetchAccountsResult is the §6 fetch_accounts() response.
type FetchAccountsResult struct {
	Accounts     []Account
	Commodities  []Commodity
	Institutions []Institution
}

// FetchAccounts implements §6's fetch_accounts(). Only Accounts is filled;
// Commodities and Institutions are left empty, and account kinds are not
// returned.
func (e *Engine) FetchAccounts() (FetchAccountsResult, error) {
	accounts, err := e.store.ListAccounts()
	if err != nil {
		return FetchAccountsResult{}, err
	}
	return FetchAccountsResult{Accounts: accounts}, nil
}

// NetworthHistory implements §6's networth_history(min_ts, max_ts, currency)
// with a default +/-1 month smoothing window.
func (e *Engine) NetworthHistory(minTS, maxTS time.Time, currencyID int64) ([]NetworthHistoryPoint, error) {
	r := DateRange{Start: minTS, End: maxTS, Granularity: GranularityMonths}
	return e.store.NetworthHistory(r, currencyID, ScenarioActual, OccurrencesUnlimited, 1, 1)
}

// Balance implements §6's balance(dates[], currency) -> per-account §4.G.1
// points.
func (e *Engine) Balance(dates []time.Time, currencyID int64) (map[time.Time][]NetworthPoint, error) {
	return e.store.Snapshot(dates, currencyID, ScenarioActual, OccurrencesUnlimited)
}

// Mean implements §6's mean(min_ts, max_ts, currency, prior, after,
// include_unrealized).
func (e *Engine) Mean(minTS, maxTS time.Time, currencyID int64, prior, after int, includeUnrealized bool) ([]MeanPoint, error) {
	r := DateRange{Start: minTS, End: maxTS, Granularity: GranularityMonths}
	return e.store.Mean(r, currencyID, prior, after, includeUnrealized)
}

// IncomeExpense implements §6's income_expense(income, expense, min_ts,
// max_ts, currency).
func (e *Engine) IncomeExpense(income, expense bool, minTS, maxTS time.Time, currencyID int64) ([]OneIncomeExpense, error) {
	return e.store.IncomeExpense(income, expense, minTS, maxTS, currencyID)
}

// Quotes implements §6's quotes(min_ts, max_ts, currency, commodities?,
// accounts?).
func (e *Engine) Quotes(minTS, maxTS time.Time, currencyID int64, commodityIDs, accountIDs []int64) ([]Symbol, map[int64]*ForAccount, error) {
	return e.store.Quotes(minTS, maxTS, currencyID, commodityIDs, accountIDs, time.Now())
}

// Ledger implements §6's ledger(min_ts, max_ts, account_ids[], occurrences).
func (e *Engine) Ledger(minTS, maxTS time.Time, accountIDs []int64, occ Occurrences) ([]TransactionDescr, error) {
	return e.store.Ledger(minTS, maxTS, accountIDs, occ)
}
