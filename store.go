package finledger

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"modernc.org/sqlite"
)

// maxPooledConnections is the spec §4.C/§5 pool size cap.
const maxPooledConnections = 20

// Store mediates all reads and writes against the relational entity store,
// per spec §4.C. It is safe for concurrent use by multiple goroutines: reads
// run over the pool, writes are serialized by SQLite's own file lock.
type Store struct {
	db   *sql.DB
	path string
}

var registerExtensionsOnce sync.Once

// registerExtensions wires the three scalar functions spec §6 requires
// ("next_event", "ln", "exp") into the modernc.org/sqlite driver. Because
// modernc.org/sqlite's scalar-function registry is process-global rather
// than per-*sql.Conn, one registration at process start covers every pooled
// connection the driver subsequently opens -- satisfying "registered on each
// connection before first use" without a per-Conn hook.
func registerExtensions() {
	registerExtensionsOnce.Do(func() {
		must := func(err error) {
			if err != nil {
				panic(fmt.Sprintf("finledger: registering sqlite extension function: %v", err))
			}
		}
		must(sqlite.RegisterDeterministicScalarFunction("next_event", 3, sqlNextEvent))
		must(sqlite.RegisterDeterministicScalarFunction("ln", 1, sqlLn))
		must(sqlite.RegisterDeterministicScalarFunction("exp", 1, sqlExp))
	})
}

func sqlNextEvent(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	rule, _ := args[0].(string)
	startText, _ := args[1].(string)
	start, err := time.Parse(time.RFC3339, startText)
	if err != nil {
		return nil, nil
	}
	var previous *time.Time
	if s, ok := args[2].(string); ok && s != "" {
		if p, err := time.Parse(time.RFC3339, s); err == nil {
			previous = &p
		}
	}
	next, err := NextOccurrence(rule, start, previous)
	if err != nil || next == nil {
		return nil, nil
	}
	return next.UTC().Format(time.RFC3339), nil
}

func sqlLn(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	v, ok := toFloat(args[0])
	if !ok {
		return nil, nil
	}
	return math.Log(v), nil
}

func sqlExp(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	v, ok := toFloat(args[0])
	if !ok {
		return nil, nil
	}
	return math.Exp(v), nil
}

func toFloat(v driver.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func openStore(path string) (*Store, error) {
	registerExtensions()
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, ioErr("open %s: %v", path, err)
	}
	db.SetMaxOpenConns(maxPooledConnections)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ioErr("ping %s: %v", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("store: opened")
	return &Store{db: db, path: path}, nil
}

// OpenFile binds the store to an existing filesystem location, running any
// pending migrations, per spec §4.C.
func OpenFile(path string) (*Store, error) {
	return openStore(path)
}

// CreateFile truncates path (if present) and binds a fresh store to it.
func CreateFile(path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, ioErr("truncate %s: %v", path, err)
	}
	log.Info().Str("path", path).Msg("store: created")
	return openStore(path)
}

// Close releases the store's connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// --- Commodities -----------------------------------------------------------

func (s *Store) CreateCommodity(c Commodity) (Commodity, error) {
	res, err := s.db.Exec(
		`INSERT INTO commodities (name, symbol_before, symbol_after, kind, price_scale, quote_source_id, quote_symbol, quote_currency_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.SymbolBefore, c.SymbolAfter, int(c.Kind), c.PriceScale,
		nullableInt64(c.QuoteSourceID), nullableString(c.QuoteSymbol), nullableInt64(c.QuoteCurrencyID),
	)
	if err != nil {
		return Commodity{}, storeErr("create commodity %q: %v", c.Name, err)
	}
	id, _ := res.LastInsertId()
	c.ID = id
	return c, nil
}

func (s *Store) GetCommodity(id int64) (Commodity, error) {
	var c Commodity
	var kind int
	var quoteSource, quoteCurrency sql.NullInt64
	var quoteSymbol sql.NullString
	row := s.db.QueryRow(
		`SELECT id, name, symbol_before, symbol_after, kind, price_scale, quote_source_id, quote_symbol, quote_currency_id
		 FROM commodities WHERE id = ?`, id)
	if err := row.Scan(&c.ID, &c.Name, &c.SymbolBefore, &c.SymbolAfter, &kind, &c.PriceScale, &quoteSource, &quoteSymbol, &quoteCurrency); err != nil {
		return Commodity{}, storeErr("get commodity %d: %v", id, err)
	}
	c.Kind = CommodityKind(kind)
	if quoteSource.Valid {
		c.QuoteSourceID = &quoteSource.Int64
	}
	if quoteSymbol.Valid {
		c.QuoteSymbol = &quoteSymbol.String
	}
	if quoteCurrency.Valid {
		c.QuoteCurrencyID = &quoteCurrency.Int64
	}
	return c, nil
}

// --- AccountKind -------------------------------------------------------

// GetOrCreateAccountKind dedups on the full flag tuple, per spec §4.C and
// scenario S6: two calls with identical flags return the same identity.
func (s *Store) GetOrCreateAccountKind(k AccountKind) (AccountKind, error) {
	if !k.Valid() {
		return AccountKind{}, domainErr("invalid account kind %q: violates category/flag invariants", k.Name)
	}
	row := s.db.QueryRow(
		`SELECT id FROM account_kinds
		 WHERE category = ? AND is_work_income = ? AND is_passive_income = ? AND is_unrealized = ?
		   AND is_networth = ? AND is_trading = ? AND is_stock = ? AND is_income_tax = ? AND is_misc_tax = ?`,
		int(k.Category), k.IsWorkIncome, k.IsPassiveIncome, k.IsUnrealized,
		k.IsNetworth, k.IsTrading, k.IsStock, k.IsIncomeTax, k.IsMiscTax,
	)
	var id int64
	switch err := row.Scan(&id); err {
	case nil:
		k.ID = id
		return k, nil
	case sql.ErrNoRows:
		res, err := s.db.Exec(
			`INSERT INTO account_kinds (name, category, is_work_income, is_passive_income, is_unrealized,
			                            is_networth, is_trading, is_stock, is_income_tax, is_misc_tax)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			k.Name, int(k.Category), k.IsWorkIncome, k.IsPassiveIncome, k.IsUnrealized,
			k.IsNetworth, k.IsTrading, k.IsStock, k.IsIncomeTax, k.IsMiscTax,
		)
		if err != nil {
			return AccountKind{}, storeErr("create account kind %q: %v", k.Name, err)
		}
		k.ID, _ = res.LastInsertId()
		return k, nil
	default:
		return AccountKind{}, storeErr("get_or_create account kind: %v", err)
	}
}

// --- Institutions, payees ------------------------------------------------

func (s *Store) CreateInstitution(i Institution) (Institution, error) {
	res, err := s.db.Exec(`INSERT INTO institutions (name, contact) VALUES (?, ?)`, i.Name, i.Contact)
	if err != nil {
		return Institution{}, storeErr("create institution %q: %v", i.Name, err)
	}
	i.ID, _ = res.LastInsertId()
	return i, nil
}

func (s *Store) CreatePayee(p Payee) (Payee, error) {
	res, err := s.db.Exec(`INSERT INTO payees (name) VALUES (?)`, p.Name)
	if err != nil {
		return Payee{}, storeErr("create payee %q: %v", p.Name, err)
	}
	p.ID, _ = res.LastInsertId()
	return p, nil
}

// --- Accounts --------------------------------------------------------------

// CreateAccount inserts an account, rejecting a parent pointer that would
// close a cycle (spec §3 invariant 3, Open Question (a) in DESIGN.md).
func (s *Store) CreateAccount(a Account) (Account, error) {
	if a.ParentAccountID != nil {
		if err := s.checkAcyclicParent(*a.ParentAccountID, nil); err != nil {
			return Account{}, err
		}
	}
	res, err := s.db.Exec(
		`INSERT INTO accounts (name, description, iban, number, closed, commodity_id, commodity_scu,
		                       last_reconciled, opening_date, institution_id, kind_id, parent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Description, nullableString(a.IBAN), nullableString(a.Number), a.Closed,
		a.CommodityID, a.CommoditySCU, nullableTime(a.LastReconciled), nullableTime(a.OpeningDate),
		nullableInt64(a.InstitutionID), a.KindID, nullableInt64(a.ParentAccountID),
	)
	if err != nil {
		return Account{}, storeErr("create account %q: %v", a.Name, err)
	}
	a.ID, _ = res.LastInsertId()
	return a, nil
}

// checkAcyclicParent walks the parent chain starting at parentID, failing if
// it ever reaches self (only relevant when re-parenting an existing
// account; self is nil for brand-new accounts, which cannot yet appear in
// anyone's chain).
func (s *Store) checkAcyclicParent(parentID int64, self *int64) error {
	seen := map[int64]bool{}
	cur := parentID
	for {
		if self != nil && cur == *self {
			return domainErr("account parent chain would form a cycle at id %d", cur)
		}
		if seen[cur] {
			return domainErr("existing parent chain already cycles at id %d", cur)
		}
		seen[cur] = true
		var parent sql.NullInt64
		err := s.db.QueryRow(`SELECT parent_id FROM accounts WHERE id = ?`, cur).Scan(&parent)
		if err == sql.ErrNoRows {
			return domainErr("parent account %d does not exist", cur)
		}
		if err != nil {
			return storeErr("walk parent chain: %v", err)
		}
		if !parent.Valid {
			return nil
		}
		cur = parent.Int64
	}
}

// SaveAccount persists the mutable account fields the spec allows: closed
// flag, description, and parent.
func (s *Store) SaveAccount(a Account) error {
	if a.ParentAccountID != nil {
		if err := s.checkAcyclicParent(*a.ParentAccountID, &a.ID); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(
		`UPDATE accounts SET description = ?, closed = ?, parent_id = ? WHERE id = ?`,
		a.Description, a.Closed, nullableInt64(a.ParentAccountID), a.ID,
	)
	if err != nil {
		return storeErr("save account %d: %v", a.ID, err)
	}
	return nil
}

func (s *Store) GetAccount(id int64) (Account, error) {
	var a Account
	var iban, number sql.NullString
	var lastReconciled, openingDate sql.NullString
	var institutionID, parentID sql.NullInt64
	row := s.db.QueryRow(
		`SELECT id, name, description, iban, number, closed, commodity_id, commodity_scu,
		        last_reconciled, opening_date, institution_id, kind_id, parent_id
		 FROM accounts WHERE id = ?`, id)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &iban, &number, &a.Closed, &a.CommodityID, &a.CommoditySCU,
		&lastReconciled, &openingDate, &institutionID, &a.KindID, &parentID); err != nil {
		return Account{}, storeErr("get account %d: %v", id, err)
	}
	if iban.Valid {
		a.IBAN = &iban.String
	}
	if number.Valid {
		a.Number = &number.String
	}
	if institutionID.Valid {
		a.InstitutionID = &institutionID.Int64
	}
	if parentID.Valid {
		a.ParentAccountID = &parentID.Int64
	}
	if lastReconciled.Valid {
		if t, err := parseTime(lastReconciled.String); err == nil {
			a.LastReconciled = &t
		}
	}
	if openingDate.Valid {
		if t, err := parseTime(openingDate.String); err == nil {
			a.OpeningDate = &t
		}
	}
	return a, nil
}

// ListAccounts returns every account, for the §6 fetch_accounts command.
func (s *Store) ListAccounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, storeErr("list accounts: %v", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list accounts: %v", err)
		}
		ids = append(ids, id)
	}
	accounts := make([]Account, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAccount(id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// --- Prices ------------------------------------------------------------

// CreatePrice inserts a price point, enforcing spec §3 invariant 5
// (monotone per origin/target/source, no duplicate instants).
func (s *Store) CreatePrice(p Price) error {
	_, err := s.db.Exec(
		`INSERT INTO prices (origin_id, target_id, ts, scaled_price, source_id) VALUES (?, ?, ?, ?, ?)`,
		p.OriginCommodityID, p.TargetCommodityID, formatTime(p.Timestamp), p.ScaledPrice, p.SourceID,
	)
	if err != nil {
		return storeErr("create price %d->%d @ %s: %v", p.OriginCommodityID, p.TargetCommodityID, p.Timestamp, err)
	}
	return nil
}

// --- Transactions & splits ----------------------------------------------

// CreateTransaction inserts a transaction together with its splits inside
// one DB transaction, enforcing spec §3 invariant 1 (splits sum to zero)
// before committing.
func (s *Store) CreateTransaction(t Transaction, splits []Split) (Transaction, []Split, error) {
	if len(splits) == 0 {
		return Transaction{}, nil, domainErr("transaction has no splits")
	}
	if err := s.checkBalance(splits); err != nil {
		return Transaction{}, nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Transaction{}, nil, storeErr("begin transaction insert: %v", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO transactions (timestamp, memo, check_number, scenario_id, scheduled, last_occurrence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(t.Timestamp), t.Memo, t.CheckNumber, t.ScenarioID, nullableString(t.Scheduled), nullableTime(t.LastOccurrence),
	)
	if err != nil {
		return Transaction{}, nil, storeErr("create transaction: %v", err)
	}
	t.ID, _ = res.LastInsertId()

	for i := range splits {
		splits[i].TransactionID = t.ID
		if splits[i].RatioQty == 0 {
			splits[i].RatioQty = RatioQtyDefault
		}
		sres, err := tx.Exec(
			`INSERT INTO splits (transaction_id, account_id, scaled_qty, ratio_qty, scaled_value,
			                     value_commodity_id, reconcile, reconcile_ts, post_ts, payee_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			splits[i].TransactionID, splits[i].AccountID, splits[i].ScaledQty, splits[i].RatioQty,
			splits[i].ScaledValue, splits[i].ValueCommodityID, int(splits[i].Reconcile),
			nullableTime(splits[i].ReconcileTS), formatTime(splits[i].PostTS), nullableInt64(splits[i].PayeeID),
		)
		if err != nil {
			return Transaction{}, nil, storeErr("create split for transaction %d: %v", t.ID, err)
		}
		splits[i].ID, _ = sres.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return Transaction{}, nil, storeErr("commit transaction insert: %v", err)
	}
	return t, splits, nil
}

// checkBalance enforces spec §3 invariant 1: splits of one transaction must
// sum to zero (scaled by each split's value commodity's price_scale) within
// a 0.01-unit tolerance. Grounded on posting_engine.go's validateBalance/
// getBalanceMultiplier shape, generalized from a fixed debit/credit pair to
// the spec's signed-split model. Re-derives each split's value in real units
// via its value commodity's price_scale and asserts they sum to ~0.
func (s *Store) checkBalance(splits []Split) error {
	sum := 0.0
	for _, sp := range splits {
		c, err := s.GetCommodity(sp.ValueCommodityID)
		if err != nil {
			return err
		}
		sum += float64(sp.ScaledValue) / float64(c.PriceScale)
	}
	if math.Abs(sum) > 0.01 {
		return domainErr("transaction splits do not balance: sum=%.6f", sum)
	}
	return nil
}

// SaveSplitReconcile updates only a split's reconciliation state and
// timestamp, per spec §3's restricted split mutation.
func (s *Store) SaveSplitReconcile(splitID int64, state ReconcileState, at *time.Time) error {
	_, err := s.db.Exec(`UPDATE splits SET reconcile = ?, reconcile_ts = ? WHERE id = ?`, int(state), nullableTime(at), splitID)
	if err != nil {
		return storeErr("save split %d reconcile state: %v", splitID, err)
	}
	return nil
}

// SaveTransaction persists the mutable transaction fields the spec allows:
// memo and check_number.
func (s *Store) SaveTransaction(t Transaction) error {
	_, err := s.db.Exec(`UPDATE transactions SET memo = ?, check_number = ? WHERE id = ?`, t.Memo, t.CheckNumber, t.ID)
	if err != nil {
		return storeErr("save transaction %d: %v", t.ID, err)
	}
	return nil
}
