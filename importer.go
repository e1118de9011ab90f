package finledger

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// ImportKMyMoney runs the §4.H import process against a foreign kmymoney
// store, inside one write transaction spanning all steps so a failure
// yields a pristine target.
func (s *Store) ImportKMyMoney(path string) error {
	src, err := OpenImportSource(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return withStep("begin", storeErr("begin import transaction: %v", err))
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	imp := &importer{store: s, src: src, tx: tx,
		accountIDs: map[string]int64{}, currencyIDs: map[string]int64{},
		institutionIDs: map[string]int64{}, payeeIDs: map[string]int64{}}

	sidecar, err := withStepT("sidecar", src.SideCarFacts())
	if err != nil {
		return err
	}
	imp.sidecar = sidecar

	if err := withStep("account_kinds", imp.loadAccountKinds()); err != nil {
		return err
	}
	if err := withStep("institutions", imp.importInstitutions()); err != nil {
		return err
	}
	if err := withStep("currencies", imp.importCurrencies()); err != nil {
		return err
	}
	if err := withStep("payees", imp.importPayees()); err != nil {
		return err
	}
	if err := withStep("accounts", imp.importAccounts()); err != nil {
		return err
	}
	if err := withStep("prices", imp.importPrices()); err != nil {
		return err
	}
	if err := withStep("transactions", imp.importTransactions()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return withStep("commit", storeErr("commit import: %v", err))
	}
	committed = true
	return nil
}

func withStepT[T any](step string, v T, err error) (T, error) {
	return v, withStep(step, err)
}

// importer holds per-import state: the foreign-id -> internal-id maps the
// spec requires each entity class to maintain (§4.H).
type importer struct {
	store *Store
	src   *ImportSource
	tx    *sql.Tx

	sidecar map[string]ForeignSideCar

	accountIDs     map[string]int64
	currencyIDs    map[string]int64
	institutionIDs map[string]int64
	payeeIDs       map[string]int64
	foreignParent  map[string]string // foreign account id -> foreign parent id
	userCurrencyID int64
}

// loadAccountKinds confirms the target's account_kinds table is reachable;
// kinds are not imported. The schema migration seeds no kinds, so
// defaultAccountKindID looks up or inserts each kind (get_or_create) as
// accounts are inserted in step 3.
func (imp *importer) loadAccountKinds() error {
	var count int
	if err := imp.tx.QueryRow(`SELECT COUNT(*) FROM account_kinds`).Scan(&count); err != nil {
		return storeErr("load account kinds: %v", err)
	}
	return nil
}

func (imp *importer) importInstitutions() error {
	foreign, err := imp.src.Institutions()
	if err != nil {
		return err
	}
	for _, f := range foreign {
		res, err := imp.tx.Exec(`INSERT INTO institutions (name, contact) VALUES (?, ?)`, f.Name, f.Contact)
		if err != nil {
			return storeErr("insert institution %s: %v", f.Name, err)
		}
		id, _ := res.LastInsertId()
		imp.institutionIDs[f.ID] = id
	}
	return nil
}

func (imp *importer) insertCommodity(kind CommodityKind, name, symbol string, scu int64) (int64, error) {
	res, err := imp.tx.Exec(
		`INSERT INTO commodities (name, symbol_before, symbol_after, kind, price_scale) VALUES (?, ?, '', ?, ?)`,
		name, symbol, int(kind), scu)
	if err != nil {
		return 0, storeErr("insert commodity %s: %v", name, err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

func (imp *importer) importCurrencies() error {
	currencies, err := imp.src.Currencies()
	if err != nil {
		return err
	}
	for _, f := range currencies {
		scu := f.SmallestFraction
		if scu == 0 {
			scu = 100
		}
		id, err := imp.insertCommodity(CommodityCurrency, f.Name, f.Symbol, scu)
		if err != nil {
			return err
		}
		imp.currencyIDs[f.ID] = id
		if imp.userCurrencyID == 0 {
			imp.userCurrencyID = id
		}
	}
	securities, err := imp.src.Securities()
	if err != nil {
		return err
	}
	for _, f := range securities {
		id, err := imp.insertCommodity(CommodityStock, f.Name, f.Symbol, f.SmallestFraction)
		if err != nil {
			return err
		}
		imp.currencyIDs[f.ID] = id
	}
	return nil
}

func (imp *importer) importPayees() error {
	foreign, err := imp.src.Payees()
	if err != nil {
		return err
	}
	for _, f := range foreign {
		res, err := imp.tx.Exec(`INSERT INTO payees (name) VALUES (?)`, f.Name)
		if err != nil {
			return storeErr("insert payee %s: %v", f.Name, err)
		}
		id, _ := res.LastInsertId()
		imp.payeeIDs[f.ID] = id
	}
	return nil
}

// defaultAccountKindID maps a foreign account_type string to an internal
// account_kinds row, creating one via get_or_create if the combination is
// new.
func (imp *importer) defaultAccountKindID(accountType string) (int64, error) {
	k := AccountKind{Name: accountType}
	switch strings.ToUpper(accountType) {
	case "ASSET", "BANK", "CASH", "CHECKING", "SAVINGS":
		k.Category = KindAsset
		k.IsNetworth = true
	case "LIABILITY", "CREDITCARD", "LOAN":
		k.Category = KindLiability
		k.IsNetworth = true
	case "STOCK", "MUTUALFUND", "INVESTMENT":
		k.Category = KindAsset
		k.IsNetworth = true
		k.IsTrading = true
		k.IsStock = true
	case "INCOME":
		k.Category = KindIncome
	case "EXPENSE":
		k.Category = KindExpense
	case "EQUITY":
		k.Category = KindEquity
		k.IsNetworth = true
	default:
		k.Category = KindExpense
	}
	if !k.Valid() {
		return 0, domainErr("invalid account kind %q: violates category/flag invariants", k.Name)
	}
	row := imp.tx.QueryRow(
		`SELECT id FROM account_kinds
		 WHERE category = ? AND is_work_income = ? AND is_passive_income = ? AND is_unrealized = ?
		   AND is_networth = ? AND is_trading = ? AND is_stock = ? AND is_income_tax = ? AND is_misc_tax = ?`,
		int(k.Category), k.IsWorkIncome, k.IsPassiveIncome, k.IsUnrealized,
		k.IsNetworth, k.IsTrading, k.IsStock, k.IsIncomeTax, k.IsMiscTax,
	)
	var id int64
	switch err := row.Scan(&id); err {
	case nil:
		return id, nil
	case sql.ErrNoRows:
		res, err := imp.tx.Exec(
			`INSERT INTO account_kinds (name, category, is_work_income, is_passive_income, is_unrealized,
			                            is_networth, is_trading, is_stock, is_income_tax, is_misc_tax)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			k.Name, int(k.Category), k.IsWorkIncome, k.IsPassiveIncome, k.IsUnrealized,
			k.IsNetworth, k.IsTrading, k.IsStock, k.IsIncomeTax, k.IsMiscTax,
		)
		if err != nil {
			return 0, storeErr("create account kind %q: %v", k.Name, err)
		}
		id, _ = res.LastInsertId()
		return id, nil
	default:
		return 0, storeErr("get_or_create account kind: %v", err)
	}
}

func (imp *importer) importAccounts() error {
	foreign, err := imp.src.Accounts()
	if err != nil {
		return err
	}
	imp.foreignParent = map[string]string{}

	for _, f := range foreign {
		currencyID, ok := imp.currencyIDs[f.CurrencyID]
		if !ok {
			currencyID = imp.userCurrencyID
		}
		kindID, err := imp.defaultAccountKindID(f.AccountType)
		if err != nil {
			return err
		}
		sc := imp.sidecar[f.ID]
		var institutionID *int64
		if id, ok := imp.institutionIDs[f.InstitutionID]; ok {
			institutionID = &id
		}
		var iban *string
		if sc.IBAN != "" {
			iban = &sc.IBAN
		}

		res, err := imp.tx.Exec(
			`INSERT INTO accounts (name, description, iban, closed, commodity_id, commodity_scu, institution_id, kind_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.Name, f.Description, nullableString(iban), sc.Closed, currencyID, 100, nullableInt64(institutionID), kindID,
		)
		if err != nil {
			return storeErr("insert account %s: %v", f.Name, err)
		}
		id, _ := res.LastInsertId()
		imp.accountIDs[f.ID] = id
		if f.ParentID != "" {
			imp.foreignParent[f.ID] = f.ParentID
		}
	}

	for foreignID, foreignParentID := range imp.foreignParent {
		parentID, ok := imp.accountIDs[foreignParentID]
		if !ok {
			continue
		}
		childID := imp.accountIDs[foreignID]
		if _, err := imp.tx.Exec(`UPDATE accounts SET parent_id = ? WHERE id = ?`, parentID, childID); err != nil {
			return storeErr("fix up parent for account %s: %v", foreignID, err)
		}
	}
	return nil
}

func (imp *importer) importPrices() error {
	prices, err := imp.src.Prices()
	if err != nil {
		return err
	}
	for _, f := range prices {
		originID, ok1 := imp.currencyIDs[f.FromID]
		targetID, ok2 := imp.currencyIDs[f.ToID]
		if !ok1 || !ok2 {
			continue
		}
		target, err := imp.getCommodity(targetID)
		if err != nil {
			return err
		}
		ts, err := time.Parse("2006-01-02", f.Date)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, f.Date)
			if err != nil {
				continue
			}
		}
		v, present, err := ParseRational(f.Price)
		if err != nil {
			return withStep(fmt.Sprintf("price %s->%s", f.FromID, f.ToID), err)
		}
		if !present {
			continue
		}
		scaled, err := Scale(v, present, target.PriceScale)
		if err != nil {
			return withStep(fmt.Sprintf("price %s->%s", f.FromID, f.ToID), err)
		}
		if _, err := imp.tx.Exec(
			`INSERT INTO prices (origin_id, target_id, ts, scaled_price, source_id) VALUES (?, ?, ?, ?, ?)`,
			originID, targetID, formatTime(ts), scaled, PriceSourceUser,
		); err != nil {
			return storeErr("insert price %s->%s: %v", f.FromID, f.ToID, err)
		}
	}
	return nil
}

// translateSchedule maps the foreign recurrence encoding into a spec §4.B
// rule string, returning ok=false for unsupported combinations (the
// transaction becomes non-recurring).
func translateSchedule(f ForeignTransaction) (rule string, ok bool) {
	if f.ScheduleID == "" {
		return "", false
	}
	interval := f.Interval
	if interval == 0 {
		interval = 1
	}
	var freq string
	switch strings.ToUpper(f.PeriodicityCode) {
	case "DAILY":
		freq = "DAILY"
	case "WEEKLY":
		freq = "WEEKLY"
	case "MONTHLY":
		freq = "MONTHLY"
	case "YEARLY":
		freq = "YEARLY"
	default:
		return "", false
	}
	parts := []string{"freq=" + freq, fmt.Sprintf("interval=%d", interval)}
	if f.ScheduleEnd != "" {
		if end, err := time.Parse("2006-01-02", f.ScheduleEnd); err == nil {
			parts = append(parts, "until="+end.UTC().Format(time.RFC3339))
		}
	}
	return strings.Join(parts, ";"), true
}

func (imp *importer) importTransactions() error {
	transactions, err := imp.src.Transactions()
	if err != nil {
		return err
	}
	for _, f := range transactions {
		ts, err := time.Parse("2006-01-02", f.Date)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, f.Date)
			if err != nil {
				return withStep("transactions", parseErr("unparseable transaction date %q: %v", f.Date, err))
			}
		}
		var scheduled *string
		var lastOccurrence *time.Time
		if rule, ok := translateSchedule(f); ok {
			scheduled = &rule
			if f.LastOccurrence != "" {
				if lo, err := time.Parse("2006-01-02", f.LastOccurrence); err == nil {
					lastOccurrence = &lo
				}
			}
		}

		res, err := imp.tx.Exec(
			`INSERT INTO transactions (timestamp, memo, check_number, scenario_id, scheduled, last_occurrence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			formatTime(ts), f.Memo, f.CheckNumber, ScenarioActual, nullableString(scheduled), nullableTime(lastOccurrence),
		)
		if err != nil {
			return storeErr("insert transaction %s: %v", f.ID, err)
		}
		transactionID, _ := res.LastInsertId()

		// Per spec invariant 4, every split of a transaction shares one
		// value_commodity_id: the transaction's own recording currency, not
		// whatever commodity each leg's account happens to be held in.
		recordingCommodityID, ok := imp.currencyIDs[f.CurrencyID]
		if !ok {
			recordingCommodityID = imp.userCurrencyID
		}

		if err := imp.importSplits(f.ID, transactionID, ts, recordingCommodityID); err != nil {
			return err
		}
	}
	return nil
}

// getAccount and getCommodity read back rows inserted earlier in the same
// import transaction. They must query imp.tx, not imp.store's pool: a
// pooled connection cannot see writes an uncommitted transaction on a
// different connection has made.
func (imp *importer) getAccount(id int64) (Account, error) {
	var a Account
	row := imp.tx.QueryRow(`SELECT id, commodity_id, commodity_scu FROM accounts WHERE id = ?`, id)
	if err := row.Scan(&a.ID, &a.CommodityID, &a.CommoditySCU); err != nil {
		return Account{}, storeErr("get account %d: %v", id, err)
	}
	return a, nil
}

func (imp *importer) getCommodity(id int64) (Commodity, error) {
	var c Commodity
	row := imp.tx.QueryRow(`SELECT id, price_scale, kind FROM commodities WHERE id = ?`, id)
	var kind int
	if err := row.Scan(&c.ID, &c.PriceScale, &kind); err != nil {
		return Commodity{}, storeErr("get commodity %d: %v", id, err)
	}
	c.Kind = CommodityKind(kind)
	return c, nil
}

// splitDebugTolerance matches spec §4.H step 6's debug-only
// |value - qty*price| < 0.01 assertion.
const splitDebugTolerance = 0.01

func (imp *importer) importSplits(foreignTransactionID string, transactionID int64, postTS time.Time, recordingCommodityID int64) error {
	foreign, err := imp.src.Splits(foreignTransactionID)
	if err != nil {
		return err
	}
	recordingCommodity, err := imp.getCommodity(recordingCommodityID)
	if err != nil {
		return err
	}
	for _, f := range foreign {
		accountID, ok := imp.accountIDs[f.AccountID]
		if !ok {
			continue
		}
		account, err := imp.getAccount(accountID)
		if err != nil {
			return err
		}

		qty, present, err := ParseRational(f.Shares)
		if err != nil {
			return withStep("splits", err)
		}
		scaledQty := int64(0)
		if present {
			scaledQty, err = Scale(qty, present, account.CommoditySCU)
			if err != nil {
				return withStep("splits", err)
			}
		}

		value, present, err := ParseRational(f.Value)
		if err != nil {
			return withStep("splits", err)
		}
		scaledValue := int64(0)
		if present {
			scaledValue, err = Scale(value, present, recordingCommodity.PriceScale)
			if err != nil {
				return withStep("splits", err)
			}
		}

		ratioQty := RatioQtyDefault
		action := strings.ToUpper(f.Action)
		switch action {
		case "DIVIDEND", "INTEREST":
			scaledQty = 0
		case "ADD":
			scaledValue = 0
		case "SPLIT":
			if mult, _, err := ParseRational(f.Shares); err == nil {
				if scaled, err := Scale(mult, true, 1); err == nil && scaled != 0 {
					ratioQty = scaled
				}
			}
		}

		if f.Price != "" {
			price, present, err := ParseRational(f.Price)
			if err == nil && present {
				pf, _ := price.Float64()
				qf, _ := qty.Float64()
				if math.Abs(float64(scaledValue)/float64(recordingCommodity.PriceScale)-qf*pf) >= splitDebugTolerance {
					log.Debug().Str("split", f.ID).Msg("importer: value/qty/price assertion mismatch")
				}
			}
		}

		var payeeID *int64
		if id, ok := imp.payeeIDs[f.PayeeID]; ok {
			payeeID = &id
		}
		reconcile := ReconcileNew
		switch f.Reconcile {
		case "C":
			reconcile = ReconcileCleared
		case "R":
			reconcile = ReconcileReconciled
		}

		if _, err := imp.tx.Exec(
			`INSERT INTO splits (transaction_id, account_id, scaled_qty, ratio_qty, scaled_value, value_commodity_id, reconcile, post_ts, payee_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			transactionID, accountID, scaledQty, ratioQty, scaledValue, recordingCommodityID, int(reconcile), formatTime(postTS), nullableInt64(payeeID),
		); err != nil {
			return storeErr("insert split %s: %v", f.ID, err)
		}
	}
	return nil
}
