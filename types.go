package finledger

import "time"

// CommodityKind distinguishes a currency from the kinds of tradable security
// a Commodity can represent.
type CommodityKind int

const (
	CommodityCurrency CommodityKind = iota
	CommodityStock
	CommodityMutualFund
	CommodityBond
)

// Commodity is a currency, security, or fund. A stored integer quantity in
// this commodity's unit represents quantity/PriceScale real units.
type Commodity struct {
	ID              int64
	Name            string
	SymbolBefore    string
	SymbolAfter     string
	Kind            CommodityKind
	PriceScale      int64
	QuoteSourceID   *int64
	QuoteSymbol     *string
	QuoteCurrencyID *int64
}

// AccountKindCategory is the top-level bucket an AccountKind belongs to.
// Values match the spec's category numbering (Expense=0 through
// Liability=4) and are stored as-is in account_kinds.category.
type AccountKindCategory int

const (
	KindExpense   AccountKindCategory = 0
	KindIncome    AccountKindCategory = 1
	KindEquity    AccountKindCategory = 2
	KindAsset     AccountKindCategory = 3
	KindLiability AccountKindCategory = 4
)

// AccountKind is a fine-grained classification for accounts, expressed as a
// category plus independent flags rather than a closed type hierarchy so
// new combinations (e.g. "passive income") never require a schema change.
type AccountKind struct {
	ID              int64
	Name            string
	Category        AccountKindCategory
	IsWorkIncome    bool
	IsPassiveIncome bool
	IsUnrealized    bool
	IsNetworth      bool
	IsTrading       bool
	IsStock         bool
	IsIncomeTax     bool
	IsMiscTax       bool
}

// Valid reports whether the kind satisfies the spec's AccountKind invariants:
// work/passive income implies category Income, is_networth restricts the
// category to Equity/Asset/Liability, and work/passive income are mutually
// exclusive.
func (k AccountKind) Valid() bool {
	if (k.IsWorkIncome || k.IsPassiveIncome) && k.Category != KindIncome {
		return false
	}
	if k.IsNetworth && k.Category != KindEquity && k.Category != KindAsset && k.Category != KindLiability {
		return false
	}
	if k.IsWorkIncome && k.IsPassiveIncome {
		return false
	}
	return true
}

// Account is a container of splits, all expressed in the same commodity.
type Account struct {
	ID              int64
	Name            string
	Description     string
	IBAN            *string
	Number          *string
	Closed          bool
	CommodityID     int64
	CommoditySCU    int64
	LastReconciled  *time.Time
	OpeningDate     *time.Time
	InstitutionID   *int64
	KindID          int64
	ParentAccountID *int64
}

// ScenarioActual is the reserved scenario identifier for real, as-happened
// history. Any other scenario id tags a hypothetical what-if branch.
const ScenarioActual int64 = 0

// Transaction is a balanced group of splits.
type Transaction struct {
	ID             int64
	Timestamp      time.Time
	Memo           string
	CheckNumber    string
	ScenarioID     int64
	Scheduled      *string // nil = not scheduled; "" = scheduled, non-recurring; else a 4.B rule
	LastOccurrence *time.Time
}

// IsScheduled reports whether the transaction is a template for recurring or
// one-shot-deferred splits rather than a fully realized transaction.
func (t Transaction) IsScheduled() bool { return t.Scheduled != nil }

// ReconcileState is the workflow status of a split against a bank statement.
type ReconcileState int

const (
	ReconcileNew        ReconcileState = 0
	ReconcileCleared    ReconcileState = 1
	ReconcileReconciled ReconcileState = 2
)

// RatioQtyDefault is the default multiplicative factor applied to later
// split quantities (only stock splits change it).
const RatioQtyDefault int64 = 1

// Split is one leg of a balanced transaction, affecting exactly one account.
type Split struct {
	ID               int64
	TransactionID    int64
	AccountID        int64
	ScaledQty        int64
	RatioQty         int64
	ScaledValue      int64
	ValueCommodityID int64
	Reconcile        ReconcileState
	ReconcileTS      *time.Time
	PostTS           time.Time
	PayeeID          *int64
}

// Price records that one unit of Origin equals ScaledPrice/Origin.PriceScale
// units of Target at Timestamp.
type Price struct {
	OriginCommodityID int64
	TargetCommodityID int64
	Timestamp         time.Time
	ScaledPrice       int64
	SourceID          int64
}

// Payee, Institution, and PriceSource are plain labels joined by identity.
type Payee struct {
	ID   int64
	Name string
}

type Institution struct {
	ID      int64
	Name    string
	Contact string
}

type PriceSource struct {
	ID   int64
	Name string
}

// Well-known PriceSource identities, per spec §6.
const (
	PriceSourceUser        int64 = 1
	PriceSourceYahoo       int64 = 2
	PriceSourceTransaction int64 = 3
)
