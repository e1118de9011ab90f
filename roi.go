package finledger

import (
	"math"
	"sort"
	"time"
)

// Roi is one half-open [MinTS, MaxTS) interval of an investment account's
// running position, grounded on original_source/quotes.rs's Roi query
// struct (there one row of a SQL view; here one element of a Go slice
// built directly from the split stream, since modernc.org/sqlite has no
// window-function-free equivalent of the weighted-average-cost walk).
type Roi struct {
	MinTS         time.Time
	MaxTS         time.Time
	AccountID     int64
	CommodityID   int64
	CurrencyID    int64
	Shares        float64
	Invested      float64
	RealizedGain  float64
	Balance       float64
	ComputedPrice float64
	AverageCost   float64
	WeightedAvg   float64
	ROI           float64
	PL            float64
}

// Position is a point-in-time snapshot of an investment account, per
// original_source/quotes.rs's Position.
type Position struct {
	AvgCost     float64
	Equity      float64
	Gains       float64
	Invested    float64
	PL          float64
	ROI         float64
	Shares      float64
	WeightedAvg float64
}

func positionFromRoi(r Roi) Position {
	return Position{
		AvgCost:     r.AverageCost,
		Equity:      r.Balance,
		Gains:       r.RealizedGain,
		Invested:    r.Invested,
		PL:          r.PL,
		ROI:         r.ROI,
		Shares:      r.Shares,
		WeightedAvg: r.WeightedAvg,
	}
}

// PricePoint is one plotted (timestamp, price, roi%, shares) sample.
type PricePoint struct {
	T      time.Time
	Price  float64
	ROI    float64
	Shares float64
}

// ForAccount is the full §4.G.5 report for one investment account.
type ForAccount struct {
	Account         int64
	Start           Position
	End             Position
	Oldest          *time.Time
	MostRecent      *time.Time
	Prices          []PricePoint
	AnnualizedROI   float64
	PeriodROI       float64
}

// Symbol describes one traded commodity and the investment accounts that
// hold it.
type Symbol struct {
	ID         int64
	Ticker     string
	Source     int64
	IsCurrency bool
	Accounts   []int64
	PriceScale int64
}

// investedTolerance matches quotes.rs's 1E-6 guard against dividing by a
// near-zero denominator when computing period_roi.
const investedTolerance = 1e-6

// AccountRoi computes the §4.G.5 Roi interval series for one investment
// account, over its full split history (ROI needs the account's entire
// life, not just the requested window) converted into currencyID.
func (s *Store) AccountRoi(accountID, currencyID int64, now time.Time) ([]Roi, error) {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, scaled_qty, scaled_value, value_commodity_id, post_ts
		 FROM splits WHERE account_id = ? ORDER BY post_ts, id`, accountID)
	if err != nil {
		return nil, storeErr("account roi %d splits: %v", accountID, err)
	}
	type leg struct {
		id          int64
		scaledQty   int64
		scaledValue int64
		valueCommID int64
		postTS      time.Time
	}
	var legs []leg
	for rows.Next() {
		var l leg
		var postTS string
		if err := rows.Scan(&l.id, &l.scaledQty, &l.scaledValue, &l.valueCommID, &postTS); err != nil {
			rows.Close()
			return nil, storeErr("account roi %d scan: %v", accountID, err)
		}
		if t, err := parseTime(postTS); err == nil {
			l.postTS = t
		}
		legs = append(legs, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, nil
	}

	priceCache := map[int64][]priceInterval{}
	priceAt := func(commodityID int64, t time.Time) (float64, bool) {
		prices, ok := priceCache[commodityID]
		if !ok {
			prices, _ = s.priceIntervals(commodityID, currencyID)
			priceCache[commodityID] = prices
		}
		for _, p := range prices {
			if !t.Before(p.minTS) && t.Before(p.maxTS) {
				return p.price, true
			}
		}
		if len(prices) > 0 {
			return prices[len(prices)-1].price, true
		}
		return 0, false
	}

	var (
		shares         float64
		invested       float64
		realizedGain   float64
		avgCost        float64
		weightedSum    float64
		weightedDur    time.Duration
		lastTS         time.Time
	)
	out := make([]Roi, 0, len(legs))
	for i, l := range legs {
		c, err := s.GetCommodity(l.valueCommID)
		if err != nil {
			return nil, err
		}
		value := float64(l.scaledValue) / float64(c.PriceScale)
		qtyShares := float64(l.scaledQty) / float64(account.CommoditySCU)

		if !lastTS.IsZero() {
			if price, ok := priceAt(account.CommodityID, lastTS); ok {
				weightedSum += price * float64(l.postTS.Sub(lastTS))
				weightedDur += l.postTS.Sub(lastTS)
			}
		}
		lastTS = l.postTS

		switch {
		case l.scaledQty == 0:
			// Dividend/interest: proceeds with no share-count change, per
			// the importer's action mapping (spec §4.H step 6).
			realizedGain += value
		case qtyShares > 0:
			// Buy: cost basis grows, new weighted-average cost.
			newShares := shares + qtyShares
			if newShares != 0 {
				avgCost = (avgCost*shares + value) / newShares
			}
			shares = newShares
			invested += value
		default:
			// Sell: release cost basis at the running weighted average;
			// anything beyond that basis is realized gain.
			sold := -qtyShares
			costBasis := avgCost * sold
			realizedGain += value - costBasis
			invested -= costBasis
			shares += qtyShares
		}

		computedPrice := 0.0
		if l.scaledQty != 0 {
			computedPrice = float64(l.scaledValue*account.CommoditySCU) / float64(l.scaledQty*c.PriceScale)
		}

		weightedAvg := computedPrice
		if weightedDur > 0 {
			weightedAvg = weightedSum / float64(weightedDur)
		}

		price, _ := priceAt(account.CommodityID, l.postTS)
		balance := shares * price

		r := Roi{
			MinTS:         l.postTS,
			AccountID:     accountID,
			CommodityID:   account.CommodityID,
			CurrencyID:    currencyID,
			Shares:        shares,
			Invested:      invested,
			RealizedGain:  realizedGain,
			Balance:       balance,
			ComputedPrice: price,
			WeightedAvg:   weightedAvg,
			PL:            balance + realizedGain - invested,
		}
		if shares > 0 {
			r.AverageCost = avgCost
		}
		if invested > 0 {
			r.ROI = (balance + realizedGain) / invested
		}
		if i+1 < len(legs) {
			r.MaxTS = legs[i+1].postTS
		} else {
			r.MaxTS = armageddon
		}
		out = append(out, r)
	}
	return out, nil
}

// Quotes implements the §6 quotes() command / §4.G.5: symbols traded by
// investment accounts (kind.is_trading) and, per account, the ROI report
// over [minTS, maxTS].
func (s *Store) Quotes(minTS, maxTS time.Time, currencyID int64, commodityIDs, accountIDs []int64, now time.Time) ([]Symbol, map[int64]*ForAccount, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.commodity_id FROM accounts a
		 JOIN account_kinds k ON a.kind_id = k.id
		 WHERE k.is_trading = 1`)
	if err != nil {
		return nil, nil, storeErr("quotes trading accounts: %v", err)
	}
	allowed := map[int64]bool{}
	for _, id := range accountIDs {
		allowed[id] = true
	}
	type acctComm struct{ accountID, commodityID int64 }
	var accounts []acctComm
	for rows.Next() {
		var a acctComm
		if err := rows.Scan(&a.accountID, &a.commodityID); err != nil {
			rows.Close()
			return nil, nil, storeErr("quotes trading accounts scan: %v", err)
		}
		if len(allowed) == 0 || allowed[a.accountID] {
			accounts = append(accounts, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	wantCommodity := map[int64]bool{}
	for _, id := range commodityIDs {
		wantCommodity[id] = true
	}
	symbolByCommodity := map[int64]*Symbol{}
	result := map[int64]*ForAccount{}

	for _, a := range accounts {
		if len(wantCommodity) > 0 && !wantCommodity[a.commodityID] {
			continue
		}
		sym, ok := symbolByCommodity[a.commodityID]
		if !ok {
			c, err := s.GetCommodity(a.commodityID)
			if err != nil {
				return nil, nil, err
			}
			ticker := ""
			if c.QuoteSymbol != nil {
				ticker = *c.QuoteSymbol
			}
			source := PriceSourceUser
			if c.QuoteSourceID != nil {
				source = *c.QuoteSourceID
			}
			sym = &Symbol{ID: c.ID, Ticker: ticker, Source: source, IsCurrency: c.Kind == CommodityCurrency, PriceScale: c.PriceScale}
			symbolByCommodity[a.commodityID] = sym
		}
		sym.Accounts = append(sym.Accounts, a.accountID)

		fa := &ForAccount{Account: a.accountID}
		rois, err := s.AccountRoi(a.accountID, currencyID, now)
		if err != nil {
			return nil, nil, err
		}
		sort.Slice(rois, func(i, j int) bool { return rois[i].MinTS.Before(rois[j].MinTS) })
		for _, r := range rois {
			if fa.Oldest == nil {
				t := r.MinTS
				fa.Oldest = &t
			}
			t := r.MinTS
			fa.MostRecent = &t

			if !r.MinTS.After(minTS) && minTS.Before(r.MaxTS) {
				fa.Start = positionFromRoi(r)
			}
			if !r.MinTS.After(maxTS) && maxTS.Before(r.MaxTS) {
				fa.End = positionFromRoi(r)
			}
			roiPct := math.NaN()
			if r.ROI != 0 {
				roiPct = (r.ROI - 1.0) * 100.0
			}
			fa.Prices = append(fa.Prices, PricePoint{T: r.MinTS, Price: r.ComputedPrice, ROI: roiPct, Shares: r.Shares})
		}

		fa.AnnualizedROI = math.NaN()
		if fa.Oldest != nil {
			days := now.Sub(*fa.Oldest).Hours() / 24
			if days > 0 {
				fa.AnnualizedROI = math.Pow(fa.End.ROI, 365.0/days)
			}
		}
		fa.PeriodROI = math.NaN()
		denom := fa.Start.Equity + fa.End.Invested - fa.Start.Invested
		if math.Abs(denom) >= investedTolerance {
			fa.PeriodROI = (fa.End.Equity + fa.End.Gains - fa.Start.Gains) / denom
		}

		result[a.accountID] = fa
	}

	symbols := make([]Symbol, 0, len(symbolByCommodity))
	for _, sym := range symbolByCommodity {
		if len(sym.Accounts) > 0 {
			symbols = append(symbols, *sym)
		}
	}
	return symbols, result, nil
}
