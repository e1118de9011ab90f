package finledger

import (
	"sort"
	"time"
)

// armageddon is the sentinel "end of time" instant closing the final open
// balance/price interval, matching original_source/dates.rs's
// SQL_ARMAGEDDON.
var armageddon = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// SplitValue is a split annotated with its real-unit value and, when the
// split moves a non-zero quantity, its computed per-unit price. Grounded on
// original_source/cte_query_balance.rs's cte_splits_with_values CTE, spec
// §4.F.1.
type SplitValue struct {
	StreamEntry
	Value         float64
	ComputedPrice float64
	HasPrice      bool
}

// SplitValues attaches value/computed_price to every entry of a split
// stream.
func (s *Store) SplitValues(entries []StreamEntry) ([]SplitValue, error) {
	commodityScale := map[int64]int64{}
	accountSCU := map[int64]int64{}
	out := make([]SplitValue, 0, len(entries))
	for _, e := range entries {
		scale, ok := commodityScale[e.ValueCommodityID]
		if !ok {
			c, err := s.GetCommodity(e.ValueCommodityID)
			if err != nil {
				return nil, err
			}
			scale = c.PriceScale
			commodityScale[e.ValueCommodityID] = scale
		}
		sv := SplitValue{StreamEntry: e, Value: float64(e.ScaledValue) / float64(scale)}
		if e.ScaledQty != 0 {
			scu, ok := accountSCU[e.AccountID]
			if !ok {
				a, err := s.GetAccount(e.AccountID)
				if err != nil {
					return nil, err
				}
				scu = a.CommoditySCU
				accountSCU[e.AccountID] = scu
			}
			sv.ComputedPrice = float64(e.ScaledValue*scu) / float64(e.ScaledQty*scale)
			sv.HasPrice = true
		}
		out = append(out, sv)
	}
	return out, nil
}

// BalanceInterval is one half-open [MinTS, MaxTS) window during which an
// account held a constant share count, per spec §4.F.2.
type BalanceInterval struct {
	AccountID   int64
	CommodityID int64
	MinTS       time.Time
	MaxTS       time.Time
	Shares      float64
}

// BalanceIntervals partitions the time axis per account into half-open
// intervals annotated with the cumulative share count, reimplementing the
// LEAD-window CTE of cte_query_balance.rs as a single sorted pass (spec
// §4.F.2; left-continuous: the value at t reflects every split with
// post_ts <= t, ties on post_ts broken by split id).
func (s *Store) BalanceIntervals(entries []StreamEntry) ([]BalanceInterval, error) {
	byAccount := map[int64][]StreamEntry{}
	for _, e := range entries {
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e)
	}

	var out []BalanceInterval
	for accountID, splits := range byAccount {
		a, err := s.GetAccount(accountID)
		if err != nil {
			return nil, err
		}
		sort.Slice(splits, func(i, j int) bool {
			if !splits[i].PostTS.Equal(splits[j].PostTS) {
				return splits[i].PostTS.Before(splits[j].PostTS)
			}
			return splits[i].SplitID < splits[j].SplitID
		})
		var cumQty int64
		for i, sp := range splits {
			cumQty += sp.ScaledQty
			maxTS := armageddon
			if i+1 < len(splits) {
				maxTS = splits[i+1].PostTS
			}
			out = append(out, BalanceInterval{
				AccountID:   accountID,
				CommodityID: a.CommodityID,
				MinTS:       sp.PostTS,
				MaxTS:       maxTS,
				Shares:      float64(cumQty) / float64(a.CommoditySCU),
			})
		}
	}
	return out, nil
}

// BalanceCurrencyInterval intersects a BalanceInterval with the price
// history converting the account's commodity into a requested currency, per
// spec §4.F.3 -- the single source of truth for "what was this account
// worth in currency C at time t".
type BalanceCurrencyInterval struct {
	AccountID     int64
	CurrencyID    int64
	MinTS         time.Time
	MaxTS         time.Time
	Shares        float64
	ComputedPrice float64
	Balance       float64
}

type priceInterval struct {
	minTS, maxTS time.Time
	price        float64
}

// priceIntervals builds half-open validity windows from the price history
// of origin->target, ordered by timestamp, extending the last observation
// to armageddon.
func (s *Store) priceIntervals(originID, targetID int64) ([]priceInterval, error) {
	rows, err := s.db.Query(
		`SELECT p.ts, p.scaled_price, src.price_scale
		 FROM prices p JOIN commodities src ON src.id = ?
		 WHERE p.origin_id = ? AND p.target_id = ?
		 ORDER BY p.ts`, originID, originID, targetID)
	if err != nil {
		return nil, storeErr("price intervals %d->%d: %v", originID, targetID, err)
	}
	defer rows.Close()

	type point struct {
		ts    time.Time
		price float64
	}
	var points []point
	for rows.Next() {
		var ts string
		var scaledPrice, priceScale int64
		if err := rows.Scan(&ts, &scaledPrice, &priceScale); err != nil {
			return nil, storeErr("price intervals scan: %v", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			continue
		}
		points = append(points, point{ts: t, price: float64(scaledPrice) / float64(priceScale)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []priceInterval
	for i, p := range points {
		maxTS := armageddon
		if i+1 < len(points) {
			maxTS = points[i+1].ts
		}
		out = append(out, priceInterval{minTS: p.ts, maxTS: maxTS, price: p.price})
	}
	return out, nil
}

// BalanceWithCurrency intersects balance intervals with the requested
// currency's price history, restricted to targets whose kind is Currency.
func (s *Store) BalanceWithCurrency(balances []BalanceInterval, currencyID int64) ([]BalanceCurrencyInterval, error) {
	currency, err := s.GetCommodity(currencyID)
	if err != nil {
		return nil, err
	}
	if currency.Kind != CommodityCurrency {
		return nil, domainErr("commodity %d is not a currency", currencyID)
	}

	priceCache := map[int64][]priceInterval{}
	var out []BalanceCurrencyInterval
	for _, b := range balances {
		if b.CommodityID == currencyID {
			// An account held in the requested currency needs no price
			// row: one unit is worth exactly one unit.
			out = append(out, BalanceCurrencyInterval{
				AccountID: b.AccountID, CurrencyID: currencyID,
				MinTS: b.MinTS, MaxTS: b.MaxTS,
				Shares: b.Shares, ComputedPrice: 1, Balance: b.Shares,
			})
			continue
		}
		prices, ok := priceCache[b.CommodityID]
		if !ok {
			prices, err = s.priceIntervals(b.CommodityID, currencyID)
			if err != nil {
				return nil, err
			}
			priceCache[b.CommodityID] = prices
		}
		for _, p := range prices {
			if !b.MinTS.Before(p.maxTS) || !p.minTS.Before(b.MaxTS) {
				continue
			}
			minTS := b.MinTS
			if p.minTS.After(minTS) {
				minTS = p.minTS
			}
			maxTS := b.MaxTS
			if p.maxTS.Before(maxTS) {
				maxTS = p.maxTS
			}
			out = append(out, BalanceCurrencyInterval{
				AccountID:     b.AccountID,
				CurrencyID:    currencyID,
				MinTS:         minTS,
				MaxTS:         maxTS,
				Shares:        b.Shares,
				ComputedPrice: p.price,
				Balance:       b.Shares * p.price,
			})
		}
	}
	return out, nil
}

// BalanceCurrencyAt selects the interval containing instant t for account
// accountID, per spec §4.G.1's "selecting the interval containing each
// instant".
func BalanceCurrencyAt(intervals []BalanceCurrencyInterval, accountID int64, t time.Time) (BalanceCurrencyInterval, bool) {
	for _, iv := range intervals {
		if iv.AccountID != accountID {
			continue
		}
		if !t.Before(iv.MinTS) && t.Before(iv.MaxTS) {
			return iv, true
		}
	}
	return BalanceCurrencyInterval{}, false
}
