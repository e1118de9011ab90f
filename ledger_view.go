package finledger

import (
	"sort"
	"time"
)

// SplitDescr is one split rendered for the ledger view, per spec §6's
// ledger() command and grounded on original_source/ledger.rs's SplitDescr.
type SplitDescr struct {
	AccountID int64
	PostTS    time.Time
	Amount    float64
	Currency  int64
	Reconcile ReconcileState
	Shares    float64
	Ratio     float64
	Price     float64
	Payee     string
}

// TransactionDescr groups a transaction's splits together with its
// per-account running balance, per original_source/ledger.rs's
// TransactionDescr.
type TransactionDescr struct {
	TransactionID  int64
	Occurrence     int
	Date           time.Time
	BalanceShares  float64
	Memo           string
	CheckNumber    string
	IsRecurring    bool
	Splits         []SplitDescr
}

// Ledger implements the §6 ledger() command: chronological transactions
// with splits and per-account running balance, restricted to the accounts
// named in accountIDs (all of a matching transaction's splits are
// returned, even those touching other accounts).
func (s *Store) Ledger(minTS, maxTS time.Time, accountIDs []int64, occ Occurrences) ([]TransactionDescr, error) {
	r := DateRange{Start: minTS, End: maxTS, Granularity: GranularityDays}
	entries, err := s.SplitStream(r, ScenarioActual, occ)
	if err != nil {
		return nil, err
	}

	wanted := map[int64]bool{}
	for _, id := range accountIDs {
		wanted[id] = true
	}

	byTransaction := map[int64][]StreamEntry{}
	var order []int64
	seen := map[int64]bool{}
	for _, e := range entries {
		if len(wanted) > 0 {
			hasWantedSplit := false
			for _, other := range entries {
				if other.TransactionID == e.TransactionID && wanted[other.AccountID] {
					hasWantedSplit = true
					break
				}
			}
			if !hasWantedSplit {
				continue
			}
		}
		byTransaction[e.TransactionID] = append(byTransaction[e.TransactionID], e)
		if !seen[e.TransactionID] {
			seen[e.TransactionID] = true
			order = append(order, e.TransactionID)
		}
	}

	balances, err := s.BalanceIntervals(entries)
	if err != nil {
		return nil, err
	}
	sharesAt := func(accountID int64, t time.Time) float64 {
		for _, b := range balances {
			if b.AccountID == accountID && !t.Before(b.MinTS) && t.Before(b.MaxTS) {
				return b.Shares
			}
		}
		return 0
	}

	valueScaleCache := map[int64]int64{}
	scaleOf := func(commodityID int64) (int64, error) {
		if sc, ok := valueScaleCache[commodityID]; ok {
			return sc, nil
		}
		c, err := s.GetCommodity(commodityID)
		if err != nil {
			return 0, err
		}
		valueScaleCache[commodityID] = c.PriceScale
		return c.PriceScale, nil
	}

	payeeCache := map[int64]string{}
	payeeName := func(id int64) (string, error) {
		if name, ok := payeeCache[id]; ok {
			return name, nil
		}
		var name string
		if err := s.db.QueryRow(`SELECT name FROM payees WHERE id = ?`, id).Scan(&name); err != nil {
			return "", storeErr("payee %d: %v", id, err)
		}
		payeeCache[id] = name
		return name, nil
	}

	sort.Slice(order, func(i, j int) bool {
		return byTransaction[order[i]][0].Timestamp.Before(byTransaction[order[j]][0].Timestamp)
	})

	out := make([]TransactionDescr, 0, len(order))
	for _, txID := range order {
		splits := byTransaction[txID]
		sort.Slice(splits, func(i, j int) bool { return splits[i].SplitID < splits[j].SplitID })
		first := splits[0]

		td := TransactionDescr{
			TransactionID: txID,
			Occurrence:    first.Occurrence,
			Date:          first.Timestamp,
			Memo:          first.Memo,
			CheckNumber:   first.CheckNumber,
			IsRecurring:   first.Scheduled != nil,
		}
		for _, sp := range splits {
			scale, err := scaleOf(sp.ValueCommodityID)
			if err != nil {
				return nil, err
			}
			var payee string
			if sp.PayeeID != nil {
				payee, err = payeeName(*sp.PayeeID)
				if err != nil {
					return nil, err
				}
			}
			var price float64
			if sp.ScaledQty != 0 {
				if a, err := s.GetAccount(sp.AccountID); err == nil {
					price = float64(sp.ScaledValue*a.CommoditySCU) / float64(sp.ScaledQty*scale)
				}
			}
			if wanted[sp.AccountID] || len(wanted) == 0 {
				td.BalanceShares = sharesAt(sp.AccountID, sp.PostTS)
			}
			td.Splits = append(td.Splits, SplitDescr{
				AccountID: sp.AccountID,
				PostTS:    sp.PostTS,
				Amount:    float64(sp.ScaledValue) / float64(scale),
				Currency:  sp.ValueCommodityID,
				Reconcile: sp.Reconcile,
				Shares:    float64(sp.ScaledQty) / float64(sp.RatioQty),
				Ratio:     float64(sp.RatioQty),
				Price:     price,
				Payee:     payee,
			})
		}
		out = append(out, td)
	}
	return out, nil
}
