package finledger

import "time"

// NetworthPoint is one account's snapshot at a single instant, per spec
// §4.G.1, grounded on original_source/cte_query_networth.rs.
type NetworthPoint struct {
	AccountID int64
	Shares    float64
	Price     float64
}

func (s *Store) networthAccountIDs() ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT a.id FROM accounts a JOIN account_kinds k ON a.kind_id = k.id WHERE k.is_networth = 1`)
	if err != nil {
		return nil, storeErr("networth accounts: %v", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("networth accounts scan: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Snapshot implements §4.G.1: for each target instant, per-account
// {shares, price} restricted to is_networth accounts, read from the
// balance-with-currency intervals by selecting the interval containing
// each instant.
func (s *Store) Snapshot(instants []time.Time, currencyID int64, scenario int64, occ Occurrences) (map[time.Time][]NetworthPoint, error) {
	ids, err := s.networthAccountIDs()
	if err != nil {
		return nil, err
	}
	if len(instants) == 0 {
		return map[time.Time][]NetworthPoint{}, nil
	}
	max := instants[0]
	for _, t := range instants[1:] {
		if t.After(max) {
			max = t
		}
	}
	// The running balance at an instant needs every split posted up to it,
	// so the stream starts at the beginning of time, not at the earliest
	// instant.
	r := DateRange{Start: time.Time{}, End: max.AddDate(0, 0, 1), Granularity: GranularityDays}
	entries, err := s.SplitStream(r, scenario, occ)
	if err != nil {
		return nil, err
	}
	balances, err := s.BalanceIntervals(entries)
	if err != nil {
		return nil, err
	}
	withCurrency, err := s.BalanceWithCurrency(balances, currencyID)
	if err != nil {
		return nil, err
	}

	out := map[time.Time][]NetworthPoint{}
	for _, instant := range instants {
		var points []NetworthPoint
		for _, accountID := range ids {
			if iv, ok := BalanceCurrencyAt(withCurrency, accountID, instant); ok {
				points = append(points, NetworthPoint{AccountID: accountID, Shares: iv.Shares, Price: iv.ComputedPrice})
			}
		}
		out[instant] = points
	}
	return out, nil
}

// NetworthHistoryPoint is one monthly sample of §4.G.2.
type NetworthHistoryPoint struct {
	Date    time.Time
	Value   float64
	Diff    float64
	Average float64
}

// NetworthHistory implements §4.G.2: monthly (date, value, diff, average)
// points over dates, extended by (prior, after) months for the smoothing
// window.
//
// Grounded on original_source/cte_query_networth.rs + dates.rs's MONTHS
// cte(): each reported month's value is the networth as of the *end* of
// that month (the instant is the first moment of the following month), not
// as of the month's first day -- a deposit on Jan 15 belongs to January's
// value, not February's. Every month in the caller's requested span is
// reported even when no split falls in it -- per spec §8's S4 scenario, a
// trailing month with no activity still gets its own point, carrying the
// prior month's value forward with diff=0 -- so months are enumerated
// directly from the requested (and extended) span rather than narrowed to
// the range RestrictToSplits would return; Snapshot already reports 0
// before any data and the last known balance after it, so no data range
// needs to be probed up front.
func (s *Store) NetworthHistory(dates DateRange, currencyID int64, scenario int64, occ Occurrences, prior, after int) ([]NetworthHistoryPoint, error) {
	firstMonth := monthStart(dates.Start)
	lastMonth := monthStart(dates.End.AddDate(0, 0, -1))
	if lastMonth.Before(firstMonth) {
		lastMonth = firstMonth
	}
	extStart := firstMonth.AddDate(0, -prior, 0)
	extEnd := lastMonth.AddDate(0, after, 0)

	var months []time.Time
	for m := extStart; !m.After(extEnd) && len(months) < maxDateSetInstants; m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}

	sampleInstants := make([]time.Time, len(months))
	for i, m := range months {
		sampleInstants[i] = m.AddDate(0, 1, 0)
	}

	snapshot, err := s.Snapshot(sampleInstants, currencyID, scenario, occ)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(months))
	for i, instant := range sampleInstants {
		var sum float64
		for _, p := range snapshot[instant] {
			sum += p.Shares * p.Price
		}
		values[i] = sum
	}

	diffs := make([]float64, len(months))
	for i := range months {
		if i == 0 {
			diffs[i] = 0
		} else {
			diffs[i] = values[i] - values[i-1]
		}
	}

	var out []NetworthHistoryPoint
	for i, m := range months {
		if m.Before(firstMonth) || m.After(lastMonth) {
			continue
		}
		lo := i - prior
		if lo < 0 {
			lo = 0
		}
		hi := i + after
		if hi >= len(diffs) {
			hi = len(diffs) - 1
		}
		var avgSum float64
		count := 0
		for j := lo; j <= hi; j++ {
			avgSum += diffs[j]
			count++
		}
		avg := 0.0
		if count > 0 {
			avg = avgSum / float64(count)
		}
		out = append(out, NetworthHistoryPoint{Date: m, Value: values[i], Diff: diffs[i], Average: avg})
	}
	return out, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
