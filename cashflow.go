package finledger

import "time"

// CashflowPoint is one month's §4.G.3 totals, each paired with its centered
// rolling average over the (prior, after) month window. Grounded on
// original_source/cashflow.rs's monthly_cashflow, there a single SQL query
// with AVG...OVER window functions; reimplemented as a Go aggregation pass
// since the per-split value already requires a Go-side price join.
type CashflowPoint struct {
	Month               time.Time
	RealizedIncTotal    float64
	RealizedIncAverage  float64
	UnrealizedIncTotal  float64
	UnrealizedAverage   float64
	ExpTotal            float64
	ExpAverage          float64
}

// MonthlyCashflow implements §4.G.3 over dates, extended by (prior, after)
// months to populate the rolling window, then narrowed back to the
// caller's half-open span: a month is reported when it starts before
// dates.End.
func (s *Store) MonthlyCashflow(dates DateRange, currencyID int64, scenario int64, occ Occurrences, prior, after int) ([]CashflowPoint, error) {
	adjusted := DateRange{Start: monthStart(dates.Start), End: monthStart(dates.End).AddDate(0, 1, 0), Granularity: GranularityMonths}.Extend(prior, after)

	entries, err := s.SplitStream(adjusted, scenario, occ)
	if err != nil {
		return nil, err
	}
	values, err := s.SplitValues(entries)
	if err != nil {
		return nil, err
	}

	kindCache := map[int64]AccountKind{}
	kindOf := func(accountID int64) (AccountKind, error) {
		a, err := s.GetAccount(accountID)
		if err != nil {
			return AccountKind{}, err
		}
		if k, ok := kindCache[a.KindID]; ok {
			return k, nil
		}
		var k AccountKind
		var category int
		row := s.db.QueryRow(
			`SELECT category, is_work_income, is_passive_income, is_unrealized, is_networth, is_trading, is_stock, is_income_tax, is_misc_tax
			 FROM account_kinds WHERE id = ?`, a.KindID)
		if err := row.Scan(&category, &k.IsWorkIncome, &k.IsPassiveIncome, &k.IsUnrealized, &k.IsNetworth, &k.IsTrading, &k.IsStock, &k.IsIncomeTax, &k.IsMiscTax); err != nil {
			return AccountKind{}, storeErr("account kind for account %d: %v", accountID, err)
		}
		k.Category = AccountKindCategory(category)
		kindCache[a.KindID] = k
		return k, nil
	}

	monthly := map[time.Time]*CashflowPoint{}
	months := adjusted.Instants()
	for _, m := range months {
		monthly[m] = &CashflowPoint{Month: m}
	}
	for _, v := range values {
		if v.ValueCommodityID != currencyID {
			continue
		}
		k, err := kindOf(v.AccountID)
		if err != nil {
			return nil, err
		}
		m := monthStart(v.PostTS)
		p, ok := monthly[m]
		if !ok {
			p = &CashflowPoint{Month: m}
			monthly[m] = p
			months = append(months, m)
		}
		switch {
		case k.Category == KindIncome && !k.IsUnrealized:
			p.RealizedIncTotal += v.Value
		case k.Category == KindIncome && k.IsUnrealized:
			p.UnrealizedIncTotal += v.Value
		case k.Category == KindExpense:
			p.ExpTotal += v.Value
		}
	}

	ordered := make([]*CashflowPoint, len(months))
	for i, m := range months {
		ordered[i] = monthly[m]
	}
	for i := range ordered {
		lo, hi := i-prior, i+after
		if lo < 0 {
			lo = 0
		}
		if hi >= len(ordered) {
			hi = len(ordered) - 1
		}
		var incSum, unrealSum, expSum float64
		count := 0
		for j := lo; j <= hi; j++ {
			incSum += ordered[j].RealizedIncTotal
			unrealSum += ordered[j].UnrealizedIncTotal
			expSum += ordered[j].ExpTotal
			count++
		}
		if count > 0 {
			ordered[i].RealizedIncAverage = incSum / float64(count)
			ordered[i].UnrealizedAverage = unrealSum / float64(count)
			ordered[i].ExpAverage = expSum / float64(count)
		}
	}

	var out []CashflowPoint
	for _, p := range ordered {
		if p.Month.Before(monthStart(dates.Start)) || !p.Month.Before(dates.End) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// MeanPoint is the §6 mean() command's combined cashflow/networth-delta
// report, grounded on original_source/means.rs.
type MeanPoint struct {
	Date                  time.Time
	ValueExpenses         float64
	AverageExpenses       float64
	ValueRealized         float64
	ValueNetworthDelta    float64
	AverageNetworthDelta  float64
}

// Mean implements the §6 mean() command.
func (s *Store) Mean(dates DateRange, currencyID int64, prior, after int, includeUnrealized bool) ([]MeanPoint, error) {
	restricted, err := dates.RestrictToSplits(s, ScenarioActual, OccurrencesNone)
	if err != nil {
		return nil, err
	}

	var unreal map[time.Time][2]float64
	if includeUnrealized {
		unreal = map[time.Time][2]float64{}
		hist, err := s.NetworthHistory(restricted, currencyID, ScenarioActual, OccurrencesNone, prior, after)
		if err != nil {
			return nil, err
		}
		for _, p := range hist {
			unreal[monthStart(p.Date)] = [2]float64{p.Diff, p.Average}
		}
	}

	cashflow, err := s.MonthlyCashflow(restricted, currencyID, ScenarioActual, OccurrencesNone, prior, after)
	if err != nil {
		return nil, err
	}

	out := make([]MeanPoint, 0, len(cashflow))
	for _, c := range cashflow {
		u := unreal[monthStart(c.Month)]
		out = append(out, MeanPoint{
			Date:                 c.Month,
			ValueExpenses:        -c.ExpTotal,
			AverageExpenses:      -c.ExpAverage,
			ValueRealized:        -c.RealizedIncTotal,
			ValueNetworthDelta:   u[0],
			AverageNetworthDelta: u[1],
		})
	}
	return out, nil
}
