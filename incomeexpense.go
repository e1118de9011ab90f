package finledger

import "time"

// OneIncomeExpense is one account's total within a period, per spec §4.G.4.
type OneIncomeExpense struct {
	AccountID int64
	Value     float64
}

// IncomeExpense implements §4.G.4: per-account sums of value over
// [minTS, maxTS], filtered to the selected categories with is_unrealized
// excluded. Income totals are sign-negated (income splits carry negative
// values) so income and expense both display as positive magnitudes.
// Grounded on original_source/income_expense.rs.
func (s *Store) IncomeExpense(income, expense bool, minTS, maxTS time.Time, currencyID int64) ([]OneIncomeExpense, error) {
	if !income && !expense {
		return nil, nil
	}

	r := DateRange{Start: minTS, End: maxTS, Granularity: GranularityDays}
	entries, err := s.SplitStream(r, ScenarioActual, OccurrencesNone)
	if err != nil {
		return nil, err
	}
	values, err := s.SplitValues(entries)
	if err != nil {
		return nil, err
	}

	totals := map[int64]float64{}
	isIncome := map[int64]bool{}
	for _, v := range values {
		if v.ValueCommodityID != currencyID {
			continue
		}
		a, err := s.GetAccount(v.AccountID)
		if err != nil {
			return nil, err
		}
		var k AccountKind
		var category int
		row := s.db.QueryRow(`SELECT category, is_unrealized FROM account_kinds WHERE id = ?`, a.KindID)
		if err := row.Scan(&category, &k.IsUnrealized); err != nil {
			return nil, storeErr("income_expense account kind %d: %v", a.KindID, err)
		}
		k.Category = AccountKindCategory(category)
		if k.IsUnrealized {
			continue
		}
		wanted := (k.Category == KindExpense && expense) || (k.Category == KindIncome && income)
		if !wanted {
			continue
		}
		totals[v.AccountID] += v.Value
		isIncome[v.AccountID] = k.Category == KindIncome
	}

	out := make([]OneIncomeExpense, 0, len(totals))
	for accountID, value := range totals {
		if isIncome[accountID] {
			value = -value
		}
		out = append(out, OneIncomeExpense{AccountID: accountID, Value: value})
	}
	return out, nil
}
