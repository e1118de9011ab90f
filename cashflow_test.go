package finledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Universal property 6: with prior=after=0 the rolling average degenerates
// to the month's own total.
func TestMonthlyCashflowZeroWindowAverageEqualsTotal(t *testing.T) {
	s := newTestStore(t)
	usd := mustCommodity(t, s, "USD", 100)
	assetKind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	expenseKind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Expense", Category: KindExpense})
	require.NoError(t, err)
	checking := mustAccount(t, s, "Checking", usd.ID, assetKind.ID)
	groceries := mustAccount(t, s, "Groceries", usd.ID, expenseKind.ID)

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	_, _, err = s.CreateTransaction(Transaction{Timestamp: jan}, []Split{
		{AccountID: groceries.ID, ScaledValue: 10000, ValueCommodityID: usd.ID, PostTS: jan},
		{AccountID: checking.ID, ScaledValue: -10000, ValueCommodityID: usd.ID, PostTS: jan},
	})
	require.NoError(t, err)
	_, _, err = s.CreateTransaction(Transaction{Timestamp: feb}, []Split{
		{AccountID: groceries.ID, ScaledValue: 20000, ValueCommodityID: usd.ID, PostTS: feb},
		{AccountID: checking.ID, ScaledValue: -20000, ValueCommodityID: usd.ID, PostTS: feb},
	})
	require.NoError(t, err)

	dates := DateRange{
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityMonths,
	}
	points, err := s.MonthlyCashflow(dates, usd.ID, ScenarioActual, OccurrencesNone, 0, 0)
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		require.InDelta(t, p.ExpTotal, p.ExpAverage, 1e-9)
	}
	require.InDelta(t, 100.0, points[0].ExpTotal, 1e-6)
	require.InDelta(t, 200.0, points[1].ExpTotal, 1e-6)
}

func TestMonthlyCashflowSmoothingWindowAverages(t *testing.T) {
	s := newTestStore(t)
	usd := mustCommodity(t, s, "USD", 100)
	assetKind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	expenseKind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Expense", Category: KindExpense})
	require.NoError(t, err)
	checking := mustAccount(t, s, "Checking", usd.ID, assetKind.ID)
	groceries := mustAccount(t, s, "Groceries", usd.ID, expenseKind.ID)

	months := []time.Time{
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	amounts := []int64{10000, 20000, 30000}
	for i, ts := range months {
		_, _, err = s.CreateTransaction(Transaction{Timestamp: ts}, []Split{
			{AccountID: groceries.ID, ScaledValue: amounts[i], ValueCommodityID: usd.ID, PostTS: ts},
			{AccountID: checking.ID, ScaledValue: -amounts[i], ValueCommodityID: usd.ID, PostTS: ts},
		})
		require.NoError(t, err)
	}

	dates := DateRange{
		Start:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityMonths,
	}
	points, err := s.MonthlyCashflow(dates, usd.ID, ScenarioActual, OccurrencesNone, 1, 1)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.InDelta(t, 200.0, points[0].ExpTotal, 1e-6)
	require.InDelta(t, 200.0, points[0].ExpAverage, 1e-6) // (100+200+300)/3
}
