package finledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDateRangeInstantsMonthlyStep(t *testing.T) {
	r := DateRange{
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityMonths,
	}
	instants := r.Instants()
	require.Len(t, instants, 3)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), instants[0])
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), instants[2])
	require.Equal(t, instants[2], r.Latest())
}

func TestDateRangeInstantsCappedAtMax(t *testing.T) {
	r := DateRange{
		Start:       time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityDays,
	}
	instants := r.Instants()
	require.Len(t, instants, maxDateSetInstants)
}

func TestDateRangeExtend(t *testing.T) {
	r := DateRange{
		Start:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityMonths,
	}
	ext := r.Extend(1, 2)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), ext.Start)
	require.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), ext.End)
}

func TestDateValuesEarliestLatest(t *testing.T) {
	v := DateValues{Dates: []time.Time{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}}
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), v.Earliest())
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), v.Latest())
}

func TestRestrictToSplitsNarrowsRange(t *testing.T) {
	s := newTestStore(t)
	currency := mustCommodity(t, s, "USD", 100)
	kind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	checking := mustAccount(t, s, "Checking", currency.ID, kind.ID)
	opening := mustAccount(t, s, "Opening Balances", currency.ID, kind.ID)

	postTS := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	_, _, err = s.CreateTransaction(Transaction{Timestamp: postTS}, []Split{
		{AccountID: checking.ID, ScaledValue: 10000, ValueCommodityID: currency.ID, PostTS: postTS},
		{AccountID: opening.ID, ScaledValue: -10000, ValueCommodityID: currency.ID, PostTS: postTS},
	})
	require.NoError(t, err)

	wide := DateRange{
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityDays,
	}
	narrowed, err := wide.RestrictToSplits(s, 0, OccurrencesNone)
	require.NoError(t, err)
	require.True(t, narrowed.Start.Equal(postTS))
	require.True(t, narrowed.End.Equal(postTS))
}
