package finledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupSplitStreamFixture(t *testing.T) (*Store, Commodity, Account, Account) {
	t.Helper()
	s := newTestStore(t)
	currency := mustCommodity(t, s, "USD", 100)
	kind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	checking := mustAccount(t, s, "Checking", currency.ID, kind.ID)
	opening := mustAccount(t, s, "Opening Balances", currency.ID, kind.ID)
	return s, currency, checking, opening
}

// Universal property 4: the split stream is idempotent under Occurrences=0
// (no scheduled expansion changes the set of real splits already posted).
func TestSplitStreamOccurrencesNoneExcludesScheduled(t *testing.T) {
	s, currency, checking, opening := setupSplitStreamFixture(t)

	postTS := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	_, _, err := s.CreateTransaction(Transaction{Timestamp: postTS}, []Split{
		{AccountID: checking.ID, ScaledValue: 5000, ValueCommodityID: currency.ID, PostTS: postTS},
		{AccountID: opening.ID, ScaledValue: -5000, ValueCommodityID: currency.ID, PostTS: postTS},
	})
	require.NoError(t, err)

	scheduleStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := "freq=MONTHLY;interval=1"
	_, _, err = s.CreateTransaction(Transaction{
		Timestamp: scheduleStart,
		Scheduled: &rule,
	}, []Split{
		{AccountID: checking.ID, ScaledValue: 1000, ValueCommodityID: currency.ID, PostTS: scheduleStart},
		{AccountID: opening.ID, ScaledValue: -1000, ValueCommodityID: currency.ID, PostTS: scheduleStart},
	})
	require.NoError(t, err)

	r := DateRange{
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityDays,
	}

	none, err := s.SplitStream(r, ScenarioActual, OccurrencesNone)
	require.NoError(t, err)
	require.Len(t, none, 2)

	unlimited, err := s.SplitStream(r, ScenarioActual, OccurrencesUnlimited)
	require.NoError(t, err)
	require.Greater(t, len(unlimited), len(none))
}

func TestSplitStreamOccurrencesMaxCaps(t *testing.T) {
	s, currency, checking, opening := setupSplitStreamFixture(t)

	scheduleStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rule := "freq=MONTHLY;interval=1"
	_, _, err := s.CreateTransaction(Transaction{
		Timestamp: scheduleStart,
		Scheduled: &rule,
	}, []Split{
		{AccountID: checking.ID, ScaledValue: 1000, ValueCommodityID: currency.ID, PostTS: scheduleStart},
		{AccountID: opening.ID, ScaledValue: -1000, ValueCommodityID: currency.ID, PostTS: scheduleStart},
	})
	require.NoError(t, err)

	r := DateRange{
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Granularity: GranularityDays,
	}

	capped, err := s.SplitStream(r, ScenarioActual, Occurrences{Max: 2})
	require.NoError(t, err)
	require.Len(t, capped, 4) // 2 occurrences * 2 splits

	unlimited, err := s.SplitStream(r, ScenarioActual, OccurrencesUnlimited)
	require.NoError(t, err)
	require.Greater(t, len(unlimited), len(capped))
}
