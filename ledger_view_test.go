package finledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLedgerOrdersTransactionsAndTracksBalance(t *testing.T) {
	s := newTestStore(t)
	usd := mustCommodity(t, s, "USD", 100)
	kind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	checking := mustAccount(t, s, "Checking", usd.ID, kind.ID)
	opening := mustAccount(t, s, "Opening Balances", usd.ID, kind.ID)

	payee, err := s.CreatePayee(Payee{Name: "Employer"})
	require.NoError(t, err)

	jan := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

	_, _, err = s.CreateTransaction(Transaction{Timestamp: feb, Memo: "second"}, []Split{
		{AccountID: checking.ID, ScaledValue: 5000, ValueCommodityID: usd.ID, PostTS: feb, PayeeID: &payee.ID},
		{AccountID: opening.ID, ScaledValue: -5000, ValueCommodityID: usd.ID, PostTS: feb},
	})
	require.NoError(t, err)
	_, _, err = s.CreateTransaction(Transaction{Timestamp: jan, Memo: "first"}, []Split{
		{AccountID: checking.ID, ScaledQty: 10000, ScaledValue: 10000, ValueCommodityID: usd.ID, PostTS: jan},
		{AccountID: opening.ID, ScaledValue: -10000, ValueCommodityID: usd.ID, PostTS: jan},
	})
	require.NoError(t, err)

	entries, err := s.Ledger(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		[]int64{checking.ID}, OccurrencesNone)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "first", entries[0].Memo)
	require.Equal(t, "second", entries[1].Memo)

	var sawPayee bool
	for _, sp := range entries[1].Splits {
		if sp.Payee == "Employer" {
			sawPayee = true
		}
	}
	require.True(t, sawPayee)
}
