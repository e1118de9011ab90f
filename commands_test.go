package finledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEngineOpenFileFetchAndNetworthHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := CreateFile(path)
	require.NoError(t, err)
	usd := mustCommodity(t, s, "USD", 100)
	kind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	checking := mustAccount(t, s, "Checking", usd.ID, kind.ID)
	opening := mustAccount(t, s, "Opening Balances", usd.ID, kind.ID)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err = s.CreateTransaction(Transaction{Timestamp: ts}, []Split{
		{AccountID: checking.ID, ScaledQty: 100000, ScaledValue: 100000, ValueCommodityID: usd.ID, PostTS: ts},
		{AccountID: opening.ID, ScaledValue: -100000, ValueCommodityID: usd.ID, PostTS: ts},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	e := NewEngine(nil)
	require.NoError(t, e.OpenFile(path))
	defer e.Close()

	fetched, err := e.FetchAccounts()
	require.NoError(t, err)
	require.Len(t, fetched.Accounts, 2)

	history, err := e.NetworthHistory(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		usd.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	require.InDelta(t, 1000.0, history[0].Value, 1e-6)
}
