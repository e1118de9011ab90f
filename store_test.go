package finledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := CreateFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCommodity(t *testing.T, s *Store, name string, scale int64) Commodity {
	t.Helper()
	c, err := s.CreateCommodity(Commodity{Name: name, Kind: CommodityCurrency, PriceScale: scale})
	require.NoError(t, err)
	return c
}

func mustAccount(t *testing.T, s *Store, name string, commodityID, kindID int64) Account {
	t.Helper()
	a, err := s.CreateAccount(Account{Name: name, CommodityID: commodityID, CommoditySCU: 100, KindID: kindID})
	require.NoError(t, err)
	return a
}

// S6 from spec.md §8.
func TestGetOrCreateAccountKindDedups(t *testing.T) {
	s := newTestStore(t)

	k1, err := s.GetOrCreateAccountKind(AccountKind{Name: "Checking", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)

	k2, err := s.GetOrCreateAccountKind(AccountKind{Name: "Checking (again)", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	require.Equal(t, k1.ID, k2.ID)

	k3, err := s.GetOrCreateAccountKind(AccountKind{Name: "Savings", Category: KindAsset, IsNetworth: true, IsTrading: true})
	require.NoError(t, err)
	require.NotEqual(t, k1.ID, k3.ID)
}

func TestGetOrCreateAccountKindRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOrCreateAccountKind(AccountKind{Name: "bad", Category: KindExpense, IsWorkIncome: true})
	require.Error(t, err)
	require.Equal(t, KindDomain, err.(*Error).Kind)
}

func TestCreateAccountRejectsParentCycle(t *testing.T) {
	s := newTestStore(t)
	currency := mustCommodity(t, s, "USD", 100)
	kind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)

	root := mustAccount(t, s, "Root", currency.ID, kind.ID)
	child := mustAccount(t, s, "Child", currency.ID, kind.ID)

	child.ParentAccountID = &root.ID
	require.NoError(t, s.SaveAccount(child))

	root.ParentAccountID = &child.ID
	err = s.SaveAccount(root)
	require.Error(t, err)
	require.Equal(t, KindDomain, err.(*Error).Kind)
}

// Universal property 1: balance.
func TestCreateTransactionRejectsUnbalancedSplits(t *testing.T) {
	s := newTestStore(t)
	currency := mustCommodity(t, s, "USD", 100)
	kind, err := s.GetOrCreateAccountKind(AccountKind{Name: "Asset", Category: KindAsset, IsNetworth: true})
	require.NoError(t, err)
	a := mustAccount(t, s, "Checking", currency.ID, kind.ID)

	splits := []Split{
		{AccountID: a.ID, ScaledQty: 1000, ScaledValue: 1000, ValueCommodityID: currency.ID, PostTS: time.Now().UTC()},
	}
	_, _, err = s.CreateTransaction(Transaction{Timestamp: time.Now().UTC()}, splits)
	require.Error(t, err)
	require.Equal(t, KindDomain, err.(*Error).Kind)
}
