package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"impactbond/native/bond"
	"impactbond/storage"
)

func principal(last byte) [20]byte {
	var out [20]byte
	out[0] = 0xB0
	out[19] = last
	return out
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db)
}

func TestManagerBondRoundTrip(t *testing.T) {
	mgr := newTestManager(t)

	_, ok, err := mgr.BondGet(0)
	require.NoError(t, err)
	require.False(t, ok)

	next, err := mgr.BondNextID()
	require.NoError(t, err)
	require.Zero(t, next)

	goal, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	record := &bond.Bond{
		ID:       0,
		NGO:      principal(1),
		Verifier: principal(2),
		Title:    "Mangrove Restoration",
		Goal:     goal,
		Funded:   big.NewInt(0),
		Active:   true,
	}
	require.NoError(t, mgr.BondInsert(record, 1))

	stored, ok, err := mgr.BondGet(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Title, stored.Title)
	require.Equal(t, record.NGO, stored.NGO)
	require.Equal(t, record.Verifier, stored.Verifier)
	require.Zero(t, stored.Goal.Cmp(goal))
	require.True(t, stored.Active)
	require.False(t, stored.Verified)
	require.NotSame(t, goal, stored.Goal)

	next, err = mgr.BondNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)

	stored.Funded = big.NewInt(42)
	stored.IsFunded = true
	stored.Verified = true
	stored.Active = false
	require.NoError(t, mgr.BondPut(stored))

	updated, ok, err := mgr.BondGet(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, updated.Funded.Cmp(big.NewInt(42)))
	require.True(t, updated.IsFunded)
	require.True(t, updated.Verified)
	require.False(t, updated.Active)
}

func TestManagerBondInsertRejectsStaleCounter(t *testing.T) {
	mgr := newTestManager(t)
	record := &bond.Bond{ID: 3, Goal: big.NewInt(1), Funded: big.NewInt(0), Active: true}
	require.Error(t, mgr.BondInsert(record, 3))

	_, ok, err := mgr.BondGet(3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerRejectsNegativeAmounts(t *testing.T) {
	mgr := newTestManager(t)
	require.Error(t, mgr.BondPut(&bond.Bond{ID: 0, Goal: big.NewInt(-1)}))
	require.Error(t, mgr.BondPut(nil))
}

func TestManagerAdmin(t *testing.T) {
	mgr := newTestManager(t)
	_, ok, err := mgr.BondAdmin()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.BondSetAdmin(principal(9)))
	admin, ok, err := mgr.BondAdmin()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, principal(9), admin)
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := newTestManager(t)
	require.Error(t, mgr.KVPut(nil, uint64(1)))
	_, err := mgr.KVGet([]byte{}, nil)
	require.Error(t, err)
}

func TestRegistryStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	admin := principal(1)
	ngo := principal(2)
	verifier := principal(3)

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	reg := bond.NewRegistry()
	reg.SetState(NewManager(db))
	require.NoError(t, reg.Bootstrap(admin))

	id, err := reg.CreateBond(ngo, "Clean Water", big.NewInt(1000), verifier)
	require.NoError(t, err)
	require.NoError(t, reg.FundBond(principal(4), id, big.NewInt(1100)))
	require.NoError(t, reg.TransferAdmin(admin, principal(5)))
	require.NoError(t, db.Close())

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	restored := bond.NewRegistry()
	restored.SetState(NewManager(reopened))
	require.NoError(t, restored.Bootstrap(admin), "bootstrap must keep the persisted admin")

	current, err := restored.Admin()
	require.NoError(t, err)
	require.Equal(t, principal(5), current)

	b, err := restored.GetBond(id)
	require.NoError(t, err)
	require.True(t, b.IsFunded)
	require.Zero(t, b.Funded.Cmp(big.NewInt(1100)))

	next, err := restored.CreateBond(ngo, "Solar School", big.NewInt(2000), verifier)
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)
}
