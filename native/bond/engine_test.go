package bond

import (
	"errors"
	"math/big"
	"testing"

	"impactbond/core/events"
)

type mockState struct {
	admin    [20]byte
	hasAdmin bool
	next     uint64
	bonds    map[uint64]*Bond
	failPut  error
}

func newMockState() *mockState {
	return &mockState{bonds: make(map[uint64]*Bond)}
}

func (m *mockState) BondAdmin() ([20]byte, bool, error) {
	return m.admin, m.hasAdmin, nil
}

func (m *mockState) BondSetAdmin(admin [20]byte) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.admin = admin
	m.hasAdmin = true
	return nil
}

func (m *mockState) BondNextID() (uint64, error) { return m.next, nil }

func (m *mockState) BondGet(id uint64) (*Bond, bool, error) {
	b, ok := m.bonds[id]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockState) BondPut(b *Bond) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.bonds[b.ID] = b.Clone()
	return nil
}

func (m *mockState) BondInsert(b *Bond, next uint64) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.bonds[b.ID] = b.Clone()
	m.next = next
	return nil
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

var (
	adminAddr    = addr(0x01)
	ngoAddr      = addr(0x02)
	verifierAddr = addr(0x03)
	funderAddr   = addr(0x04)
	otherAddr    = addr(0x06)
	sentinel     [20]byte
)

func newTestRegistry(t *testing.T) (*Registry, *mockState, *events.Recorder) {
	t.Helper()
	state := newMockState()
	rec := &events.Recorder{}
	reg := NewRegistry()
	reg.SetState(state)
	reg.SetEmitter(rec)
	if err := reg.Bootstrap(adminAddr); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return reg, state, rec
}

func mustCreate(t *testing.T, reg *Registry, title string, goal int64) uint64 {
	t.Helper()
	id, err := reg.CreateBond(ngoAddr, title, big.NewInt(goal), verifierAddr)
	if err != nil {
		t.Fatalf("create bond %q: %v", title, err)
	}
	return id
}

func mustGet(t *testing.T, reg *Registry, id uint64) *Bond {
	t.Helper()
	b, err := reg.GetBond(id)
	if err != nil {
		t.Fatalf("get bond %d: %v", id, err)
	}
	return b
}

func expectCode(t *testing.T, err error, want Code) {
	t.Helper()
	got, ok := CodeOf(err)
	if !ok {
		t.Fatalf("expected registry error %d, got %v", want, err)
	}
	if got != want {
		t.Fatalf("expected code %d (%s), got %d (%s)", want, want, got, got)
	}
}

func TestTransferAdminByAdmin(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	newAdmin := addr(0x10)

	if err := reg.TransferAdmin(adminAddr, newAdmin); err != nil {
		t.Fatalf("transfer admin: %v", err)
	}
	current, err := reg.Admin()
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if current != newAdmin {
		t.Fatalf("expected admin %x, got %x", newAdmin, current)
	}
	if ok, _ := reg.IsAdmin(adminAddr); ok {
		t.Fatalf("previous admin should no longer be admin")
	}
	if types := rec.Types(); len(types) != 1 || types[0] != EventTypeAdminTransferred {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestTransferAdminToSelfSucceeds(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if err := reg.TransferAdmin(adminAddr, adminAddr); err != nil {
		t.Fatalf("transfer to self: %v", err)
	}
	if ok, _ := reg.IsAdmin(adminAddr); !ok {
		t.Fatalf("admin should be unchanged")
	}
}

func TestTransferAdminRejections(t *testing.T) {
	reg, _, rec := newTestRegistry(t)

	expectCode(t, reg.TransferAdmin(otherAddr, addr(0x10)), CodeUnauthorized)
	expectCode(t, reg.TransferAdmin(adminAddr, sentinel), CodeInvalidPrincipal)
	// Authorisation is checked before the target.
	expectCode(t, reg.TransferAdmin(otherAddr, sentinel), CodeUnauthorized)

	if current, _ := reg.Admin(); current != adminAddr {
		t.Fatalf("admin changed after rejected transfers: %x", current)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("rejected transfers must not emit events")
	}
}

func TestCreateBondAssignsSequentialIDs(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	titles := []string{"Tree Planting", "Clean Water", "Solar School"}
	for i, title := range titles {
		id := mustCreate(t, reg, title, 1000)
		if id != uint64(i) {
			t.Fatalf("expected id %d, got %d", i, id)
		}
		b := mustGet(t, reg, id)
		if b.Title != title || b.Goal.Cmp(big.NewInt(1000)) != 0 {
			t.Fatalf("unexpected bond: %+v", b)
		}
		if b.NGO != ngoAddr || b.Verifier != verifierAddr {
			t.Fatalf("unexpected principals: %+v", b)
		}
		if b.Funded.Sign() != 0 || b.IsFunded || b.Verified || !b.Active {
			t.Fatalf("unexpected initial status: %+v", b)
		}
	}
	count, err := reg.BondCount()
	if err != nil || count != 3 {
		t.Fatalf("expected count 3, got %d (%v)", count, err)
	}
	if len(rec.Types()) != 3 {
		t.Fatalf("expected three creation events, got %v", rec.Types())
	}
}

func TestCreateBondRejectsSentinelVerifier(t *testing.T) {
	reg, state, _ := newTestRegistry(t)
	_, err := reg.CreateBond(ngoAddr, "Irrigation", big.NewInt(500), sentinel)
	expectCode(t, err, CodeInvalidPrincipal)
	if state.next != 0 || len(state.bonds) != 0 {
		t.Fatalf("rejected create must not mutate state")
	}
}

func TestCreateBondAmountValidation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.CreateBond(ngoAddr, "nil goal", nil, verifierAddr)
	expectCode(t, err, CodeInvalidAmount)
	_, err = reg.CreateBond(ngoAddr, "negative goal", big.NewInt(-1), verifierAddr)
	expectCode(t, err, CodeInvalidAmount)

	id, err := reg.CreateBond(ngoAddr, "zero goal", big.NewInt(0), verifierAddr)
	if err != nil {
		t.Fatalf("zero goal should be accepted: %v", err)
	}
	if id != 0 {
		t.Fatalf("rejected creates must not consume ids, got %d", id)
	}
}

func TestCreateBondCopiesGoal(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	goal := big.NewInt(1000)
	id, err := reg.CreateBond(ngoAddr, "Clean Water", goal, verifierAddr)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	goal.SetInt64(1)
	if b := mustGet(t, reg, id); b.Goal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("goal aliased caller value: %s", b.Goal)
	}
}

func TestFundBondReachesGoal(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	id := mustCreate(t, reg, "Clean Water", 1000)
	rec.Reset()

	if err := reg.FundBond(funderAddr, id, big.NewInt(500)); err != nil {
		t.Fatalf("fund 500: %v", err)
	}
	mid := mustGet(t, reg, id)
	if mid.IsFunded || mid.Funded.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected bond after 500: %+v", mid)
	}

	if err := reg.FundBond(funderAddr, id, big.NewInt(600)); err != nil {
		t.Fatalf("fund 600: %v", err)
	}
	final := mustGet(t, reg, id)
	if !final.IsFunded || final.Funded.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("unexpected bond after 1100: %+v", final)
	}
	if !final.Active || final.Verified {
		t.Fatalf("funding must not change active/verified: %+v", final)
	}

	if err := reg.FundBond(funderAddr, id, big.NewInt(1)); err != nil {
		t.Fatalf("fund past goal: %v", err)
	}
	want := []string{EventTypeBondFunded, EventTypeBondFunded, EventTypeBondGoalReached, EventTypeBondFunded}
	got := rec.Types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestFundBondZeroGoalLatchesOnFirstFunding(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	id := mustCreate(t, reg, "Seed", 0)
	if b := mustGet(t, reg, id); b.IsFunded {
		t.Fatalf("isFunded must only change on funding")
	}
	if err := reg.FundBond(funderAddr, id, big.NewInt(0)); err != nil {
		t.Fatalf("zero funding: %v", err)
	}
	if b := mustGet(t, reg, id); !b.IsFunded {
		t.Fatalf("zero goal should be met after funding")
	}
}

func TestFundBondRejections(t *testing.T) {
	reg, state, _ := newTestRegistry(t)
	id := mustCreate(t, reg, "Clean Water", 1000)

	expectCode(t, reg.FundBond(funderAddr, 42, big.NewInt(10)), CodeNotFound)
	expectCode(t, reg.FundBond(funderAddr, id, big.NewInt(-10)), CodeInvalidAmount)
	expectCode(t, reg.FundBond(funderAddr, id, nil), CodeInvalidAmount)

	if state.bonds[id].Funded.Sign() != 0 {
		t.Fatalf("rejected funding must not mutate state")
	}
}

func TestVerifyBondByVerifierClosesBond(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	id := mustCreate(t, reg, "Solar School", 2000)

	if err := reg.VerifyBond(verifierAddr, id); err != nil {
		t.Fatalf("verify: %v", err)
	}
	b := mustGet(t, reg, id)
	if !b.Verified || b.Active {
		t.Fatalf("expected verified inactive bond, got %+v", b)
	}
	expectCode(t, reg.FundBond(funderAddr, id, big.NewInt(10)), CodeNotFound)

	if err := reg.VerifyBond(verifierAddr, id); err != nil {
		t.Fatalf("repeat verify should succeed: %v", err)
	}
	again := mustGet(t, reg, id)
	if !again.Verified || again.Active {
		t.Fatalf("repeat verify changed state: %+v", again)
	}
	verified := 0
	for _, typ := range rec.Types() {
		if typ == EventTypeBondVerified {
			verified++
		}
	}
	if verified != 2 {
		t.Fatalf("expected two verification events, got %d", verified)
	}
}

func TestVerifyBondRejections(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	id := mustCreate(t, reg, "Irrigation", 500)

	expectCode(t, reg.VerifyBond(otherAddr, id), CodeUnauthorized)
	expectCode(t, reg.VerifyBond(ngoAddr, id), CodeUnauthorized)
	expectCode(t, reg.VerifyBond(adminAddr, id), CodeUnauthorized)
	expectCode(t, reg.VerifyBond(verifierAddr, 99), CodeNotFound)

	b := mustGet(t, reg, id)
	if b.Verified || !b.Active {
		t.Fatalf("rejected verification changed state: %+v", b)
	}
}

func TestVerifyUnfundedBond(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	id := mustCreate(t, reg, "Wells", 10_000)
	if err := reg.VerifyBond(verifierAddr, id); err != nil {
		t.Fatalf("unfunded bonds may be verified: %v", err)
	}
	if b := mustGet(t, reg, id); b.IsFunded {
		t.Fatalf("verification must not mark bond funded")
	}
}

func TestGetBondMissing(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.GetBond(0)
	expectCode(t, err, CodeNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is to match ErrNotFound")
	}
}

func TestGetBondReturnsCopy(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	id := mustCreate(t, reg, "Clean Water", 1000)
	b := mustGet(t, reg, id)
	b.Funded.SetInt64(999)
	b.Active = false
	again := mustGet(t, reg, id)
	if again.Funded.Sign() != 0 || !again.Active {
		t.Fatalf("mutating a returned bond leaked into the registry: %+v", again)
	}
}

func TestListBondsPages(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	for i := 0; i < 5; i++ {
		mustCreate(t, reg, "bond", int64(i))
	}
	page, err := reg.ListBonds(1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != 1 || page[1].ID != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	tail, err := reg.ListBonds(3, 0)
	if err != nil || len(tail) != 2 {
		t.Fatalf("expected two bonds in tail, got %d (%v)", len(tail), err)
	}
	empty, err := reg.ListBonds(10, 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page past the end, got %d (%v)", len(empty), err)
	}
}

func TestBootstrapKeepsPersistedAdmin(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if err := reg.Bootstrap(addr(0x20)); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if current, _ := reg.Admin(); current != adminAddr {
		t.Fatalf("bootstrap overwrote persisted admin")
	}
	fresh := NewRegistry()
	fresh.SetState(newMockState())
	expectCode(t, fresh.Bootstrap(sentinel), CodeInvalidPrincipal)
}

func TestRegistryWithoutState(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.CreateBond(ngoAddr, "x", big.NewInt(1), verifierAddr); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	if _, err := reg.GetBond(0); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	if _, ok := CodeOf(errNilState); ok {
		t.Fatalf("infrastructure errors must not carry a registry code")
	}
}

func TestRegistryWithoutAdmin(t *testing.T) {
	reg := NewRegistry()
	reg.SetState(newMockState())
	if err := reg.TransferAdmin(adminAddr, otherAddr); !errors.Is(err, errAdminNotSet) {
		t.Fatalf("expected errAdminNotSet, got %v", err)
	}
}

func TestStorageFailureLeavesStateUntouched(t *testing.T) {
	reg, state, rec := newTestRegistry(t)
	id := mustCreate(t, reg, "Clean Water", 1000)
	rec.Reset()

	boom := errors.New("disk full")
	state.failPut = boom

	if err := reg.FundBond(funderAddr, id, big.NewInt(10)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	if _, err := reg.CreateBond(ngoAddr, "x", big.NewInt(1), verifierAddr); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	state.failPut = nil

	b := mustGet(t, reg, id)
	if b.Funded.Sign() != 0 {
		t.Fatalf("failed write leaked funding: %s", b.Funded)
	}
	if count, _ := reg.BondCount(); count != 1 {
		t.Fatalf("failed insert advanced the counter to %d", count)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("failed transitions must not emit events")
	}
}

func TestErrorCodesAreStable(t *testing.T) {
	cases := map[*Error]uint32{
		ErrUnauthorized:     100,
		ErrNotFound:         101,
		ErrInvalidPrincipal: 102,
		ErrInvalidAmount:    103,
	}
	for err, want := range cases {
		if uint32(err.Code) != want {
			t.Fatalf("%s: expected code %d, got %d", err, want, err.Code)
		}
	}
	if CodeNotFound.String() != "NotFound" || Code(7).String() != "Code(7)" {
		t.Fatalf("unexpected code names")
	}
}

func TestBondClosed(t *testing.T) {
	var missing *Bond
	if missing.Closed() {
		t.Fatalf("nil bond must not report closed")
	}
	b := &Bond{Active: true}
	if b.Closed() {
		t.Fatalf("active bond reported closed")
	}
	b.Active = false
	if !b.Closed() {
		t.Fatalf("inactive bond must report closed")
	}
}
