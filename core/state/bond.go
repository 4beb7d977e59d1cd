package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"impactbond/native/bond"
)

var (
	bondAdminKey     = []byte("bond/admin")
	bondNextKey      = []byte("bond/next")
	bondRecordPrefix = []byte("bond/record/")
)

func bondRecordKey(id uint64) []byte {
	key := make([]byte, len(bondRecordPrefix)+8)
	copy(key, bondRecordPrefix)
	binary.BigEndian.PutUint64(key[len(bondRecordPrefix):], id)
	return key
}

// storedBond is the RLP layout of a bond record. Field order is part of the
// on-disk format.
type storedBond struct {
	ID       uint64
	NGO      [20]byte
	Verifier [20]byte
	Title    string
	Goal     *big.Int
	Funded   *big.Int
	IsFunded bool
	Verified bool
	Active   bool
}

func newStoredBond(b *bond.Bond) (*storedBond, error) {
	if b == nil {
		return nil, fmt.Errorf("bond: nil record")
	}
	goal := bigOrZero(b.Goal)
	funded := bigOrZero(b.Funded)
	if goal.Sign() < 0 || funded.Sign() < 0 {
		return nil, fmt.Errorf("bond %d: negative amounts cannot be stored", b.ID)
	}
	return &storedBond{
		ID:       b.ID,
		NGO:      b.NGO,
		Verifier: b.Verifier,
		Title:    b.Title,
		Goal:     goal,
		Funded:   funded,
		IsFunded: b.IsFunded,
		Verified: b.Verified,
		Active:   b.Active,
	}, nil
}

func (s *storedBond) toBond() *bond.Bond {
	return &bond.Bond{
		ID:       s.ID,
		NGO:      s.NGO,
		Verifier: s.Verifier,
		Title:    s.Title,
		Goal:     bigOrZero(s.Goal),
		Funded:   bigOrZero(s.Funded),
		IsFunded: s.IsFunded,
		Verified: s.Verified,
		Active:   s.Active,
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// BondAdmin returns the persisted registry administrator.
func (m *Manager) BondAdmin() ([20]byte, bool, error) {
	var admin [20]byte
	ok, err := m.KVGet(bondAdminKey, &admin)
	if err != nil {
		return [20]byte{}, false, fmt.Errorf("decode bond admin: %w", err)
	}
	return admin, ok, nil
}

// BondSetAdmin persists the registry administrator.
func (m *Manager) BondSetAdmin(admin [20]byte) error {
	return m.KVPut(bondAdminKey, admin)
}

// BondNextID returns the identifier the next bond will receive. An empty
// registry starts at zero.
func (m *Manager) BondNextID() (uint64, error) {
	var next uint64
	if _, err := m.KVGet(bondNextKey, &next); err != nil {
		return 0, fmt.Errorf("decode bond counter: %w", err)
	}
	return next, nil
}

// BondGet loads a bond record. The returned value is freshly decoded and owned
// by the caller.
func (m *Manager) BondGet(id uint64) (*bond.Bond, bool, error) {
	var stored storedBond
	ok, err := m.KVGet(bondRecordKey(id), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("decode bond %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toBond(), true, nil
}

// BondPut overwrites an existing bond record.
func (m *Manager) BondPut(b *bond.Bond) error {
	stored, err := newStoredBond(b)
	if err != nil {
		return err
	}
	return m.KVPut(bondRecordKey(stored.ID), stored)
}

// BondInsert writes a new bond together with the advanced identifier counter
// in one atomic batch.
func (m *Manager) BondInsert(b *bond.Bond, next uint64) error {
	stored, err := newStoredBond(b)
	if err != nil {
		return err
	}
	if next <= stored.ID {
		return fmt.Errorf("bond %d: counter must advance past the inserted id, got %d", stored.ID, next)
	}
	return m.kvPutAll(
		kvWrite{key: bondRecordKey(stored.ID), value: stored},
		kvWrite{key: bondNextKey, value: next},
	)
}
