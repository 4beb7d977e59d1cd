package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"impactbond/storage"
)

// Manager exposes typed, RLP-encoded records on top of a key/value database.
// It is not safe for concurrent mutation; the registry above it serialises
// writes.
type Manager struct {
	db storage.Database
}

// NewManager binds a manager to the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// kvKey namespaces and hashes caller keys so that arbitrary byte strings map
// onto fixed-width database keys.
func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(append([]byte("kv:"), key...))
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// kvWrite is a single entry of an atomic multi-key update.
type kvWrite struct {
	key   []byte
	value interface{}
}

// kvPutAll encodes every entry first and then applies them in one batch, so
// either all of them land or none do.
func (m *Manager) kvPutAll(writes ...kvWrite) error {
	batch := m.db.NewBatch()
	for _, w := range writes {
		if len(w.key) == 0 {
			return fmt.Errorf("kv: key must not be empty")
		}
		encoded, err := rlp.EncodeToBytes(w.value)
		if err != nil {
			return err
		}
		batch.Put(kvKey(w.key), encoded)
	}
	return batch.Write()
}
