package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 principal.
type AddressPrefix string

// BondPrefix is the prefix used for every registry principal.
const BondPrefix AddressPrefix = "ib"

// AddressLength is the byte length of a principal.
const AddressLength = 20

var (
	// ErrSentinelAddress marks the all-zero burn address.
	ErrSentinelAddress = errors.New("crypto: sentinel address")
	errPrefixMismatch  = errors.New("crypto: unexpected address prefix")
)

// Address represents a 20-byte principal with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress builds an address from raw bytes. The slice must be exactly 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes long, got %d", AddressLength, len(b))
	}
	var out Address
	out.prefix = prefix
	copy(out.bytes[:], b)
	return out, nil
}

// MustNewAddress is like NewAddress but panics on malformed input. Intended for
// constants and tests.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Raw returns the address as a fixed-size array.
func (a Address) Raw() [AddressLength]byte { return a.bytes }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsSentinel reports whether the address is the all-zero burn address.
func (a Address) IsSentinel() bool { return IsSentinel(a.bytes) }

// DecodeAddress parses a bech32 string of any prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParsePrincipal decodes a bech32 registry principal. The sentinel address is
// accepted here; callers that must reject it do so explicitly.
func ParsePrincipal(s string) ([AddressLength]byte, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return [AddressLength]byte{}, err
	}
	if addr.Prefix() != BondPrefix {
		return [AddressLength]byte{}, fmt.Errorf("%w: %q", errPrefixMismatch, addr.Prefix())
	}
	return addr.Raw(), nil
}

// FormatPrincipal renders a raw principal with the registry prefix.
func FormatPrincipal(raw [AddressLength]byte) string {
	return MustNewAddress(BondPrefix, raw[:]).String()
}

// SentinelPrincipal returns the bech32 form of the burn address.
func SentinelPrincipal() string {
	return FormatPrincipal([AddressLength]byte{})
}

// IsSentinel reports whether the raw principal is the all-zero burn address.
func IsSentinel(raw [AddressLength]byte) bool {
	var zero [AddressLength]byte
	return raw == zero
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the registry principal controlled by the public key.
func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(BondPrefix, addrBytes)
}
