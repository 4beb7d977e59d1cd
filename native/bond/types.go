package bond

import "math/big"

// Bond is a fundraising campaign tracked by the registry.
type Bond struct {
	ID       uint64   `json:"id"`
	NGO      [20]byte `json:"ngo"`
	Verifier [20]byte `json:"verifier"`
	Title    string   `json:"title"`
	Goal     *big.Int `json:"goal"`
	Funded   *big.Int `json:"funded"`
	// IsFunded latches once Funded reaches Goal.
	IsFunded bool `json:"isFunded"`
	Verified bool `json:"verified"`
	Active   bool `json:"active"`
}

// Clone returns a deep copy of the bond.
func (b *Bond) Clone() *Bond {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Goal = newBigInt(b.Goal)
	clone.Funded = newBigInt(b.Funded)
	return &clone
}

// Closed reports whether the bond has left the fundable state.
func (b *Bond) Closed() bool {
	return b != nil && !b.Active
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
