package bond

import (
	"fmt"
	"math/big"

	"impactbond/core/events"
	"impactbond/crypto"
)

// DefaultPageSize bounds ListBonds when the caller passes a zero limit.
const DefaultPageSize = 100

type engineState interface {
	BondAdmin() ([20]byte, bool, error)
	BondSetAdmin(admin [20]byte) error
	BondNextID() (uint64, error)
	BondGet(id uint64) (*Bond, bool, error)
	BondPut(b *Bond) error
	// BondInsert stores a new bond and advances the identifier counter to
	// next in a single atomic write.
	BondInsert(b *Bond, next uint64) error
}

// Registry applies the impact bond transition rules. It is not safe for
// concurrent use; callers serialise transitions.
type Registry struct {
	state   engineState
	emitter events.Emitter
}

// NewRegistry constructs a registry with a no-op emitter. A state backend must
// be configured with SetState before use.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state engineState) { r.state = state }

// SetEmitter configures the event emitter used by the registry.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt events.Event) {
	if r == nil || evt == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

func (r *Registry) ready() error {
	if r == nil || r.state == nil {
		return errNilState
	}
	return nil
}

func validAmount(v *big.Int) bool {
	return v != nil && v.Sign() >= 0
}

// Bootstrap installs the initial administrator when the state has none. An
// already persisted administrator is left untouched.
func (r *Registry) Bootstrap(admin [20]byte) error {
	if err := r.ready(); err != nil {
		return err
	}
	if crypto.IsSentinel(admin) {
		return ErrInvalidPrincipal
	}
	if _, ok, err := r.state.BondAdmin(); err != nil {
		return fmt.Errorf("load admin: %w", err)
	} else if ok {
		return nil
	}
	if err := r.state.BondSetAdmin(admin); err != nil {
		return fmt.Errorf("store admin: %w", err)
	}
	return nil
}

// Admin returns the current administrator.
func (r *Registry) Admin() ([20]byte, error) {
	if err := r.ready(); err != nil {
		return [20]byte{}, err
	}
	admin, ok, err := r.state.BondAdmin()
	if err != nil {
		return [20]byte{}, fmt.Errorf("load admin: %w", err)
	}
	if !ok {
		return [20]byte{}, errAdminNotSet
	}
	return admin, nil
}

// IsAdmin reports whether caller currently holds the admin role.
func (r *Registry) IsAdmin(caller [20]byte) (bool, error) {
	admin, err := r.Admin()
	if err != nil {
		return false, err
	}
	return admin == caller, nil
}

// TransferAdmin hands the admin role to newAdmin. Only the current admin may
// call it and the sentinel address is never a valid target.
func (r *Registry) TransferAdmin(caller, newAdmin [20]byte) error {
	admin, err := r.Admin()
	if err != nil {
		return err
	}
	if caller != admin {
		return ErrUnauthorized
	}
	if crypto.IsSentinel(newAdmin) {
		return ErrInvalidPrincipal
	}
	if err := r.state.BondSetAdmin(newAdmin); err != nil {
		return fmt.Errorf("store admin: %w", err)
	}
	r.emit(AdminTransferredEvent(admin, newAdmin))
	return nil
}

// CreateBond opens a new bond owned by caller and returns its identifier.
func (r *Registry) CreateBond(caller [20]byte, title string, goal *big.Int, verifier [20]byte) (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if crypto.IsSentinel(verifier) {
		return 0, ErrInvalidPrincipal
	}
	if !validAmount(goal) {
		return 0, ErrInvalidAmount
	}
	id, err := r.state.BondNextID()
	if err != nil {
		return 0, fmt.Errorf("load next bond id: %w", err)
	}
	b := &Bond{
		ID:       id,
		NGO:      caller,
		Verifier: verifier,
		Title:    title,
		Goal:     new(big.Int).Set(goal),
		Funded:   big.NewInt(0),
		Active:   true,
	}
	if err := r.state.BondInsert(b, id+1); err != nil {
		return 0, fmt.Errorf("store bond %d: %w", id, err)
	}
	r.emit(BondCreatedEvent(b))
	return id, nil
}

// FundBond adds amount to an active bond. Any principal may fund. Missing and
// closed bonds are both reported as ErrNotFound.
func (r *Registry) FundBond(caller [20]byte, id uint64, amount *big.Int) error {
	if err := r.ready(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	b, ok, err := r.state.BondGet(id)
	if err != nil {
		return fmt.Errorf("load bond %d: %w", id, err)
	}
	if !ok || b == nil || b.Closed() {
		return ErrNotFound
	}
	b = b.Clone()
	b.Funded = new(big.Int).Add(newBigInt(b.Funded), amount)
	reached := false
	if !b.IsFunded && b.Funded.Cmp(newBigInt(b.Goal)) >= 0 {
		b.IsFunded = true
		reached = true
	}
	if err := r.state.BondPut(b); err != nil {
		return fmt.Errorf("store bond %d: %w", id, err)
	}
	r.emit(BondFundedEvent(id, caller, amount, b.Funded))
	if reached {
		r.emit(BondGoalReachedEvent(b))
	}
	return nil
}

// VerifyBond certifies and closes a bond. Only the bond's verifier may call
// it; funding status and prior verification are not checked, so repeat calls
// succeed without changing state.
func (r *Registry) VerifyBond(caller [20]byte, id uint64) error {
	if err := r.ready(); err != nil {
		return err
	}
	b, ok, err := r.state.BondGet(id)
	if err != nil {
		return fmt.Errorf("load bond %d: %w", id, err)
	}
	if !ok || b == nil {
		return ErrNotFound
	}
	if caller != b.Verifier {
		return ErrUnauthorized
	}
	b = b.Clone()
	if !b.Verified || b.Active {
		b.Verified = true
		b.Active = false
		if err := r.state.BondPut(b); err != nil {
			return fmt.Errorf("store bond %d: %w", id, err)
		}
	}
	r.emit(BondVerifiedEvent(b))
	return nil
}

// GetBond returns a copy of the bond with the given identifier.
func (r *Registry) GetBond(id uint64) (*Bond, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	b, ok, err := r.state.BondGet(id)
	if err != nil {
		return nil, fmt.Errorf("load bond %d: %w", id, err)
	}
	if !ok || b == nil {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// BondCount returns the identifier the next created bond will receive, which
// is also the number of bonds ever created.
func (r *Registry) BondCount() (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	next, err := r.state.BondNextID()
	if err != nil {
		return 0, fmt.Errorf("load next bond id: %w", err)
	}
	return next, nil
}

// ListBonds returns bonds with identifiers in [offset, offset+limit) in
// ascending order. A zero limit selects DefaultPageSize.
func (r *Registry) ListBonds(offset, limit uint64) ([]*Bond, error) {
	count, err := r.BondCount()
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if offset >= count {
		return []*Bond{}, nil
	}
	end := count
	if limit < count-offset {
		end = offset + limit
	}
	out := make([]*Bond, 0, end-offset)
	for id := offset; id < end; id++ {
		b, ok, err := r.state.BondGet(id)
		if err != nil {
			return nil, fmt.Errorf("load bond %d: %w", id, err)
		}
		if !ok || b == nil {
			return nil, fmt.Errorf("bond registry: bond %d missing below counter %d", id, count)
		}
		out = append(out, b.Clone())
	}
	return out, nil
}
