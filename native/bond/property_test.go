package bond

import (
	"math/big"
	"testing"

	"pgregory.net/rapid"
)

// TestBondInvariantsUnderRandomTransitions drives random transition sequences
// and checks the ledger invariants after every step.
func TestBondInvariantsUnderRandomTransitions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		state := newMockState()
		reg := NewRegistry()
		reg.SetState(state)
		if err := reg.Bootstrap(adminAddr); err != nil {
			rt.Fatalf("bootstrap: %v", err)
		}

		principals := [][20]byte{adminAddr, ngoAddr, verifierAddr, funderAddr, otherAddr, sentinel}
		drawPrincipal := func(label string) [20]byte {
			return principals[rapid.IntRange(0, len(principals)-1).Draw(rt, label)]
		}

		type shadow struct {
			goal      *big.Int
			funded    *big.Int
			verifier  [20]byte
			wasFunded bool
			closed    bool
		}
		var shadows []*shadow
		admin := adminAddr

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				verifier := drawPrincipal("verifier")
				goal := big.NewInt(rapid.Int64Range(0, 5_000).Draw(rt, "goal"))
				id, err := reg.CreateBond(drawPrincipal("ngo"), "bond", goal, verifier)
				if verifier == sentinel {
					if code, _ := CodeOf(err); code != CodeInvalidPrincipal {
						rt.Fatalf("sentinel verifier: expected 102, got %v", err)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("create: %v", err)
				}
				if id != uint64(len(shadows)) {
					rt.Fatalf("expected sequential id %d, got %d", len(shadows), id)
				}
				shadows = append(shadows, &shadow{goal: goal, funded: big.NewInt(0), verifier: verifier})
			case 1:
				if len(shadows) == 0 {
					continue
				}
				id := rapid.IntRange(0, len(shadows)).Draw(rt, "fundID")
				amount := big.NewInt(rapid.Int64Range(0, 2_000).Draw(rt, "amount"))
				err := reg.FundBond(drawPrincipal("funder"), uint64(id), amount)
				if id == len(shadows) || shadows[id].closed {
					if code, _ := CodeOf(err); code != CodeNotFound {
						rt.Fatalf("fund missing/closed: expected 101, got %v", err)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("fund: %v", err)
				}
				s := shadows[id]
				s.funded.Add(s.funded, amount)
				if s.funded.Cmp(s.goal) >= 0 {
					s.wasFunded = true
				}
			case 2:
				if len(shadows) == 0 {
					continue
				}
				id := rapid.IntRange(0, len(shadows)-1).Draw(rt, "verifyID")
				caller := drawPrincipal("caller")
				err := reg.VerifyBond(caller, uint64(id))
				if caller != shadows[id].verifier {
					if code, _ := CodeOf(err); code != CodeUnauthorized {
						rt.Fatalf("verify by stranger: expected 100, got %v", err)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("verify: %v", err)
				}
				shadows[id].closed = true
			case 3:
				caller := drawPrincipal("caller")
				next := drawPrincipal("newAdmin")
				err := reg.TransferAdmin(caller, next)
				switch {
				case caller != admin:
					if code, _ := CodeOf(err); code != CodeUnauthorized {
						rt.Fatalf("transfer by non-admin: expected 100, got %v", err)
					}
				case next == sentinel:
					if code, _ := CodeOf(err); code != CodeInvalidPrincipal {
						rt.Fatalf("transfer to sentinel: expected 102, got %v", err)
					}
				default:
					if err != nil {
						rt.Fatalf("transfer: %v", err)
					}
					admin = next
				}
			}

			current, err := reg.Admin()
			if err != nil || current != admin || current == sentinel {
				rt.Fatalf("admin invariant broken: %x (%v)", current, err)
			}
			for id, s := range shadows {
				b, err := reg.GetBond(uint64(id))
				if err != nil {
					rt.Fatalf("get %d: %v", id, err)
				}
				if b.ID != uint64(id) {
					rt.Fatalf("bond id drifted: %d != %d", b.ID, id)
				}
				if b.Funded.Cmp(s.funded) != 0 {
					rt.Fatalf("bond %d funded %s, expected %s", id, b.Funded, s.funded)
				}
				if b.IsFunded != s.wasFunded {
					rt.Fatalf("bond %d isFunded=%v, expected %v", id, b.IsFunded, s.wasFunded)
				}
				if b.IsFunded && b.Funded.Cmp(b.Goal) < 0 {
					rt.Fatalf("bond %d isFunded below goal", id)
				}
				if b.Verified != s.closed || b.Active == s.closed {
					rt.Fatalf("bond %d lifecycle mismatch: %+v", id, b)
				}
			}
		}
	})
}
