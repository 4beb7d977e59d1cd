package bond

import (
	"math/big"
	"strconv"

	"impactbond/core/events"
	"impactbond/crypto"
)

const (
	// EventTypeAdminTransferred is emitted when the admin role changes hands.
	EventTypeAdminTransferred = "bond.admin.transferred"
	// EventTypeBondCreated is emitted when an NGO opens a new bond.
	EventTypeBondCreated = "bond.created"
	// EventTypeBondFunded is emitted for every accepted contribution.
	EventTypeBondFunded = "bond.funded"
	// EventTypeBondGoalReached is emitted once, when cumulative funding first meets the goal.
	EventTypeBondGoalReached = "bond.goal.reached"
	// EventTypeBondVerified is emitted whenever the assigned verifier certifies a bond.
	EventTypeBondVerified = "bond.verified"
)

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

// AdminTransferredEvent returns the structured payload for admin rotation.
func AdminTransferredEvent(previous, next [20]byte) *events.Payload {
	return &events.Payload{
		Type: EventTypeAdminTransferred,
		Attributes: map[string]string{
			"previous": crypto.FormatPrincipal(previous),
			"admin":    crypto.FormatPrincipal(next),
		},
	}
}

// BondCreatedEvent returns the structured payload for bond creation.
func BondCreatedEvent(b *Bond) *events.Payload {
	return &events.Payload{
		Type: EventTypeBondCreated,
		Attributes: map[string]string{
			"bondId":   idString(b.ID),
			"ngo":      crypto.FormatPrincipal(b.NGO),
			"verifier": crypto.FormatPrincipal(b.Verifier),
			"title":    b.Title,
			"goal":     b.Goal.String(),
		},
	}
}

// BondFundedEvent captures a single contribution and the running total.
func BondFundedEvent(id uint64, funder [20]byte, amount, funded *big.Int) *events.Payload {
	return &events.Payload{
		Type: EventTypeBondFunded,
		Attributes: map[string]string{
			"bondId": idString(id),
			"funder": crypto.FormatPrincipal(funder),
			"amount": amount.String(),
			"funded": funded.String(),
		},
	}
}

// BondGoalReachedEvent marks the first contribution that met the goal.
func BondGoalReachedEvent(b *Bond) *events.Payload {
	return &events.Payload{
		Type: EventTypeBondGoalReached,
		Attributes: map[string]string{
			"bondId": idString(b.ID),
			"goal":   b.Goal.String(),
			"funded": b.Funded.String(),
		},
	}
}

// BondVerifiedEvent captures certification by the assigned verifier.
func BondVerifiedEvent(b *Bond) *events.Payload {
	return &events.Payload{
		Type: EventTypeBondVerified,
		Attributes: map[string]string{
			"bondId":   idString(b.ID),
			"verifier": crypto.FormatPrincipal(b.Verifier),
			"funded":   b.Funded.String(),
			"isFunded": strconv.FormatBool(b.IsFunded),
		},
	}
}
