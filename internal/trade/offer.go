// Package trade defines offers (redistributions of the two agents' pooled
// chips), their utility outcomes, and enumeration of the offer space.
package trade

import (
	"fmt"

	"github.com/talgya/mindtrade/internal/board"
)

// Role identifies one of the two negotiating parties.
type Role uint8

const (
	Initiator Role = iota // Makes the first offer of every round
	Responder
)

// Other returns the counterpart role.
func (r Role) Other() Role {
	if r == Initiator {
		return Responder
	}
	return Initiator
}

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Offer is a proposed allocation of the pooled chips: what each party would
// hold after the trade.
type Offer struct {
	Initiator board.Chips `json:"initiator"`
	Responder board.Chips `json:"responder"`
}

// Split builds the offer that leaves initiator holding share and the
// responder holding the rest of combined.
func Split(combined, share board.Chips) Offer {
	return Offer{Initiator: share, Responder: combined.Sub(share)}
}

// Share returns the chips the given role would hold.
func (o Offer) Share(r Role) board.Chips {
	if r == Initiator {
		return o.Initiator
	}
	return o.Responder
}

// Combined returns the pooled chips the offer redistributes.
func (o Offer) Combined() board.Chips {
	return o.Initiator.Add(o.Responder)
}

// ValidFor reports whether the offer redistributes exactly the holdings of
// both parties, i.e. each party owns what it is asked to give.
func (o Offer) ValidFor(initiator, responder board.Chips) bool {
	return o.Initiator.Valid() && o.Responder.Valid() && o.Combined() == initiator.Add(responder)
}

// Gives returns the chips role hands over under the offer, given its current holding.
func (o Offer) Gives(r Role, current board.Chips) board.Chips {
	var out board.Chips
	share := o.Share(r)
	for i := range out {
		if d := current[i] - share[i]; d > 0 {
			out[i] = d
		}
	}
	return out
}

func (o Offer) String() string {
	return fmt.Sprintf("initiator[%s] responder[%s]", o.Initiator, o.Responder)
}

// OfferOutcome is the pair of utilities an offer (or the no-trade baseline)
// produces.
type OfferOutcome struct {
	Offer            Offer   `json:"offer"`
	InitiatorUtility float64 `json:"initiator_utility"`
	ResponderUtility float64 `json:"responder_utility"`
}

// Utility returns the utility of one role.
func (o OfferOutcome) Utility(r Role) float64 {
	if r == Initiator {
		return o.InitiatorUtility
	}
	return o.ResponderUtility
}

// SocialWelfare is the sum of both utilities.
func (o OfferOutcome) SocialWelfare() float64 {
	return o.InitiatorUtility + o.ResponderUtility
}

// Dominates reports whether o is at least as good as p for both parties and
// strictly better for one.
func (o OfferOutcome) Dominates(p OfferOutcome) bool {
	if o.InitiatorUtility < p.InitiatorUtility || o.ResponderUtility < p.ResponderUtility {
		return false
	}
	return o.InitiatorUtility > p.InitiatorUtility || o.ResponderUtility > p.ResponderUtility
}
