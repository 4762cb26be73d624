// Package pareto evaluates negotiation results after the fact: it enumerates
// every redistribution of the two agents' chips, scores it with their true
// goals and extracts the Pareto frontier. Agents never consult it.
package pareto

import (
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/trade"
	"github.com/talgya/mindtrade/internal/utility"
)

// MaxOutcomes bounds the enumerated outcome space.
const MaxOutcomes = trade.EnumerationCap

// ErrSpaceTooLarge is returned when the pooled chips allow more than
// MaxOutcomes redistributions.
var ErrSpaceTooLarge = errors.New("outcome space too large to enumerate")

// Party is the true state of one agent as needed for scoring.
type Party struct {
	Position board.Cell
	Goal     board.Cell
	Chips    board.Chips
}

// Analysis is the evaluated outcome space of one negotiation.
type Analysis struct {
	Baseline trade.OfferOutcome   `json:"baseline"`
	Outcomes []trade.OfferOutcome `json:"outcomes"`
	Frontier []trade.OfferOutcome `json:"frontier"`
	// MaxWelfare is the highest social welfare of any feasible outcome.
	MaxWelfare float64 `json:"max_welfare"`
}

// Analyze enumerates the outcome space for the given parties.
func Analyze(scorer *utility.Scorer, initiator, responder Party) (*Analysis, error) {
	combined := initiator.Chips.Add(responder.Chips)
	if size := trade.SpaceSize(combined); size > MaxOutcomes {
		return nil, fmt.Errorf("%d chips: %w", combined.Total(), ErrSpaceTooLarge)
	}

	score := func(o trade.Offer) trade.OfferOutcome {
		return trade.OfferOutcome{
			Offer:            o,
			InitiatorUtility: scorer.Utility(initiator.Position, initiator.Goal, o.Initiator),
			ResponderUtility: scorer.Utility(responder.Position, responder.Goal, o.Responder),
		}
	}

	offers := trade.Enumerate(combined)
	a := &Analysis{
		Baseline: score(trade.Offer{Initiator: initiator.Chips, Responder: responder.Chips}),
		Outcomes: make([]trade.OfferOutcome, len(offers)),
	}
	for i, o := range offers {
		a.Outcomes[i] = score(o)
		if w := a.Outcomes[i].SocialWelfare(); i == 0 || w > a.MaxWelfare {
			a.MaxWelfare = w
		}
	}
	a.Frontier = Frontier(a.Outcomes)
	return a, nil
}

// Frontier returns the outcomes not dominated by any other outcome, sorted by
// descending initiator utility. Outcomes with identical utility pairs are
// all kept.
func Frontier(outcomes []trade.OfferOutcome) []trade.OfferOutcome {
	sorted := append([]trade.OfferOutcome(nil), outcomes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].InitiatorUtility != sorted[j].InitiatorUtility {
			return sorted[i].InitiatorUtility > sorted[j].InitiatorUtility
		}
		return sorted[i].ResponderUtility > sorted[j].ResponderUtility
	})

	// Sweep in order of falling initiator utility: an outcome survives when
	// its responder utility beats everything seen at a strictly higher
	// initiator utility, and matches the best at equal initiator utility.
	var front []trade.OfferOutcome
	bestAbove := 0.0
	haveAbove := false
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].InitiatorUtility == sorted[i].InitiatorUtility {
			j++
		}
		groupBest := sorted[i].ResponderUtility
		if !haveAbove || groupBest > bestAbove {
			for k := i; k < j && sorted[k].ResponderUtility == groupBest; k++ {
				front = append(front, sorted[k])
			}
			bestAbove, haveAbove = groupBest, true
		}
		i = j
	}
	return front
}

// IsEfficient reports whether no feasible outcome dominates o.
func (a *Analysis) IsEfficient(o trade.OfferOutcome) bool {
	for _, other := range a.Outcomes {
		if other.Dominates(o) {
			return false
		}
	}
	return true
}

// BestWelfare returns the frontier outcomes with maximal social welfare.
func (a *Analysis) BestWelfare() []trade.OfferOutcome {
	var out []trade.OfferOutcome
	for _, o := range a.Frontier {
		if o.SocialWelfare() == a.MaxWelfare {
			out = append(out, o)
		}
	}
	return out
}
