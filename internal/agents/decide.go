package agents

import (
	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/trade"
)

// Proposal is an offer together with whatever the proposer communicates.
type Proposal struct {
	Offer      trade.Offer `json:"offer"`
	Announced  *board.Cell `json:"announced,omitempty"` // Claimed own goal, deceivers only
	Acceptance float64     `json:"acceptance"`          // Predicted by the proposer (order ≥ 1)
	Expected   float64     `json:"expected"`            // Proposer's expected utility
}

// Response is the evaluation of a received offer.
type Response struct {
	Accept       bool    `json:"accept"`
	Utility      float64 `json:"utility"`       // Own utility if accepted
	Baseline     float64 `json:"baseline"`      // Own utility without trade
	CounterValue float64 `json:"counter_value"` // Expected utility of countering (order ≥ 1)
}

// Propose selects the next offer for the counterpart described by opp. It
// returns false when the agent sees no offer worth making.
func (a *Agent) Propose(opp Public) (Proposal, bool) {
	f := a.newFrame(opp)
	p := f.predict(a.Beliefs.level(2))
	idx, ok := f.choose(p)
	if !ok {
		return Proposal{}, false
	}

	prop := Proposal{Offer: f.offers[idx], Expected: f.own[idx]}
	if p != nil {
		prop.Acceptance = p[idx]
		prop.Expected = f.expected(idx, p[idx])
	}
	if a.Strategy == StrategyDeceiver {
		prop.Announced = a.chooseAnnouncement(f, idx)
	}
	return prop, true
}

// Respond decides whether to accept an offer. The agent accepts when the
// offer is at least Tolerance better than keeping its chips and, for
// order ≥ 1, no counter-offer is expected to do better. When lastChance is
// set no counter-offer is possible, so only the baseline matters.
func (a *Agent) Respond(offer trade.Offer, opp Public, lastChance bool) Response {
	resp := Response{
		Utility:  a.scorer.Utility(a.Position, a.Goal, offer.Share(a.Role)),
		Baseline: a.UtilityValue(),
	}
	resp.CounterValue = resp.Baseline
	if resp.Utility < resp.Baseline+a.Tolerance {
		return resp
	}

	if a.Order >= Order1 && !lastChance {
		f := a.newFrame(opp)
		resp.CounterValue = f.bestCounterValue(f.predict(a.Beliefs.level(2)))
		if resp.Utility < resp.CounterValue {
			return resp
		}
	}
	resp.Accept = true
	return resp
}

// ObserveOffer updates the level-1 belief after the counterpart proposed
// offer, taking any announced goal at face value.
func (a *Agent) ObserveOffer(offer trade.Offer, announced *board.Cell, opp Public) bool {
	if a.Order < Order1 {
		return false
	}
	cons := a.counterpartConsistency(offer.Share(opp.Role), 1, announced, opp)
	return a.Beliefs.Update(1, cons, a.LearningRate)
}

// ObserveResponse updates the level-1 belief after the counterpart accepted
// or rejected the agent's offer.
func (a *Agent) ObserveResponse(offer trade.Offer, accepted bool, opp Public) bool {
	if a.Order < Order1 {
		return false
	}
	cons := a.counterpartConsistency(offer.Share(opp.Role), responseSign(accepted), nil, opp)
	return a.Beliefs.Update(1, cons, a.LearningRate)
}

// RecordProposal mirrors, at level 2, the update the counterpart makes
// about the agent after seeing its offer and announcement.
func (a *Agent) RecordProposal(offer trade.Offer, announced *board.Cell) bool {
	if a.Order < Order2 {
		return false
	}
	return a.Beliefs.Update(2, a.selfConsistency(offer.Share(a.Role), 1, announced), a.LearningRate)
}

// RecordResponse mirrors, at level 2, the counterpart's update after the
// agent accepted or rejected its offer.
func (a *Agent) RecordResponse(offer trade.Offer, accepted bool) bool {
	if a.Order < Order2 {
		return false
	}
	return a.Beliefs.Update(2, a.selfConsistency(offer.Share(a.Role), responseSign(accepted), nil), a.LearningRate)
}

// counterpartConsistency scores each candidate counterpart goal by how well
// an action that leaves the counterpart holding share fits it.
func (a *Agent) counterpartConsistency(share board.Chips, sign float64, announced *board.Cell, opp Public) []float64 {
	goals := a.Beliefs.Candidates(1)
	return consistency(goals, sign, announced, func(g board.Cell) float64 {
		return a.scorer.Utility(opp.Position, g, share) - a.scorer.Utility(opp.Position, g, opp.Chips)
	})
}

// selfConsistency is counterpartConsistency from the counterpart's side:
// how well the agent's own action fits each goal it could be credited with.
func (a *Agent) selfConsistency(share board.Chips, sign float64, announced *board.Cell) []float64 {
	goals := a.Beliefs.Candidates(2)
	return consistency(goals, sign, announced, func(g board.Cell) float64 {
		return a.scorer.Utility(a.Position, g, share) - a.scorer.Utility(a.Position, g, a.Chips)
	})
}

func consistency(goals []board.Cell, sign float64, announced *board.Cell, gain func(board.Cell) float64) []float64 {
	out := make([]float64, len(goals))
	for i, g := range goals {
		out[i] = logistic(sign * gain(g) / ConsistencyScale)
		if announced != nil && g != *announced {
			out[i] *= AnnouncementDoubt
		}
	}
	return out
}

func responseSign(accepted bool) float64 {
	if accepted {
		return 1
	}
	return -1
}
