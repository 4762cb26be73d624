package agents

import (
	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/trade"
)

// frame caches the utilities a single decision needs: the agent's own
// utility for every candidate offer, the counterpart's utility under every
// candidate goal, and (order 2) the agent's utility under every goal the
// counterpart might attribute to it.
type frame struct {
	agent   *Agent
	opp     Public
	current trade.Offer
	offers  []trade.Offer
	own     []float64
	base    float64

	oppU    [][]float64 // [candidate counterpart goal][offer]
	oppBase []float64

	selfU    [][]float64 // [candidate own goal][offer]
	selfBase []float64
}

func (a *Agent) newFrame(opp Public) *frame {
	f := &frame{
		agent:   a,
		opp:     opp,
		current: a.allocation(opp),
		base:    a.UtilityValue(),
	}

	ownScore := func(o trade.Offer) float64 {
		return a.scorer.Utility(a.Position, a.Goal, o.Share(a.Role))
	}
	f.offers = trade.Candidates(f.current, ownScore)
	f.own = make([]float64, len(f.offers))
	for i, o := range f.offers {
		f.own[i] = ownScore(o)
	}

	if a.Order >= Order1 {
		f.oppU, f.oppBase = f.table(opp.Position, opp.Chips, opp.Role, a.Beliefs.Candidates(1))
	}
	if a.Order >= Order2 {
		f.selfU, f.selfBase = f.table(a.Position, a.Chips, a.Role, a.Beliefs.Candidates(2))
	}
	return f
}

// table scores every offer for one party under each candidate goal.
func (f *frame) table(pos board.Cell, held board.Chips, role trade.Role, goals []board.Cell) ([][]float64, []float64) {
	scorer := f.agent.scorer
	rows := make([][]float64, len(goals))
	base := make([]float64, len(goals))
	for g, goal := range goals {
		base[g] = scorer.Utility(pos, goal, held)
		row := make([]float64, len(f.offers))
		for i, o := range f.offers {
			row[i] = scorer.Utility(pos, goal, o.Share(role))
		}
		rows[g] = row
	}
	return rows, base
}

// thresholds returns, per candidate counterpart goal, the lowest utility at
// which a counterpart of the given order is predicted to accept.
//
// An order-0 counterpart accepts anything at least as good as keeping its
// chips. An order-1 counterpart also holds out for the expected value of
// its best counter-offer, predicting our acceptance by treating us as
// order 0 with a goal distributed as level2.
func (f *frame) thresholds(model Order, level2 []float64) []float64 {
	thr := append([]float64(nil), f.oppBase...)
	if model == Order0 {
		return thr
	}

	pSelf := f.selfAcceptance(level2)
	for g := range thr {
		for o := range f.offers {
			ev := pSelf[o]*f.oppU[g][o] + (1-pSelf[o])*f.oppBase[g]
			if ev > thr[g] {
				thr[g] = ev
			}
		}
	}
	return thr
}

// selfAcceptance predicts, for every offer, the probability that we accept
// it as seen by a counterpart whose belief about our goal is level2.
func (f *frame) selfAcceptance(level2 []float64) []float64 {
	p := make([]float64, len(f.offers))
	for a, w := range level2 {
		if w == 0 {
			continue
		}
		for o := range f.offers {
			if f.selfU[a][o] >= f.selfBase[a] {
				p[o] += w
			}
		}
	}
	return p
}

// acceptance returns the level-1 weighted probability that the counterpart
// accepts each offer given per-goal thresholds.
func (f *frame) acceptance(thr []float64) []float64 {
	p := make([]float64, len(f.offers))
	for o := range f.offers {
		p[o] = f.acceptanceOf(o, thr)
	}
	return p
}

func (f *frame) acceptanceOf(o int, thr []float64) float64 {
	p := 0.0
	for g, w := range f.agent.Beliefs.level(1) {
		if f.oppU[g][o] >= thr[g] {
			p += w
		}
	}
	return p
}

// predict returns the predicted acceptance of every offer, simulating the
// counterpart one order below the agent. Order-0 agents predict nothing.
func (f *frame) predict(level2 []float64) []float64 {
	switch f.agent.Order {
	case Order1:
		return f.acceptance(f.thresholds(Order0, nil))
	case Order2:
		return f.acceptance(f.thresholds(Order1, level2))
	default:
		return nil
	}
}

func (f *frame) expected(o int, p float64) float64 {
	return p*f.own[o] + (1-p)*f.base
}

// choose picks the offer to propose, or reports false when no offer improves
// on the baseline.
//
// Without predictions the agent takes the offer with the highest own
// utility. With predictions it keeps offers predicted acceptable, and among
// those within NearOptimalMargin of the best own utility takes the most
// acceptable one. If nothing is predicted acceptable it falls back to the
// highest expected utility.
func (f *frame) choose(p []float64) (int, bool) {
	best, found := -1, false
	if p == nil {
		for o, u := range f.own {
			if u > f.base && (!found || u > f.own[best]) {
				best, found = o, true
			}
		}
		return best, found
	}

	topOwn, feasible := 0.0, false
	for o, u := range f.own {
		if u > f.base && p[o] >= AcceptanceThreshold && (!feasible || u > topOwn) {
			topOwn, feasible = u, true
		}
	}
	if feasible {
		for o, u := range f.own {
			if u <= f.base || p[o] < AcceptanceThreshold || u < topOwn-NearOptimalMargin {
				continue
			}
			if !found || p[o] > p[best] || (p[o] == p[best] && u > f.own[best]) {
				best, found = o, true
			}
		}
		return best, found
	}

	for o, u := range f.own {
		if u <= f.base || p[o] <= 0 {
			continue
		}
		if !found || f.expected(o, p[o]) > f.expected(best, p[best]) {
			best, found = o, true
		}
	}
	return best, found
}

// bestCounterValue is the highest expected utility among offers the agent
// could propose instead, never below the baseline.
func (f *frame) bestCounterValue(p []float64) float64 {
	best := f.base
	for o := range f.offers {
		if ev := f.expected(o, p[o]); ev > best {
			best = ev
		}
	}
	return best
}
