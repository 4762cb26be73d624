package agents

import (
	"math"

	"github.com/talgya/mindtrade/internal/board"
)

// tieTolerance decides when all consistency scores count as equal.
const tieTolerance = 1e-12

// BeliefState holds an agent's nested beliefs as a fixed-depth stack.
//
// Level 1 is a distribution over the counterpart's goal. Level 2 is the
// agent's model of the counterpart's level-1 belief about the agent's own
// goal. An order-k agent uses levels 1..k; order 0 holds none.
type BeliefState struct {
	order      Order
	candidates [MaxOrder][]board.Cell
	levels     [MaxOrder][]float64
}

// NewBeliefState creates uniform beliefs for an agent of the given order.
// oppCandidates support level 1, selfCandidates support level 2.
func NewBeliefState(order Order, oppCandidates, selfCandidates []board.Cell) BeliefState {
	b := BeliefState{order: order}
	b.candidates[0] = append([]board.Cell(nil), oppCandidates...)
	b.candidates[1] = append([]board.Cell(nil), selfCandidates...)
	b.Reset()
	return b
}

// Reset returns every active level to the uniform distribution.
func (b *BeliefState) Reset() {
	for i := range b.levels {
		b.levels[i] = nil
		if Order(i) < b.order {
			b.levels[i] = uniform(len(b.candidates[i]))
		}
	}
}

// Order returns the number of active levels.
func (b *BeliefState) Order() Order {
	return b.order
}

// Active reports whether the given level (1 or 2) is maintained.
func (b *BeliefState) Active(level Order) bool {
	return level >= 1 && level <= b.order
}

// Candidates returns the support of a level.
func (b *BeliefState) Candidates(level Order) []board.Cell {
	if level < 1 || level > MaxOrder {
		return nil
	}
	return b.candidates[level-1]
}

// Level returns a copy of the distribution at a level, or nil when inactive.
func (b *BeliefState) Level(level Order) []float64 {
	if !b.Active(level) {
		return nil
	}
	return append([]float64(nil), b.levels[level-1]...)
}

// level returns the live distribution without copying.
func (b *BeliefState) level(level Order) []float64 {
	if !b.Active(level) {
		return nil
	}
	return b.levels[level-1]
}

// Matches reports whether the candidate sets equal the given ones.
func (b *BeliefState) Matches(oppCandidates, selfCandidates []board.Cell) bool {
	return sameCells(b.candidates[0], oppCandidates) && sameCells(b.candidates[1], selfCandidates)
}

// Update blends a level towards the normalized consistency scores with the
// given learning rate. It returns false when nothing changed: an inactive
// level, a zero learning rate, or consistency scores that are all tied.
func (b *BeliefState) Update(level Order, consistency []float64, lr float64) bool {
	if !b.Active(level) {
		return false
	}
	next, ok := blend(b.levels[level-1], consistency, lr)
	if !ok {
		return false
	}
	b.levels[level-1] = next
	return true
}

// Entropy returns the Shannon entropy (nats) of a level, or 0 when inactive.
func (b *BeliefState) Entropy(level Order) float64 {
	return entropy(b.level(level))
}

// MostLikely returns the candidate with the highest probability at a level.
func (b *BeliefState) MostLikely(level Order) (board.Cell, float64, bool) {
	dist := b.level(level)
	if len(dist) == 0 {
		return board.Cell{}, 0, false
	}
	best := 0
	for i, p := range dist {
		if p > dist[best] {
			best = i
		}
	}
	return b.candidates[level-1][best], dist[best], true
}

// blend computes (1-lr)·old + lr·normalize(consistency), renormalized.
func blend(old, consistency []float64, lr float64) ([]float64, bool) {
	if lr <= 0 || len(old) == 0 || len(consistency) != len(old) {
		return nil, false
	}

	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, c := range consistency {
		if c < 0 || math.IsNaN(c) {
			return nil, false
		}
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
		sum += c
	}
	if sum <= 0 || hi-lo <= tieTolerance*math.Max(1, hi) {
		return nil, false
	}

	next := make([]float64, len(old))
	total := 0.0
	for i := range old {
		next[i] = (1-lr)*old[i] + lr*consistency[i]/sum
		total += next[i]
	}
	for i := range next {
		next[i] /= total
	}
	return next, true
}

func uniform(n int) []float64 {
	if n == 0 {
		return nil
	}
	dist := make([]float64, n)
	for i := range dist {
		dist[i] = 1 / float64(n)
	}
	return dist
}

func entropy(dist []float64) float64 {
	h := 0.0
	for _, p := range dist {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// logistic squashes a utility difference into (0, 1).
func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func sameCells(a, b []board.Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CandidateGoals lists the cells at least minDistance steps from start, in
// board-index order.
func CandidateGoals(b *board.Board, start board.Cell, minDistance int) []board.Cell {
	var out []board.Cell
	for _, c := range b.Cells() {
		if board.Distance(c, start) >= minDistance {
			out = append(out, c)
		}
	}
	return out
}
