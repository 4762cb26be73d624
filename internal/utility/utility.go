// Package utility scores an agent's chips against its goal on a board.
//
// Moving onto a tile consumes one chip of the tile's color; the start tile is
// free. An agent ends on the reachable cell that maximizes
//
//	GoalBonus·[cell == goal] − StepPenalty·distance(cell, goal) + ChipBonus·unusedChips
//
// Leftover chips add to the score, so holding an extra chip never lowers it:
// every route available before is still available, with one more chip unused.
package utility

import (
	"math"
	"sync"

	"github.com/talgya/mindtrade/internal/board"
)

// Scoring constants.
const (
	GoalBonus   = 100.0 // Awarded when the goal cell itself is reached
	StepPenalty = 10.0  // Per remaining step between the final cell and the goal
	ChipBonus   = 5.0   // Per chip left unspent
)

// Evaluation is the detailed result of scoring one holding.
type Evaluation struct {
	Points  float64    `json:"points"`
	End     board.Cell `json:"end"`     // Cell the agent should walk to
	Reached bool       `json:"reached"` // End == goal
	Unused  int        `json:"unused"`  // Chips left after walking to End
}

type reachKey struct {
	start board.Cell
	chips board.Chips
}

// Scorer evaluates holdings on one board. Reachability is memoized per
// (start, chips) so repeated scoring during offer search stays cheap.
// Safe for concurrent use.
type Scorer struct {
	board *board.Board

	mu    sync.Mutex
	reach map[reachKey][]int
}

// NewScorer creates a scorer for a board.
func NewScorer(b *board.Board) *Scorer {
	return &Scorer{
		board: b,
		reach: make(map[reachKey][]int),
	}
}

// Board returns the board this scorer evaluates on.
func (s *Scorer) Board() *board.Board {
	return s.board
}

// Utility returns the payoff of holding chips at position with the given goal.
func (s *Scorer) Utility(position, goal board.Cell, chips board.Chips) float64 {
	return s.Evaluate(position, goal, chips).Points
}

// Evaluate scores a holding and reports the best end cell.
func (s *Scorer) Evaluate(position, goal board.Cell, chips board.Chips) Evaluation {
	remaining := s.reachable(position, chips)

	best := Evaluation{Points: math.Inf(-1)}
	for idx, unused := range remaining {
		if unused < 0 {
			continue
		}
		cell := s.board.CellAt(idx)
		points := -StepPenalty*float64(board.Distance(cell, goal)) + ChipBonus*float64(unused)
		if cell == goal {
			points += GoalBonus
		}
		if points > best.Points {
			best = Evaluation{Points: points, End: cell, Reached: cell == goal, Unused: unused}
		}
	}
	return best
}

// reachable returns, per board index, the most chips an agent can still hold
// after walking there from start, or -1 if the cell cannot be reached.
func (s *Scorer) reachable(start board.Cell, chips board.Chips) []int {
	key := reachKey{start: start, chips: chips}

	s.mu.Lock()
	cached, ok := s.reach[key]
	s.mu.Unlock()
	if ok {
		return cached
	}

	best := make([]int, s.board.CellCount())
	for i := range best {
		best[i] = -1
	}

	type state struct {
		cell  board.Cell
		chips board.Chips
	}
	seen := map[state]struct{}{{cell: start, chips: chips}: {}}
	stack := []state{{cell: start, chips: chips}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx := s.board.Index(cur.cell)
		if left := cur.chips.Total(); left > best[idx] {
			best[idx] = left
		}

		for _, next := range cur.cell.Neighbors() {
			if !s.board.InBounds(next) {
				continue
			}
			color := s.board.ColorAt(next)
			if cur.chips[color] == 0 {
				continue
			}
			nextChips := cur.chips
			nextChips[color]--
			st := state{cell: next, chips: nextChips}
			if _, dup := seen[st]; dup {
				continue
			}
			seen[st] = struct{}{}
			stack = append(stack, st)
		}
	}

	s.mu.Lock()
	s.reach[key] = best
	s.mu.Unlock()
	return best
}
