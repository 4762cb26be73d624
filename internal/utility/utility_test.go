package utility

import (
	"math/rand"
	"testing"

	"github.com/talgya/mindtrade/internal/board"
)

// lineBoard is a 1×4 strip: start(red) blue green yellow.
func lineBoard(t *testing.T) *board.Board {
	t.Helper()
	b, err := board.New(4, 1, []board.Color{board.Red, board.Blue, board.Green, board.Yellow})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	return b
}

func TestUtilityReachedGoal(t *testing.T) {
	s := NewScorer(lineBoard(t))
	start := board.Cell{X: 0, Y: 0}
	goal := board.Cell{X: 2, Y: 0}

	ev := s.Evaluate(start, goal, board.ChipsOf(board.Blue, board.Green, board.Purple))
	if !ev.Reached {
		t.Fatalf("expected goal reached, got %+v", ev)
	}
	if want := GoalBonus + ChipBonus; ev.Points != want {
		t.Fatalf("points = %v, want %v", ev.Points, want)
	}
}

func TestUtilityPartialRoute(t *testing.T) {
	s := NewScorer(lineBoard(t))
	start := board.Cell{X: 0, Y: 0}
	goal := board.Cell{X: 3, Y: 0}

	// Only the blue chip: walk one step, two steps short of the goal.
	got := s.Utility(start, goal, board.ChipsOf(board.Blue))
	if want := -2 * StepPenalty; got != want {
		t.Fatalf("points = %v, want %v", got, want)
	}
	// No chips: stuck at start.
	if got := s.Utility(start, goal, board.Chips{}); got != -3*StepPenalty {
		t.Fatalf("empty holding scored %v", got)
	}
}

func TestUtilityIsMonotonic(t *testing.T) {
	b := board.Generate(board.GenConfig{Width: 5, Height: 5, Seed: 11})
	s := NewScorer(b)
	rng := rand.New(rand.NewSource(3))
	start := b.Center()

	for trial := 0; trial < 200; trial++ {
		goal := b.CellAt(rng.Intn(b.CellCount()))
		chips := board.RandomChips(rng, rng.Intn(6))
		before := s.Utility(start, goal, chips)
		for c := board.Color(0); c < board.NumColors; c++ {
			more := chips
			more[c]++
			if after := s.Utility(start, goal, more); after < before {
				t.Fatalf("adding %s to %v lowered utility %v -> %v (goal %v)", c, chips, before, after, goal)
			}
		}
	}
}

func TestUtilityIsDeterministic(t *testing.T) {
	b := board.Generate(board.GenConfig{Width: 5, Height: 5, Seed: 5})
	chips := board.ChipsOf(board.Red, board.Green, board.Blue, board.Yellow)
	goal := board.Cell{X: 0, Y: 4}

	first := NewScorer(b).Utility(b.Center(), goal, chips)
	s := NewScorer(b)
	for i := 0; i < 3; i++ {
		if got := s.Utility(b.Center(), goal, chips); got != first {
			t.Fatalf("call %d returned %v, want %v", i, got, first)
		}
	}
}
