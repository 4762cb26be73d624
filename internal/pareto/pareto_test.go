package pareto

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/trade"
	"github.com/talgya/mindtrade/internal/utility"
)

func TestFrontierHandPicked(t *testing.T) {
	outcomes := []trade.OfferOutcome{
		{InitiatorUtility: 10, ResponderUtility: 0},
		{InitiatorUtility: 5, ResponderUtility: 5},
		{InitiatorUtility: 4, ResponderUtility: 4}, // dominated by (5,5)
		{InitiatorUtility: 10, ResponderUtility: -1}, // dominated by (10,0)
		{InitiatorUtility: 0, ResponderUtility: 10},
		{InitiatorUtility: 5, ResponderUtility: 5},
	}
	front := Frontier(outcomes)
	if len(front) != 4 {
		t.Fatalf("frontier has %d outcomes: %+v", len(front), front)
	}
	for _, o := range front {
		if o.InitiatorUtility == 4 || o.ResponderUtility == -1 {
			t.Fatalf("dominated outcome on frontier: %+v", o)
		}
	}
}

func TestFrontierHasNoDominatedPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for trial := 0; trial < 30; trial++ {
		b := board.Generate(board.GenConfig{Width: 5, Height: 5, Seed: int64(trial + 1)})
		s := utility.NewScorer(b)
		ini := Party{Position: b.Center(), Goal: b.CellAt(rng.Intn(25)), Chips: board.RandomChips(rng, 4)}
		res := Party{Position: b.Center(), Goal: b.CellAt(rng.Intn(25)), Chips: board.RandomChips(rng, 4)}

		a, err := Analyze(s, ini, res)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if len(a.Frontier) == 0 {
			t.Fatal("empty frontier")
		}
		for i, x := range a.Frontier {
			for j, y := range a.Frontier {
				if i != j && x.Dominates(y) {
					t.Fatalf("frontier outcome %+v dominates %+v", x, y)
				}
			}
			if !a.IsEfficient(x) {
				t.Fatalf("frontier outcome %+v is dominated", x)
			}
		}
		for _, o := range a.Outcomes {
			onFront := false
			for _, f := range a.Frontier {
				if f.Offer == o.Offer {
					onFront = true
				}
			}
			if !onFront && a.IsEfficient(o) {
				t.Fatalf("efficient outcome %+v missing from frontier", o)
			}
		}
		if len(a.BestWelfare()) == 0 {
			t.Fatal("max welfare outcome should lie on the frontier")
		}
	}
}

func TestAnalyzeRejectsHugeSpace(t *testing.T) {
	b := board.Generate(board.DefaultGenConfig())
	var many board.Chips
	for i := range many {
		many[i] = 6
	}
	p := Party{Position: b.Center(), Chips: many}
	if _, err := Analyze(utility.NewScorer(b), p, p); !errors.Is(err, ErrSpaceTooLarge) {
		t.Fatalf("expected ErrSpaceTooLarge, got %v", err)
	}
}
