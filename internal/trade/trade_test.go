package trade

import (
	"testing"

	"github.com/talgya/mindtrade/internal/board"
)

func TestEnumerateCoversSpace(t *testing.T) {
	combined := board.ChipsOf(board.Red, board.Red, board.Blue, board.Purple)
	offers := Enumerate(combined)
	if len(offers) != SpaceSize(combined) || len(offers) != 12 {
		t.Fatalf("got %d offers, space size %d", len(offers), SpaceSize(combined))
	}
	seen := make(map[Offer]bool)
	for _, o := range offers {
		if !o.Initiator.Valid() || !o.Responder.Valid() || o.Combined() != combined {
			t.Fatalf("invalid offer %v", o)
		}
		if seen[o] {
			t.Fatalf("duplicate offer %v", o)
		}
		seen[o] = true
	}
	if !offers[0].Initiator.IsEmpty() {
		t.Fatalf("first offer should give everything to the responder: %v", offers[0])
	}
}

func TestSpaceSizeSaturates(t *testing.T) {
	var big board.Chips
	for i := range big {
		big[i] = 8
	}
	if got := SpaceSize(big); got != EnumerationCap+1 {
		t.Fatalf("space size %d, want saturation", got)
	}
}

func TestCandidatesLocalSearchClimbs(t *testing.T) {
	var big board.Chips
	for i := range big {
		big[i] = 6
	}
	current := Offer{Initiator: big, Responder: big}
	// Score prefers the initiator holding red chips.
	score := func(o Offer) float64 { return float64(o.Initiator[board.Red]) }

	cands := Candidates(current, score)
	best := 0
	for _, c := range cands {
		if c.Combined() != current.Combined() {
			t.Fatalf("candidate %v changes the chip pool", c)
		}
		if c.Initiator[board.Red] > best {
			best = c.Initiator[board.Red]
		}
	}
	if best != 12 {
		t.Fatalf("hill climb stopped at %d red chips", best)
	}
}

func TestOfferValidityAndDominance(t *testing.T) {
	ini := board.ChipsOf(board.Red)
	res := board.ChipsOf(board.Blue)
	swap := Offer{Initiator: res, Responder: ini}
	if !swap.ValidFor(ini, res) {
		t.Fatal("swap should be valid")
	}
	steal := Offer{Initiator: board.ChipsOf(board.Red, board.Blue, board.Blue)}
	if steal.ValidFor(ini, res) {
		t.Fatal("offer creating chips should be invalid")
	}
	if got := swap.Gives(Initiator, ini); got != ini {
		t.Fatalf("initiator gives %v", got)
	}

	a := OfferOutcome{InitiatorUtility: 10, ResponderUtility: 5}
	b := OfferOutcome{InitiatorUtility: 10, ResponderUtility: 4}
	if !a.Dominates(b) || b.Dominates(a) || a.Dominates(a) {
		t.Fatal("dominance relation is wrong")
	}
	if a.SocialWelfare() != 15 {
		t.Fatalf("social welfare %v", a.SocialWelfare())
	}
}
