package trade

import (
	"github.com/talgya/mindtrade/internal/board"
)

// EnumerationCap bounds exhaustive enumeration of the offer space. Larger
// spaces are explored by local search instead.
const EnumerationCap = 4096

// maxSearchSteps bounds a single hill climb.
const maxSearchSteps = 256

// SpaceSize returns the number of distinct redistributions of combined,
// saturating just above EnumerationCap.
func SpaceSize(combined board.Chips) int {
	size := 1
	for _, qty := range combined {
		size *= qty + 1
		if size > EnumerationCap {
			return EnumerationCap + 1
		}
	}
	return size
}

// Enumerate lists every redistribution of combined. The initiator share
// counts up like a mixed-radix number, first color fastest, starting from the
// allocation where the responder holds everything.
func Enumerate(combined board.Chips) []Offer {
	var offers []Offer
	var share board.Chips
	for {
		offers = append(offers, Split(combined, share))

		i := 0
		for ; i < board.NumColors; i++ {
			if share[i] < combined[i] {
				share[i]++
				break
			}
			share[i] = 0
		}
		if i == board.NumColors {
			return offers
		}
	}
}

// Neighbors returns the offers reachable by moving a single chip between the
// parties.
func Neighbors(o Offer) []Offer {
	var out []Offer
	for c := 0; c < board.NumColors; c++ {
		if o.Responder[c] > 0 {
			n := o
			n.Initiator[c]++
			n.Responder[c]--
			out = append(out, n)
		}
		if o.Initiator[c] > 0 {
			n := o
			n.Initiator[c]--
			n.Responder[c]++
			out = append(out, n)
		}
	}
	return out
}

// Candidates returns the offers a proposer should consider. Small spaces are
// enumerated in full; otherwise every offer visited by a greedy hill climb on
// score, started from current, is returned.
func Candidates(current Offer, score func(Offer) float64) []Offer {
	combined := current.Combined()
	if SpaceSize(combined) <= EnumerationCap {
		return Enumerate(combined)
	}

	visited := map[Offer]struct{}{current: {}}
	out := []Offer{current}
	at, atScore := current, score(current)
	for step := 0; step < maxSearchSteps; step++ {
		improved := false
		for _, n := range Neighbors(at) {
			if _, ok := visited[n]; !ok {
				visited[n] = struct{}{}
				out = append(out, n)
			}
			if s := score(n); s > atScore {
				at, atScore, improved = n, s, true
			}
		}
		if !improved {
			break
		}
	}
	return out
}
