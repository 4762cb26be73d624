package agents

import (
	"github.com/talgya/mindtrade/internal/board"
)

// chooseAnnouncement picks the goal a deceiver claims alongside the offer at
// index idx, or nil to stay silent. A claim is made only when it strictly
// beats silence. The claim may happen to be true; the agent's real goal is
// never changed by it.
func (a *Agent) chooseAnnouncement(f *frame, idx int) *board.Cell {
	var best *board.Cell
	bestValue := a.announcementValue(f, idx, nil)
	for _, c := range a.Beliefs.Candidates(2) {
		claim := c
		if v := a.announcementValue(f, idx, &claim); v > bestValue+tieTolerance {
			best, bestValue = &claim, v
		}
	}
	return best
}

// announcementValue replays the counterpart's level-1 update for the offer
// at idx with the given claim on the level-2 model, re-derives the
// counterpart's acceptance thresholds and returns the best expected utility
// among all offers the agent could make next.
func (a *Agent) announcementValue(f *frame, idx int, announced *board.Cell) float64 {
	level2 := a.Beliefs.level(2)
	share := f.offers[idx].Share(a.Role)
	next, ok := blend(level2, a.selfConsistency(share, 1, announced), a.LearningRate)
	if !ok {
		next = level2
	}
	return f.bestCounterValue(f.acceptance(f.thresholds(Order1, next)))
}
