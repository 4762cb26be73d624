package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/pareto"
	"github.com/talgya/mindtrade/internal/trade"
	"github.com/talgya/mindtrade/internal/utility"
)

var (
	// ErrRoundFinished is returned by Step when the round already ended.
	ErrRoundFinished = errors.New("round finished")
	// ErrInvalidOffer is returned when an offer does not redistribute
	// exactly the chips both agents hold.
	ErrInvalidOffer = errors.New("invalid offer")
)

// Phase is the state of the negotiation protocol within a round.
type Phase uint8

const (
	PhaseRoundStart      Phase = iota // Allocations reset, no offer made yet
	PhaseOffering                     // Turn-holder is about to propose
	PhaseEvaluating                   // Counterpart is weighing an offer
	PhaseAccepted                     // Terminal: chips moved per the accepted offer
	PhaseWithdrawn                    // Terminal: turn-holder had no offer worth making
	PhaseBudgetExhausted              // Terminal: MaxOffers offers were all rejected
)

func (p Phase) String() string {
	switch p {
	case PhaseRoundStart:
		return "round_start"
	case PhaseOffering:
		return "offering"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseAccepted:
		return "accepted"
	case PhaseWithdrawn:
		return "withdrawn"
	case PhaseBudgetExhausted:
		return "budget_exhausted"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for q := PhaseRoundStart; q <= PhaseBudgetExhausted; q++ {
		if q.String() == string(text) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Terminal reports whether the phase ends a round.
func (p Phase) Terminal() bool {
	return p >= PhaseAccepted
}

// Move records one offer/evaluation transition.
type Move struct {
	Round      int            `json:"round"`
	Index      int            `json:"index"` // 1-based offer number within the round
	Proposer   trade.Role     `json:"proposer"`
	Offer      trade.Offer    `json:"offer"`
	Gives      [2]board.Chips `json:"gives"` // Chips each role hands over, indexed by role
	Announced  *board.Cell    `json:"announced,omitempty"`
	Acceptance float64        `json:"acceptance"` // Proposer's predicted acceptance
	Accepted   bool           `json:"accepted"`
	Withdrawn  bool           `json:"withdrawn,omitempty"` // Proposer had no offer; Offer is empty
	Phase      Phase          `json:"phase"`               // Phase after the move
}

// RoundResult summarizes a finished round.
type RoundResult struct {
	Round     int                `json:"round"`
	Status    Phase              `json:"status"`
	Outcome   trade.OfferOutcome `json:"outcome"`  // Final allocation and true utilities
	Baseline  trade.OfferOutcome `json:"baseline"` // Allocation at round start
	NrOffers  int                `json:"nr_offers"`
	Efficient bool               `json:"efficient"` // Outcome lies on the Pareto frontier
	Analyzed  bool               `json:"analyzed"`  // False when the outcome space was too large
}

// Gain returns the utility change of one role over the round.
func (r RoundResult) Gain(role trade.Role) float64 {
	return r.Outcome.Utility(role) - r.Baseline.Utility(role)
}

// Game runs the negotiation protocol between two agents on one board. It is
// synchronous and not safe for concurrent use; Engine adds the locking.
type Game struct {
	cfg       config.Config
	board     *board.Board
	scorer    *utility.Scorer
	initiator *agents.Agent
	responder *agents.Agent

	round   int
	phase   Phase
	turn    trade.Role
	offers  int
	history []Move
	results []RoundResult
}

// NewGame validates cfg and sets up round 1.
func NewGame(cfg config.Config) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Game{cfg: cfg.Clone()}
	if err := g.build(nil, nil); err != nil {
		return nil, err
	}
	g.startRound()
	return g, nil
}

// build creates the board, scorer and agents from g.cfg. Existing agents are
// rebound to the new board so their beliefs survive; nil agents are created.
func (g *Game) build(ini, res *agents.Agent) error {
	b, err := board.New(g.cfg.Board.Width, g.cfg.Board.Height, g.cfg.Board.Tiles)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	scorer := utility.NewScorer(b)

	iniStart := b.CellAt(g.cfg.Initiator.Start)
	resStart := b.CellAt(g.cfg.Responder.Start)
	iniCands := agents.CandidateGoals(b, iniStart, g.cfg.MinGoalDistance)
	resCands := agents.CandidateGoals(b, resStart, g.cfg.MinGoalDistance)

	if ini == nil {
		if ini, err = agents.New(trade.Initiator, g.cfg.Initiator.Params(), scorer, iniCands, resCands); err != nil {
			return fmt.Errorf("initiator: %w", err)
		}
	} else {
		ini.Rebind(scorer, iniCands, resCands)
	}
	if res == nil {
		if res, err = agents.New(trade.Responder, g.cfg.Responder.Params(), scorer, resCands, iniCands); err != nil {
			return fmt.Errorf("responder: %w", err)
		}
	} else {
		res.Rebind(scorer, resCands, iniCands)
	}

	g.board, g.scorer = b, scorer
	g.initiator, g.responder = ini, res
	return nil
}

// Reset replaces the configuration and starts over with fresh agents and
// beliefs. An invalid cfg leaves the game untouched.
func (g *Game) Reset(cfg config.Config) error {
	ng, err := NewGame(cfg)
	if err != nil {
		return err
	}
	*g = *ng
	return nil
}

// NewGameSettings draws a new board, goals and chips of the same shape as
// the current configuration and starts a new round on it. Agent parameters
// and learned beliefs are kept whenever the candidate goal sets match.
func (g *Game) NewGameSettings(seed int64) error {
	spec := config.GenSpec{
		Width:           g.cfg.Board.Width,
		Height:          g.cfg.Board.Height,
		ChipsPerAgent:   g.cfg.Initiator.Chips.Total(),
		MaxOffers:       g.cfg.MaxOffers,
		MinGoalDistance: g.cfg.MinGoalDistance,
		Initiator:       g.cfg.Initiator.Params(),
		Responder:       g.cfg.Responder.Params(),
	}
	cfg := config.Generate(spec, seed)
	if err := cfg.Validate(); err != nil {
		return err
	}

	prev := g.cfg
	g.cfg = cfg
	if err := g.build(g.initiator, g.responder); err != nil {
		g.cfg = prev
		return err
	}
	g.NewRound()
	return nil
}

// NewRound returns to RoundStart: positions and chips are reset from the
// configuration, beliefs are kept.
func (g *Game) NewRound() {
	g.startRound()
}

func (g *Game) startRound() {
	g.round++
	g.phase = PhaseRoundStart
	g.turn = trade.Initiator
	g.offers = 0
	g.history = g.history[:0]

	place := func(a *agents.Agent, c config.AgentConfig) {
		a.Place(g.board.CellAt(c.Start), g.board.CellAt(c.Goal), c.Chips)
	}
	place(g.initiator, g.cfg.Initiator)
	place(g.responder, g.cfg.Responder)
}

// Step advances exactly one offer/evaluation transition: the turn-holder
// proposes, the counterpart updates its beliefs and responds.
func (g *Game) Step() (Move, error) {
	if g.phase.Terminal() {
		return Move{}, ErrRoundFinished
	}
	g.phase = PhaseOffering
	proposer, receiver := g.Agent(g.turn), g.Agent(g.turn.Other())

	prop, ok := proposer.Propose(receiver.Public())
	if !ok {
		g.finish(PhaseWithdrawn)
		mv := Move{Round: g.round, Index: g.offers, Proposer: g.turn, Withdrawn: true, Phase: g.phase}
		g.history = append(g.history, mv)
		slog.Debug("offer withdrawn", "round", g.round, "proposer", g.turn)
		return mv, nil
	}
	if err := g.checkOffer(prop.Offer); err != nil {
		return Move{}, err
	}

	g.phase = PhaseEvaluating
	g.offers++
	receiver.ObserveOffer(prop.Offer, prop.Announced, proposer.Public())
	proposer.RecordProposal(prop.Offer, prop.Announced)

	last := g.offers >= g.cfg.MaxOffers
	resp := receiver.Respond(prop.Offer, proposer.Public(), last)

	proposer.ObserveResponse(prop.Offer, resp.Accept, receiver.Public())
	receiver.RecordResponse(prop.Offer, resp.Accept)

	gives := [2]board.Chips{
		trade.Initiator: prop.Offer.Gives(trade.Initiator, g.initiator.Chips),
		trade.Responder: prop.Offer.Gives(trade.Responder, g.responder.Chips),
	}

	switch {
	case resp.Accept:
		if err := g.transfer(prop.Offer); err != nil {
			return Move{}, err
		}
		g.finish(PhaseAccepted)
	case last:
		g.finish(PhaseBudgetExhausted)
	default:
		g.turn = g.turn.Other()
		g.phase = PhaseOffering
	}

	mv := Move{
		Round:      g.round,
		Index:      g.offers,
		Proposer:   proposer.Role,
		Offer:      prop.Offer,
		Gives:      gives,
		Announced:  prop.Announced,
		Acceptance: prop.Acceptance,
		Accepted:   resp.Accept,
		Phase:      g.phase,
	}
	g.history = append(g.history, mv)
	slog.Debug("offer",
		"round", g.round,
		"n", g.offers,
		"proposer", proposer.Role,
		"offer", prop.Offer,
		"announced", prop.Announced != nil,
		"accepted", resp.Accept,
	)
	return mv, nil
}

func (g *Game) checkOffer(o trade.Offer) error {
	if !o.ValidFor(g.initiator.Chips, g.responder.Chips) {
		return fmt.Errorf("%w: %v for holdings %v / %v", ErrInvalidOffer, o, g.initiator.Chips, g.responder.Chips)
	}
	return nil
}

// transfer moves the chips per an accepted offer. Holdings are untouched
// when the offer is invalid.
func (g *Game) transfer(o trade.Offer) error {
	if err := g.checkOffer(o); err != nil {
		return err
	}
	g.initiator.Chips = o.Initiator
	g.responder.Chips = o.Responder
	return nil
}

// PlayTillEnd steps until the round reaches a terminal phase.
func (g *Game) PlayTillEnd() RoundResult {
	for !g.phase.Terminal() {
		if _, err := g.Step(); err != nil {
			break
		}
	}
	r, _ := g.Result()
	return r
}

func (g *Game) finish(status Phase) {
	g.phase = status
	g.initiator.FinalPoints = g.initiator.UtilityValue()
	g.responder.FinalPoints = g.responder.UtilityValue()

	r := RoundResult{
		Round:  g.round,
		Status: status,
		Outcome: trade.OfferOutcome{
			Offer:            trade.Offer{Initiator: g.initiator.Chips, Responder: g.responder.Chips},
			InitiatorUtility: g.initiator.FinalPoints,
			ResponderUtility: g.responder.FinalPoints,
		},
		Baseline: trade.OfferOutcome{
			Offer:            trade.Offer{Initiator: g.cfg.Initiator.Chips, Responder: g.cfg.Responder.Chips},
			InitiatorUtility: g.initiator.InitialPoints,
			ResponderUtility: g.responder.InitialPoints,
		},
		NrOffers: g.offers,
	}
	if a, err := g.Analysis(); err == nil {
		r.Analyzed = true
		r.Efficient = a.IsEfficient(r.Outcome)
	} else {
		slog.Warn("pareto analysis skipped", "round", g.round, "error", err)
	}
	g.results = append(g.results, r)
}

// Analysis evaluates the outcome space of the current round's starting
// allocation with the agents' true goals.
func (g *Game) Analysis() (*pareto.Analysis, error) {
	party := func(c config.AgentConfig) pareto.Party {
		return pareto.Party{
			Position: g.board.CellAt(c.Start),
			Goal:     g.board.CellAt(c.Goal),
			Chips:    c.Chips,
		}
	}
	return pareto.Analyze(g.scorer, party(g.cfg.Initiator), party(g.cfg.Responder))
}

// ParetoOutcomes returns the Pareto frontier of the current round.
func (g *Game) ParetoOutcomes() ([]trade.OfferOutcome, error) {
	a, err := g.Analysis()
	if err != nil {
		return nil, err
	}
	return a.Frontier, nil
}

// IsFinished reports whether the current round has ended.
func (g *Game) IsFinished() bool { return g.phase.Terminal() }

// NrOffers returns the number of offers made in the current round.
func (g *Game) NrOffers() int { return g.offers }

// Round returns the 1-based number of the current round.
func (g *Game) Round() int { return g.round }

// Phase returns the protocol state.
func (g *Game) Phase() Phase { return g.phase }

// Turn returns the role due to propose next.
func (g *Game) Turn() trade.Role { return g.turn }

// History returns the moves of the current round.
func (g *Game) History() []Move {
	return append([]Move(nil), g.history...)
}

// Result returns the result of the current round once it has finished.
func (g *Game) Result() (RoundResult, bool) {
	if !g.phase.Terminal() || len(g.results) == 0 {
		return RoundResult{}, false
	}
	return g.results[len(g.results)-1], true
}

// Results returns every finished round since the last Reset.
func (g *Game) Results() []RoundResult {
	return append([]RoundResult(nil), g.results...)
}

// Config returns a copy of the active configuration.
func (g *Game) Config() config.Config { return g.cfg.Clone() }

// Board returns the board of the current configuration.
func (g *Game) Board() *board.Board { return g.board }

// Agent returns the agent playing role r.
func (g *Game) Agent(r trade.Role) *agents.Agent {
	if r == trade.Initiator {
		return g.initiator
	}
	return g.responder
}
