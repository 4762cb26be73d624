// Package agents provides the negotiating agents: their private state, nested
// theory-of-mind beliefs, offer selection and the deceptive announcement
// strategy available to second-order agents.
package agents

import (
	"errors"
	"fmt"

	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/trade"
	"github.com/talgya/mindtrade/internal/utility"
)

// Order is the theory-of-mind depth of an agent.
type Order uint8

const (
	Order0 Order = 0 // Self-interested, no model of the counterpart
	Order1 Order = 1 // Models the counterpart's goal and utility
	Order2 Order = 2 // Also models the counterpart's model of itself
)

// MaxOrder is the deepest supported theory-of-mind order.
const MaxOrder = Order2

// Strategy is the closed set of reasoning variants, fixed at construction.
type Strategy uint8

const (
	StrategySelfish   Strategy = iota // Order 0
	StrategyModeler                   // Order 1
	StrategyRecursive                 // Order 2, honest
	StrategyDeceiver                  // Order 2 with lying enabled
)

func (s Strategy) String() string {
	switch s {
	case StrategySelfish:
		return "selfish"
	case StrategyModeler:
		return "modeler"
	case StrategyRecursive:
		return "recursive"
	case StrategyDeceiver:
		return "deceiver"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// Decision tuning.
const (
	AcceptanceThreshold = 0.5  // Minimum predicted acceptance for a preferred offer
	NearOptimalMargin   = 5.0  // Own-utility slack when preferring acceptable offers
	ConsistencyScale    = 10.0 // Utility difference that moves consistency by one logistic unit
	AnnouncementDoubt   = 0.25 // Consistency weight of goals contradicting an announcement
)

// ErrLyingRequiresOrder2 is returned when lying is enabled below order 2.
var ErrLyingRequiresOrder2 = errors.New("lying requires theory-of-mind order 2")

// Params configures an agent's reasoning.
type Params struct {
	Order        Order   `json:"order"`
	LearningRate float64 `json:"learning_rate"`
	CanLie       bool    `json:"can_lie"`
	Tolerance    float64 `json:"tolerance"` // Required gain over the baseline to accept
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.Order > MaxOrder {
		return fmt.Errorf("theory-of-mind order %d out of range 0-%d", p.Order, MaxOrder)
	}
	if p.LearningRate < 0 || p.LearningRate > 1 || p.LearningRate != p.LearningRate {
		return fmt.Errorf("learning rate %v out of range [0,1]", p.LearningRate)
	}
	if p.CanLie && p.Order < Order2 {
		return fmt.Errorf("order %d: %w", p.Order, ErrLyingRequiresOrder2)
	}
	if p.Tolerance < 0 {
		return fmt.Errorf("tolerance %v must not be negative", p.Tolerance)
	}
	return nil
}

// Strategy returns the reasoning variant the parameters select.
func (p Params) Strategy() Strategy {
	switch {
	case p.Order == Order0:
		return StrategySelfish
	case p.Order == Order1:
		return StrategyModeler
	case p.CanLie:
		return StrategyDeceiver
	default:
		return StrategyRecursive
	}
}

// Public is what an agent reveals to its counterpart: everything but its goal.
type Public struct {
	Role     trade.Role  `json:"role"`
	Position board.Cell  `json:"position"`
	Chips    board.Chips `json:"chips"`
}

// Agent is one negotiating party.
type Agent struct {
	Role         trade.Role `json:"role"`
	Order        Order      `json:"order"`
	LearningRate float64    `json:"learning_rate"`
	CanLie       bool       `json:"can_lie"`
	Tolerance    float64    `json:"tolerance"`
	Strategy     Strategy   `json:"strategy"`

	Position board.Cell  `json:"position"`
	Chips    board.Chips `json:"chips"`
	Goal     board.Cell  `json:"-"` // Private

	InitialPoints float64 `json:"initial_points"`
	FinalPoints   float64 `json:"final_points"`

	Beliefs BeliefState `json:"-"`

	scorer *utility.Scorer
}

// New creates an agent. Beliefs start uniform over the candidate goals of
// the counterpart (level 1) and of the agent itself (level 2).
func New(role trade.Role, p Params, scorer *utility.Scorer, selfCandidates, oppCandidates []board.Cell) (*Agent, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		Role:         role,
		Order:        p.Order,
		LearningRate: p.LearningRate,
		CanLie:       p.CanLie,
		Tolerance:    p.Tolerance,
		Strategy:     p.Strategy(),
		Beliefs:      NewBeliefState(p.Order, oppCandidates, selfCandidates),
		scorer:       scorer,
	}, nil
}

// Params returns the agent's reasoning parameters.
func (a *Agent) Params() Params {
	return Params{Order: a.Order, LearningRate: a.LearningRate, CanLie: a.CanLie, Tolerance: a.Tolerance}
}

// Place resets the agent's position, chips and goal for a new round and
// records its initial points. Beliefs are kept.
func (a *Agent) Place(position, goal board.Cell, chips board.Chips) {
	a.Position = position
	a.Goal = goal
	a.Chips = chips
	a.InitialPoints = a.UtilityValue()
	a.FinalPoints = a.InitialPoints
}

// Rebind switches the agent to a new board, keeping learned beliefs when the
// candidate goal sets are unchanged.
func (a *Agent) Rebind(scorer *utility.Scorer, selfCandidates, oppCandidates []board.Cell) {
	a.scorer = scorer
	if !a.Beliefs.Matches(oppCandidates, selfCandidates) {
		a.Beliefs = NewBeliefState(a.Order, oppCandidates, selfCandidates)
	}
}

// Public returns the agent's observable state.
func (a *Agent) Public() Public {
	return Public{Role: a.Role, Position: a.Position, Chips: a.Chips}
}

// UtilityValue returns the agent's payoff for its current chips.
func (a *Agent) UtilityValue() float64 {
	return a.scorer.Utility(a.Position, a.Goal, a.Chips)
}

// Belief returns a copy of the belief vector at the given order (1 or 2).
func (a *Agent) Belief(order Order) []float64 {
	return a.Beliefs.Level(order)
}

// allocation expresses the current holdings of both parties as an offer.
func (a *Agent) allocation(opp Public) trade.Offer {
	if a.Role == trade.Initiator {
		return trade.Offer{Initiator: a.Chips, Responder: opp.Chips}
	}
	return trade.Offer{Initiator: opp.Chips, Responder: a.Chips}
}

func (a *Agent) String() string {
	return fmt.Sprintf("%s(order=%d lr=%.2f lie=%v)", a.Role, a.Order, a.LearningRate, a.CanLie)
}
