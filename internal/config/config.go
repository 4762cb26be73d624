// Package config holds the negotiation configuration: board, per-agent
// reasoning parameters, goals, starting chips and the offer budget.
// A Config is validated as a whole before anything is applied.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/entropy"
	"github.com/talgya/mindtrade/internal/trade"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults for generated scenarios.
const (
	DefaultMaxOffers       = 12
	DefaultMinGoalDistance = 3
	DefaultChipsPerAgent   = 4
)

// AgentConfig configures one party.
type AgentConfig struct {
	Order        agents.Order `json:"order"`
	LearningRate float64      `json:"learning_rate"`
	CanLie       bool         `json:"can_lie"`
	Tolerance    float64      `json:"tolerance,omitempty"`
	Goal         int          `json:"goal"`  // Board index
	Start        int          `json:"start"` // Board index
	Chips        board.Chips  `json:"chips"`
}

// Params returns the reasoning parameters.
func (a AgentConfig) Params() agents.Params {
	return agents.Params{
		Order:        a.Order,
		LearningRate: a.LearningRate,
		CanLie:       a.CanLie,
		Tolerance:    a.Tolerance,
	}
}

// WithParams returns a copy with the reasoning parameters replaced.
func (a AgentConfig) WithParams(p agents.Params) AgentConfig {
	a.Order = p.Order
	a.LearningRate = p.LearningRate
	a.CanLie = p.CanLie
	a.Tolerance = p.Tolerance
	return a
}

// Config is a complete negotiation setup.
type Config struct {
	Board           board.Board `json:"board"`
	Initiator       AgentConfig `json:"initiator"`
	Responder       AgentConfig `json:"responder"`
	MaxOffers       int         `json:"max_offers"`
	MinGoalDistance int         `json:"min_goal_distance"`
	Seed            int64       `json:"seed,omitempty"` // Seed the scenario was generated from, if any
}

// Agent returns the configuration of one role.
func (c *Config) Agent(r trade.Role) AgentConfig {
	if r == trade.Initiator {
		return c.Initiator
	}
	return c.Responder
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Board.Tiles = append([]board.Color(nil), c.Board.Tiles...)
	return c
}

// Validate checks every field. The first violation is returned wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := board.New(c.Board.Width, c.Board.Height, c.Board.Tiles); err != nil {
		return fmt.Errorf("%w: board: %w", ErrInvalidConfig, err)
	}
	if c.MaxOffers < 1 {
		return fmt.Errorf("%w: max offers %d must be at least 1", ErrInvalidConfig, c.MaxOffers)
	}
	if c.MinGoalDistance < 1 {
		return fmt.Errorf("%w: min goal distance %d must be at least 1", ErrInvalidConfig, c.MinGoalDistance)
	}
	for _, r := range []trade.Role{trade.Initiator, trade.Responder} {
		if err := c.validateAgent(c.Agent(r)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, r, err)
		}
	}
	return nil
}

func (c *Config) validateAgent(a AgentConfig) error {
	if err := a.Params().Validate(); err != nil {
		return err
	}
	b := &c.Board
	if !b.ValidIndex(a.Start) {
		return fmt.Errorf("start index %d outside board range 0-%d", a.Start, b.CellCount()-1)
	}
	if !b.ValidIndex(a.Goal) {
		return fmt.Errorf("goal index %d outside board range 0-%d", a.Goal, b.CellCount()-1)
	}
	if d := board.Distance(b.CellAt(a.Start), b.CellAt(a.Goal)); d < c.MinGoalDistance {
		return fmt.Errorf("goal %v is %d steps from start, need at least %d", b.CellAt(a.Goal), d, c.MinGoalDistance)
	}
	if !a.Chips.Valid() {
		return fmt.Errorf("negative chip count in %v", a.Chips)
	}
	return nil
}

// Encode serializes a configuration as indented JSON.
func Encode(c Config) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Decode parses and validates a JSON configuration.
func Decode(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// GenSpec describes how to generate random scenarios.
type GenSpec struct {
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	ChipsPerAgent   int           `json:"chips_per_agent"`
	MaxOffers       int           `json:"max_offers"`
	MinGoalDistance int           `json:"min_goal_distance"`
	Initiator       agents.Params `json:"initiator"`
	Responder       agents.Params `json:"responder"`
}

// DefaultGenSpec returns a 5×5 board, four chips each and order-0 agents.
func DefaultGenSpec() GenSpec {
	return GenSpec{
		Width:           5,
		Height:          5,
		ChipsPerAgent:   DefaultChipsPerAgent,
		MaxOffers:       DefaultMaxOffers,
		MinGoalDistance: DefaultMinGoalDistance,
	}
}

// Generate builds a random scenario: a noise-colored board, both agents at
// the center, goals drawn from the candidate goal cells and random chips.
// A zero seed draws a fresh one.
// The result is not validated; callers pass it through Validate or an
// engine Reset.
func Generate(spec GenSpec, seed int64) Config {
	if seed == 0 {
		seed = entropy.Seed()
	}
	rng := rand.New(rand.NewSource(seed))

	b := board.Generate(board.GenConfig{Width: spec.Width, Height: spec.Height, Seed: seed})
	start := b.Center()
	candidates := agents.CandidateGoals(b, start, spec.MinGoalDistance)

	pick := func() int {
		if len(candidates) == 0 {
			return b.Index(start)
		}
		return b.Index(candidates[rng.Intn(len(candidates))])
	}

	agentCfg := func(p agents.Params) AgentConfig {
		return AgentConfig{
			Goal:  pick(),
			Start: b.Index(start),
			Chips: board.RandomChips(rng, spec.ChipsPerAgent),
		}.WithParams(p)
	}

	return Config{
		Board:           *b,
		Initiator:       agentCfg(spec.Initiator),
		Responder:       agentCfg(spec.Responder),
		MaxOffers:       spec.MaxOffers,
		MinGoalDistance: spec.MinGoalDistance,
		Seed:            seed,
	}
}

// Default returns a generated configuration with the default spec.
func Default(seed int64) Config {
	return Generate(DefaultGenSpec(), seed)
}
