// Package experiment runs grids of negotiations over theory-of-mind order,
// learning rate and lying, and aggregates one row per agent and
// combination.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/engine"
	"github.com/talgya/mindtrade/internal/trade"
)

// Grid describes an experiment. Every combination of initiator and
// responder parameters drawn from Orders × LearningRates × Lying is played
// for Rounds rounds on the same generated scenario. Lying only applies to
// order 2.
type Grid struct {
	Orders        []agents.Order `json:"orders"`
	LearningRates []float64      `json:"learning_rates"`
	Lying         []bool         `json:"lying"`
	Rounds        int            `json:"rounds"`
	Workers       int            `json:"workers"` // Defaults to GOMAXPROCS
	Seed          int64          `json:"seed"`
	Scenario      config.GenSpec `json:"scenario"`
}

// DefaultGrid covers every order and lying variant at two learning rates.
func DefaultGrid() Grid {
	return Grid{
		Orders:        []agents.Order{agents.Order0, agents.Order1, agents.Order2},
		LearningRates: []float64{0.3, 0.9},
		Lying:         []bool{false, true},
		Rounds:        10,
		Seed:          1,
		Scenario:      config.DefaultGenSpec(),
	}
}

// Combination is one cell of the grid.
type Combination struct {
	Index     int           `json:"index"`
	Initiator agents.Params `json:"initiator"`
	Responder agents.Params `json:"responder"`
}

// Row is the aggregate of one agent over all rounds of a combination.
// Points, gain and offer counts are means over rounds.
type Row struct {
	RunID           string        `db:"run_id" json:"run_id"`
	Combination     int           `db:"combination" json:"combination"`
	Role            string        `db:"role" json:"role"`
	ToM             int           `db:"tom" json:"tom"`
	LearningRate    float64       `db:"learning_rate" json:"learning_rate"`
	CanLie          bool          `db:"can_lie" json:"can_lie"`
	OpponentToM     int           `db:"opponent_tom" json:"opponent_tom"`
	Rounds          int           `db:"rounds" json:"rounds"`
	InitialPoints   float64       `db:"initial_points" json:"initial_points"`
	FinalPoints     float64       `db:"final_points" json:"final_points"`
	Gain            float64       `db:"gain" json:"gain"`
	NrOffers        float64       `db:"nr_offers" json:"nr_offers"`
	ParetoEfficient bool          `db:"pareto_efficient" json:"pareto_efficient"` // Every round ended on the frontier
	ParetoRate      float64       `db:"pareto_rate" json:"pareto_rate"`
	Elapsed         time.Duration `db:"elapsed" json:"elapsed"`
}

// Result is the output of Run.
type Result struct {
	RunID   string        `json:"run_id"`
	Rows    []Row         `json:"rows"`
	Aborted bool          `json:"aborted"`
	Elapsed time.Duration `json:"elapsed"`
}

// Combinations expands the grid.
func (g Grid) Combinations() []Combination {
	var variants []agents.Params
	for _, o := range g.Orders {
		for _, lr := range g.LearningRates {
			for _, lie := range g.Lying {
				if lie && o < agents.Order2 {
					continue
				}
				variants = append(variants, agents.Params{Order: o, LearningRate: lr, CanLie: lie})
			}
		}
	}

	var out []Combination
	for _, ini := range variants {
		for _, res := range variants {
			out = append(out, Combination{Index: len(out), Initiator: ini, Responder: res})
		}
	}
	return out
}

// Validate checks the grid before running.
func (g Grid) Validate() error {
	if len(g.Orders) == 0 || len(g.LearningRates) == 0 || len(g.Lying) == 0 {
		return fmt.Errorf("%w: empty grid axis", config.ErrInvalidConfig)
	}
	if g.Rounds < 1 {
		return fmt.Errorf("%w: rounds %d must be at least 1", config.ErrInvalidConfig, g.Rounds)
	}
	for _, c := range g.Combinations() {
		for _, p := range []agents.Params{c.Initiator, c.Responder} {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
			}
		}
	}
	return nil
}

// Run plays every combination on a bounded worker pool. Cancelling ctx stops
// dispatching new combinations; finished ones are still returned, and the
// result is marked Aborted.
func Run(ctx context.Context, g Grid) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	combos := g.Combinations()
	res := &Result{RunID: uuid.NewString()}
	start := time.Now()
	slog.Info("experiment started",
		"run", res.RunID,
		"combinations", humanize.Comma(int64(len(combos))),
		"rounds", g.Rounds,
		"workers", workers,
	)

	jobs := make(chan Combination)
	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				rows, err := g.play(ctx, c)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				}
				for i := range rows {
					rows[i].RunID = res.RunID
				}
				res.Rows = append(res.Rows, rows...)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, c := range combos {
		select {
		case <-ctx.Done():
			res.Aborted = true
			break dispatch
		case jobs <- c:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if ctx.Err() != nil {
		res.Aborted = true
	}
	sort.Slice(res.Rows, func(i, j int) bool {
		if res.Rows[i].Combination != res.Rows[j].Combination {
			return res.Rows[i].Combination < res.Rows[j].Combination
		}
		return res.Rows[i].Role < res.Rows[j].Role
	})
	res.Elapsed = time.Since(start)

	slog.Info("experiment finished",
		"run", res.RunID,
		"rows", humanize.Comma(int64(len(res.Rows))),
		"aborted", res.Aborted,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return res, nil
}

// play runs one combination and returns its initiator and responder rows.
// A combination cancelled mid-way returns no rows.
func (g Grid) play(ctx context.Context, c Combination) ([]Row, error) {
	spec := g.Scenario
	spec.Initiator, spec.Responder = c.Initiator, c.Responder
	cfg := config.Generate(spec, g.Seed)

	game, err := engine.NewGame(cfg)
	if err != nil {
		return nil, fmt.Errorf("combination %d: %w", c.Index, err)
	}

	start := time.Now()
	results := make([]engine.RoundResult, 0, g.Rounds)
	for r := 0; r < g.Rounds; r++ {
		if ctx.Err() != nil {
			return nil, nil
		}
		if r > 0 {
			game.NewRound()
		}
		results = append(results, game.PlayTillEnd())
	}
	elapsed := time.Since(start)

	rows := []Row{
		aggregate(c, trade.Initiator, c.Initiator, c.Responder, results),
		aggregate(c, trade.Responder, c.Responder, c.Initiator, results),
	}
	for i := range rows {
		rows[i].Elapsed = elapsed
	}
	slog.Debug("combination finished", "index", c.Index, "initiator", c.Initiator, "responder", c.Responder)
	return rows, nil
}

func aggregate(c Combination, role trade.Role, self, opp agents.Params, results []engine.RoundResult) Row {
	row := Row{
		Combination:     c.Index,
		Role:            role.String(),
		ToM:             int(self.Order),
		LearningRate:    self.LearningRate,
		CanLie:          self.CanLie,
		OpponentToM:     int(opp.Order),
		Rounds:          len(results),
		ParetoEfficient: true,
	}
	if len(results) == 0 {
		return row
	}

	efficient := 0
	for _, r := range results {
		row.InitialPoints += r.Baseline.Utility(role)
		row.FinalPoints += r.Outcome.Utility(role)
		row.Gain += r.Gain(role)
		row.NrOffers += float64(r.NrOffers)
		if r.Efficient {
			efficient++
		} else {
			row.ParetoEfficient = false
		}
	}
	n := float64(len(results))
	row.InitialPoints /= n
	row.FinalPoints /= n
	row.Gain /= n
	row.NrOffers /= n
	row.ParetoRate = float64(efficient) / n
	return row
}
