// Package engine runs negotiations: Game is the synchronous protocol state
// machine, Engine drives a Game from a background worker with checkpoint
// callbacks and cooperative cancellation.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/trade"
)

// ErrSimulationBusy is returned by mutating calls while a run is active.
var ErrSimulationBusy = errors.New("simulation busy")

// RunReport describes a finished or cancelled run.
type RunReport struct {
	Rounds  []RoundResult `json:"rounds"`
	Steps   int           `json:"steps"`
	Aborted bool          `json:"aborted"` // Cancelled before all rounds completed
	Elapsed time.Duration `json:"elapsed"`
}

// Engine owns a Game and serializes access to it. While a run is active the
// worker has exclusive use of the game and configuration changes fail with
// ErrSimulationBusy; read-only accessors still work between steps.
type Engine struct {
	mu     sync.Mutex
	game   *Game
	busy   bool
	cancel context.CancelFunc

	// Delay paces runs between steps; zero runs flat out.
	Delay time.Duration

	// Checkpoint callbacks, invoked on the worker goroutine without the
	// engine lock held.
	OnStep  func(Move)
	OnRound func(RoundResult)
}

// NewEngine wraps a game.
func NewEngine(g *Game) *Engine {
	return &Engine{game: g}
}

// IsBusy reports whether a run is active.
func (e *Engine) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// mutate runs fn under the lock unless a run is active.
func (e *Engine) mutate(fn func(g *Game) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrSimulationBusy
	}
	return fn(e.game)
}

// View runs fn with read access to the game.
func (e *Engine) View(fn func(g *Game)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.game)
}

// Reset replaces the configuration.
func (e *Engine) Reset(cfg config.Config) error {
	return e.mutate(func(g *Game) error { return g.Reset(cfg) })
}

// NewGameSettings draws a new scenario of the same shape.
func (e *Engine) NewGameSettings(seed int64) error {
	return e.mutate(func(g *Game) error { return g.NewGameSettings(seed) })
}

// NewRound starts a new round keeping beliefs.
func (e *Engine) NewRound() error {
	return e.mutate(func(g *Game) error {
		g.NewRound()
		return nil
	})
}

// Step advances one transition outside of a run.
func (e *Engine) Step() (Move, error) {
	var (
		mv       Move
		res      RoundResult
		finished bool
	)
	err := e.mutate(func(g *Game) error {
		var err error
		if mv, err = g.Step(); err != nil {
			return err
		}
		res, finished = g.Result()
		return nil
	})
	if err != nil {
		return Move{}, err
	}
	if finished {
		e.checkpoint(mv, &res)
	} else {
		e.checkpoint(mv, nil)
	}
	return mv, nil
}

// Run plays rounds rounds on the calling goroutine. The current round is
// finished first; if it already ended a new one is started. Cancellation of
// ctx, or Cancel, is honored between steps and ends the run with Aborted set.
// The only error is ErrSimulationBusy.
func (e *Engine) Run(ctx context.Context, rounds int) (RunReport, error) {
	ctx, err := e.acquire(ctx)
	if err != nil {
		return RunReport{}, err
	}
	defer e.release()
	return e.run(ctx, rounds), nil
}

// Start launches Run on a new goroutine. The report is delivered on the
// returned channel, which is then closed.
func (e *Engine) Start(ctx context.Context, rounds int) (<-chan RunReport, error) {
	ctx, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	done := make(chan RunReport, 1)
	go func() {
		defer close(done)
		defer e.release()
		done <- e.run(ctx, rounds)
	}()
	return done, nil
}

// PlayTillEnd finishes the current round.
func (e *Engine) PlayTillEnd(ctx context.Context) (RunReport, error) {
	return e.Run(ctx, 1)
}

// Cancel asks an active run to stop at the next checkpoint.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) acquire(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return nil, ErrSimulationBusy
	}
	e.busy = true
	ctx, e.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.busy = false
	e.cancel = nil
}

func (e *Engine) run(ctx context.Context, rounds int) RunReport {
	start := time.Now()
	var report RunReport
	slog.Info("run started", "rounds", rounds)

	for len(report.Rounds) < rounds {
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}

		e.mu.Lock()
		if e.game.IsFinished() {
			e.game.NewRound()
		}
		mv, err := e.game.Step()
		res, finished := e.game.Result()
		e.mu.Unlock()
		if err != nil {
			// Unreachable: the round was restarted above.
			slog.Error("step failed", "error", err)
			report.Aborted = true
			break
		}

		report.Steps++
		if finished {
			report.Rounds = append(report.Rounds, res)
			e.checkpoint(mv, &res)
		} else {
			e.checkpoint(mv, nil)
		}

		if e.Delay > 0 && len(report.Rounds) < rounds {
			select {
			case <-ctx.Done():
			case <-time.After(e.Delay):
			}
		}
	}

	report.Elapsed = time.Since(start)
	slog.Info("run finished",
		"rounds", humanize.Comma(int64(len(report.Rounds))),
		"steps", humanize.Comma(int64(report.Steps)),
		"aborted", report.Aborted,
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	return report
}

func (e *Engine) checkpoint(mv Move, res *RoundResult) {
	if e.OnStep != nil {
		e.OnStep(mv)
	}
	if res == nil {
		return
	}
	slog.Info("round finished",
		"round", res.Round,
		"status", res.Status,
		"offers", res.NrOffers,
		"initiator_gain", res.Gain(trade.Initiator),
		"responder_gain", res.Gain(trade.Responder),
		"efficient", res.Efficient,
	)
	if e.OnRound != nil {
		e.OnRound(*res)
	}
}
