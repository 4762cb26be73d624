// Package api provides the HTTP control surface for a negotiation engine.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/board"
	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/engine"
	"github.com/talgya/mindtrade/internal/pareto"
	"github.com/talgya/mindtrade/internal/persistence"
	"github.com/talgya/mindtrade/internal/trade"
)

const (
	maxSSEConns  = 2
	maxPlayRound = 10000
)

// Server serves an engine over HTTP.
type Server struct {
	Eng      *engine.Engine
	Store    persistence.Store // Optional; snapshot endpoints fail without it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	sseConns int32
	hub      *hub

	runMu   sync.Mutex
	lastRun *engine.RunReport
}

// NewServer wires the engine checkpoints into the event stream.
func NewServer(eng *engine.Engine, store persistence.Store, port int, adminKey string) *Server {
	s := &Server{Eng: eng, Store: store, Port: port, AdminKey: adminKey, hub: newHub()}
	eng.OnStep = func(mv engine.Move) { s.hub.publish("step", mv) }
	eng.OnRound = func(r engine.RoundResult) { s.hub.publish("round", r) }
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	playLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/board", s.handleBoard)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/results", s.handleResults)
	mux.HandleFunc("/api/v1/pareto", s.handlePareto)
	mux.HandleFunc("/api/v1/snapshots", s.handleSnapshots)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/step", s.adminOnly(s.handleStep))
	mux.HandleFunc("/api/v1/play", s.adminOnly(RateLimitMiddleware(playLimiter, s.handlePlay)))
	mux.HandleFunc("/api/v1/cancel", s.adminOnly(s.handleCancel))
	mux.HandleFunc("/api/v1/round", s.adminOnly(s.handleNewRound))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.handleReset))
	mux.HandleFunc("/api/v1/settings", s.adminOnly(s.handleSettings))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		<-ctx.Done()
		s.Eng.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires POST with a valid bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no MINDTRADE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// writeError maps engine and configuration errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrSimulationBusy):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrRoundFinished):
		status = http.StatusConflict
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, persistence.ErrNameTooShort),
		errors.Is(err, persistence.ErrNameTooLong),
		errors.Is(err, persistence.ErrForbiddenChar):
		status = http.StatusBadRequest
	case errors.Is(err, persistence.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, persistence.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, persistence.ErrLoadFailed):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Eng.View(func(g *engine.Game) {
		cfg := g.Config()
		status = map[string]any{
			"round":      g.Round(),
			"phase":      g.Phase(),
			"turn":       g.Turn().String(),
			"nr_offers":  g.NrOffers(),
			"max_offers": cfg.MaxOffers,
			"finished":   g.IsFinished(),
			"rounds":     len(g.Results()),
			"seed":       cfg.Seed,
		}
	})
	status["busy"] = s.Eng.IsBusy()

	s.runMu.Lock()
	if s.lastRun != nil {
		status["last_run"] = map[string]any{
			"rounds":  len(s.lastRun.Rounds),
			"steps":   s.lastRun.Steps,
			"aborted": s.lastRun.Aborted,
			"elapsed": s.lastRun.Elapsed.String(),
		}
	}
	s.runMu.Unlock()
	writeJSON(w, status)
}

// agentView is the observer's view of an agent, goal included.
type agentView struct {
	Role          string       `json:"role"`
	Strategy      string       `json:"strategy"`
	OrderToM      int          `json:"order_tom"`
	LearningRate  float64      `json:"learning_rate"`
	CanLie        bool         `json:"can_lie"`
	Position      board.Cell   `json:"position"`
	Goal          board.Cell   `json:"goal"`
	Chips         board.Chips  `json:"chips"`
	InitialPoints float64      `json:"initial_points"`
	FinalPoints   float64      `json:"final_points"`
	UtilityValue  float64      `json:"utility_value"`
	Belief1       []float64    `json:"belief_1,omitempty"`
	Belief2       []float64    `json:"belief_2,omitempty"`
	Entropy1      float64      `json:"entropy_1"`
	Candidates    []board.Cell `json:"candidates,omitempty"`
}

func viewAgent(a *agents.Agent) agentView {
	return agentView{
		Role:          a.Role.String(),
		Strategy:      a.Strategy.String(),
		OrderToM:      int(a.Order),
		LearningRate:  a.LearningRate,
		CanLie:        a.CanLie,
		Position:      a.Position,
		Goal:          a.Goal,
		Chips:         a.Chips,
		InitialPoints: a.InitialPoints,
		FinalPoints:   a.FinalPoints,
		UtilityValue:  a.UtilityValue(),
		Belief1:       a.Belief(agents.Order1),
		Belief2:       a.Belief(agents.Order2),
		Entropy1:      a.Beliefs.Entropy(agents.Order1),
		Candidates:    a.Beliefs.Candidates(agents.Order1),
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	var out []agentView
	s.Eng.View(func(g *engine.Game) {
		out = []agentView{viewAgent(g.Agent(trade.Initiator)), viewAgent(g.Agent(trade.Responder))}
	})
	writeJSON(w, out)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	var b board.Board
	s.Eng.View(func(g *engine.Game) { b = g.Config().Board })
	writeJSON(w, b)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var moves []engine.Move
	s.Eng.View(func(g *engine.Game) { moves = g.History() })
	writeJSON(w, moves)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	var results []engine.RoundResult
	s.Eng.View(func(g *engine.Game) { results = g.Results() })
	writeJSON(w, results)
}

// paretoView is the outcome space summary of the current round.
type paretoView struct {
	Frontier    []trade.OfferOutcome `json:"frontier"`
	MaxWelfare  float64              `json:"max_welfare"`
	BestWelfare []trade.OfferOutcome `json:"best_welfare"`
}

func (s *Server) handlePareto(w http.ResponseWriter, r *http.Request) {
	var (
		a   *pareto.Analysis
		err error
	)
	s.Eng.View(func(g *engine.Game) { a, err = g.Analysis() })
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, paretoView{Frontier: a.Frontier, MaxWelfare: a.MaxWelfare, BestWelfare: a.BestWelfare()})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	mv, err := s.Eng.Step()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, mv)
}

// handlePlay starts a background run and returns immediately.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Rounds int `json:"rounds"`
	}{Rounds: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Rounds < 1 || req.Rounds > maxPlayRound {
		http.Error(w, fmt.Sprintf("rounds must be 1-%d", maxPlayRound), http.StatusBadRequest)
		return
	}

	done, err := s.Eng.Start(context.Background(), req.Rounds)
	if err != nil {
		writeError(w, err)
		return
	}
	go func() {
		report := <-done
		s.runMu.Lock()
		s.lastRun = &report
		s.runMu.Unlock()
		s.hub.publish("run", map[string]any{"rounds": len(report.Rounds), "aborted": report.Aborted})
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"message": "run started", "rounds": req.Rounds})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.Eng.Cancel()
	writeJSON(w, map[string]any{"message": "cancel requested", "busy": s.Eng.IsBusy()})
}

func (s *Server) handleNewRound(w http.ResponseWriter, r *http.Request) {
	if err := s.Eng.NewRound(); err != nil {
		writeError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Eng.Reset(cfg); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("configuration reset", "seed", cfg.Seed)
	s.handleStatus(w, r)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seed int64 `json:"seed"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if err := s.Eng.NewGameSettings(req.Seed); err != nil {
		writeError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "snapshot store not available", http.StatusServiceUnavailable)
		return
	}
	names, err := s.Store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"snapshots": names})
}

// handleSnapshot saves the active configuration ("action": "save") or
// loads a stored one into the engine ("action": "load").
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "snapshot store not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Action    string `json:"action"`
		Name      string `json:"name"`
		Overwrite bool   `json:"overwrite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "save":
		var cfg config.Config
		s.Eng.View(func(g *engine.Game) { cfg = g.Config() })
		if err := s.Store.Save(req.Name, cfg, req.Overwrite); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"name": req.Name, "message": "snapshot saved"})
	case "load":
		cfg, err := s.Store.Load(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.Eng.Reset(cfg); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"name": req.Name, "message": "snapshot loaded"})
	default:
		http.Error(w, `action must be "save" or "load"`, http.StatusBadRequest)
	}
}

// handleStream sends step, round and run checkpoints as server-sent events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if current := atomic.AddInt32(&s.sseConns, 1); current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	ch, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.kind, ev.data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
