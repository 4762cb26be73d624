package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/engine"
	"github.com/talgya/mindtrade/internal/persistence"
)

const testKey = "secret"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	g, err := engine.NewGame(config.Default(2))
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	store, err := persistence.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	s := NewServer(engine.NewEngine(g), store, 0, testKey)
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndAgents(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/status", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["round"] != float64(1) || status["phase"] != "round_start" || status["busy"] != false {
		t.Fatalf("status = %v", status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/agents", nil, false)
	var views []agentView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode agents: %v", err)
	}
	if len(views) != 2 || views[0].Role != "initiator" || views[1].Role != "responder" {
		t.Fatalf("agents = %+v", views)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	_, h := newTestServer(t)

	if rec := do(t, h, http.MethodPost, "/api/v1/step", nil, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated step: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/step", nil, true); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET step: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/v1/step", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("step: %d %s", rec.Code, rec.Body)
	}
	var mv engine.Move
	if err := json.Unmarshal(rec.Body.Bytes(), &mv); err != nil {
		t.Fatalf("decode move: %v", err)
	}
	if mv.Round != 1 {
		t.Fatalf("move = %+v", mv)
	}
}

func TestParetoReportsBestWelfare(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/pareto", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("pareto: %d %s", rec.Code, rec.Body)
	}
	var view paretoView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Frontier) == 0 || len(view.BestWelfare) == 0 {
		t.Fatalf("empty analysis: %+v", view)
	}
	for _, o := range view.BestWelfare {
		if o.SocialWelfare() != view.MaxWelfare {
			t.Fatalf("best welfare outcome %+v below max %v", o, view.MaxWelfare)
		}
	}
}

func TestResetRejectsInvalidConfig(t *testing.T) {
	s, h := newTestServer(t)
	cfg := config.Default(8)
	cfg.Initiator.CanLie = true

	if rec := do(t, h, http.MethodPost, "/api/v1/reset", cfg, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid reset: %d", rec.Code)
	}
	s.Eng.View(func(g *engine.Game) {
		if g.Config().Seed != 2 {
			t.Fatalf("configuration changed to seed %d", g.Config().Seed)
		}
	})

	if rec := do(t, h, http.MethodPost, "/api/v1/reset", config.Default(8), true); rec.Code != http.StatusOK {
		t.Fatalf("valid reset: %d %s", rec.Code, rec.Body)
	}
}

func TestMutationWhileRunningIsConflict(t *testing.T) {
	s, h := newTestServer(t)

	release := make(chan struct{})
	stepped := make(chan struct{}, 1)
	s.Eng.OnStep = func(engine.Move) {
		select {
		case stepped <- struct{}{}:
		default:
		}
		<-release
	}
	done, err := s.Eng.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-stepped

	if rec := do(t, h, http.MethodPost, "/api/v1/reset", config.Default(3), true); rec.Code != http.StatusConflict {
		t.Fatalf("reset while busy: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/play", nil, true); rec.Code != http.StatusConflict {
		t.Fatalf("play while busy: %d", rec.Code)
	}

	close(release)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	_, h := newTestServer(t)

	save := map[string]any{"action": "save", "name": "first"}
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", save, true); rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", save, true); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate save: %d", rec.Code)
	}
	bad := map[string]any{"action": "save", "name": "no spaces"}
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", bad, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad name: %d", rec.Code)
	}
	load := map[string]any{"action": "load", "name": "first"}
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", load, true); rec.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rec.Code, rec.Body)
	}
	missing := map[string]any{"action": "load", "name": "nothere"}
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", missing, true); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/snapshots", nil, false)
	var list struct {
		Snapshots []string `json:"snapshots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Snapshots) != 1 {
		t.Fatalf("snapshots = %s (%v)", rec.Body, err)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own bucket")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("retry after = %d", got)
	}
	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("window should reset")
	}
}
