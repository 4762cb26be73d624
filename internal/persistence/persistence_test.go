package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/experiment"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		want error
	}{
		{"a", nil},
		{"Run42", nil},
		{"abcdefghij", nil},
		{"", ErrNameTooShort},
		{"abcdefghijk", ErrNameTooLong},
		{"has space", ErrForbiddenChar},
		{"dot.json", ErrForbiddenChar},
		{"../etc", ErrForbiddenChar},
		{"naïve", ErrForbiddenChar},
	}
	for _, tc := range cases {
		err := ValidateName(tc.name)
		if tc.want == nil && err != nil {
			t.Errorf("%q: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("%q: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func sampleConfig() config.Config {
	cfg := config.Default(21)
	cfg.Initiator = cfg.Initiator.WithParams(agents.Params{Order: agents.Order2, LearningRate: 0.123456789, CanLie: true})
	cfg.Responder = cfg.Responder.WithParams(agents.Params{Order: agents.Order1, LearningRate: 0.7})
	return cfg
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "configs"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return map[string]Store{"files": fs, "sqlite": db}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for backend, s := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			cfg := sampleConfig()
			if err := s.Save("trial1", cfg, false); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load("trial1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !got.Board.Equal(&cfg.Board) {
				t.Fatalf("board differs:\n%v\n%v", got.Board.String(), cfg.Board.String())
			}
			for _, pair := range [][2]config.AgentConfig{{cfg.Initiator, got.Initiator}, {cfg.Responder, got.Responder}} {
				want, have := pair[0], pair[1]
				if want.Order != have.Order || want.LearningRate != have.LearningRate || want.CanLie != have.CanLie {
					t.Fatalf("agent settings differ: %+v vs %+v", want, have)
				}
			}
			if !reflect.DeepEqual(cfg, got) {
				t.Fatalf("config differs:\n%+v\n%+v", cfg, got)
			}
		})
	}
}

func TestSaveRequiresOverwrite(t *testing.T) {
	for backend, s := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			first := sampleConfig()
			if err := s.Save("dup", first, false); err != nil {
				t.Fatalf("save: %v", err)
			}
			second := config.Default(99)
			if err := s.Save("dup", second, false); !errors.Is(err, ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}
			if got, _ := s.Load("dup"); got.Seed != first.Seed {
				t.Fatalf("snapshot replaced without overwrite")
			}
			if err := s.Save("dup", second, true); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if got, _ := s.Load("dup"); got.Seed != second.Seed {
				t.Fatalf("overwrite not applied")
			}

			names, err := s.List()
			if err != nil || len(names) != 1 || names[0] != "dup" {
				t.Fatalf("list = %v, %v", names, err)
			}
			if err := s.Delete("dup"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if ok, _ := s.Exists("dup"); ok {
				t.Fatal("snapshot still exists after delete")
			}
		})
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	for backend, s := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			if err := s.Save("bad name", sampleConfig(), true); !errors.Is(err, ErrForbiddenChar) {
				t.Fatalf("expected ErrForbiddenChar, got %v", err)
			}
			cfg := sampleConfig()
			cfg.Responder.CanLie = true
			if err := s.Save("liar", cfg, true); !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadFailures(t *testing.T) {
	for backend, s := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			if _, err := s.Load("missing"); !errors.Is(err, ErrLoadFailed) || !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing snapshot: %v", err)
			}
			if _, err := s.Load("no/slash"); !errors.Is(err, ErrLoadFailed) {
				t.Fatalf("bad name: %v", err)
			}
		})
	}
}

func TestFileStoreCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"board": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("broken"); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed, got %v", err)
	}
}

func TestExperimentRowsRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "exp.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	res := &experiment.Result{
		RunID:   "3f1c4a9e-0000-4000-8000-000000000001",
		Elapsed: 3 * time.Second,
		Rows: []experiment.Row{
			{Combination: 0, Role: "initiator", ToM: 2, LearningRate: 0.5, CanLie: true, Rounds: 4,
				InitialPoints: -10, FinalPoints: 95, Gain: 105, NrOffers: 2.5, ParetoEfficient: true, ParetoRate: 1, Elapsed: 40 * time.Millisecond},
			{Combination: 0, Role: "responder", ToM: 1, LearningRate: 0.9, Rounds: 4,
				InitialPoints: -20, FinalPoints: -20, NrOffers: 2.5, ParetoRate: 0.75, Elapsed: 40 * time.Millisecond},
		},
	}
	for i := range res.Rows {
		res.Rows[i].RunID = res.RunID
	}
	if err := db.SaveRun(`{"rounds":4}`, res); err != nil {
		t.Fatalf("save run: %v", err)
	}

	got, err := db.Rows(res.RunID)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if !reflect.DeepEqual(got, res.Rows) {
		t.Fatalf("rows differ:\n%+v\n%+v", got, res.Rows)
	}
	runs, err := db.Runs()
	if err != nil || len(runs) != 1 || runs[0] != res.RunID {
		t.Fatalf("runs = %v, %v", runs, err)
	}
	last, ok, err := db.GetMeta(MetaLastRun)
	if err != nil || !ok || last != res.RunID {
		t.Fatalf("last run = %q (%v, %v)", last, ok, err)
	}
}

func TestDBRecordsLastLoadedSnapshot(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, ok, err := db.GetMeta(MetaLastLoaded); err != nil || ok {
		t.Fatalf("fresh database has a last loaded snapshot (%v, %v)", ok, err)
	}
	if err := db.Save("alpha", sampleConfig(), false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := db.Load("alpha"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := db.Load("missing"); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed, got %v", err)
	}
	got, ok, err := db.GetMeta(MetaLastLoaded)
	if err != nil || !ok || got != "alpha" {
		t.Fatalf("last loaded = %q (%v, %v)", got, ok, err)
	}

	if err := db.SaveMeta("note", "first"); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if err := db.SaveMeta("note", "second"); err != nil {
		t.Fatalf("overwrite meta: %v", err)
	}
	if v, _, _ := db.GetMeta("note"); v != "second" {
		t.Fatalf("note = %q", v)
	}
}
