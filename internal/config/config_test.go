package config

import (
	"errors"
	"reflect"
	"testing"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/board"
)

func TestGeneratedConfigIsValid(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		cfg := Default(seed)
		if err := cfg.Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if cfg.Initiator.Chips.Total() != DefaultChipsPerAgent {
			t.Fatalf("seed %d: initiator has %d chips", seed, cfg.Initiator.Chips.Total())
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(DefaultGenSpec(), 99)
	b := Generate(DefaultGenSpec(), 99)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed generated different configs:\n%+v\n%+v", a, b)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"tom out of range", func(c *Config) { c.Initiator.Order = 3 }},
		{"learning rate", func(c *Config) { c.Responder.LearningRate = 1.01 }},
		{"lie with order 1", func(c *Config) { c.Initiator.Order = agents.Order1; c.Initiator.CanLie = true }},
		{"goal index", func(c *Config) { c.Responder.Goal = 25 }},
		{"negative goal", func(c *Config) { c.Responder.Goal = -1 }},
		{"goal too close", func(c *Config) { c.Initiator.Goal = c.Initiator.Start }},
		{"start index", func(c *Config) { c.Initiator.Start = 100 }},
		{"negative chips", func(c *Config) { c.Initiator.Chips[board.Red] = -1 }},
		{"budget", func(c *Config) { c.MaxOffers = 0 }},
		{"board shape", func(c *Config) { c.Board.Tiles = c.Board.Tiles[:3] }},
		{"board color", func(c *Config) { c.Board.Tiles[0] = board.Color(42) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default(7).Clone()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLyingWithoutOrder2WrapsSentinel(t *testing.T) {
	cfg := Default(3)
	cfg.Responder.Order = agents.Order1
	cfg.Responder.CanLie = true
	err := cfg.Validate()
	if !errors.Is(err, agents.ErrLyingRequiresOrder2) {
		t.Fatalf("expected ErrLyingRequiresOrder2 in chain, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := Default(11)
	cfg.Initiator = cfg.Initiator.WithParams(agents.Params{Order: agents.Order2, LearningRate: 0.37, CanLie: true})
	cfg.Responder = cfg.Responder.WithParams(agents.Params{Order: agents.Order1, LearningRate: 0.9})

	data, err := Encode(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(cfg, back) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", cfg, back)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	if _, err := Decode([]byte(`{"board":`)); err == nil {
		t.Fatal("expected syntax error")
	}
	cfg := Default(5)
	cfg.MaxOffers = -2
	data, err := Encode(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
