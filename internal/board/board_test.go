package board

import (
	"encoding/json"
	"math/rand"
	"testing"
)

func TestNewRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name   string
		w, h   int
		tiles  []Color
		wantOK bool
	}{
		{name: "ok", w: 2, h: 1, tiles: []Color{Red, Blue}, wantOK: true},
		{name: "zero width", w: 0, h: 1, tiles: nil},
		{name: "short tiles", w: 2, h: 2, tiles: []Color{Red, Blue}},
		{name: "bad color", w: 1, h: 1, tiles: []Color{Color(9)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.w, tc.h, tc.tiles)
			if (err == nil) != tc.wantOK {
				t.Fatalf("New err=%v, wantOK=%v", err, tc.wantOK)
			}
		})
	}
}

func TestIndexRoundTrip(t *testing.T) {
	b := Generate(GenConfig{Width: 4, Height: 3, Seed: 7})
	for i := 0; i < b.CellCount(); i++ {
		if got := b.Index(b.CellAt(i)); got != i {
			t.Fatalf("index %d round-tripped to %d", i, got)
		}
	}
	if b.Center() != (Cell{X: 1, Y: 1}) {
		t.Fatalf("unexpected center %v", b.Center())
	}
}

func TestGenerateIsDeterministicAndBalanced(t *testing.T) {
	cfg := GenConfig{Width: 5, Height: 5, Seed: 42}
	a := Generate(cfg)
	b := Generate(cfg)
	if !a.Equal(b) {
		t.Fatalf("same seed produced different boards:\n%s\n---\n%s", a, b)
	}
	for color, n := range a.ColorCounts() {
		if n != 5 {
			t.Fatalf("color %s appears %d times, want 5", Color(color), n)
		}
	}
}

func TestColorJSONUsesNames(t *testing.T) {
	b, err := New(2, 1, []Color{Green, Purple})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"width":2,"height":1,"tiles":["green","purple"]}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
	var back Board
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(b) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestChipsArithmetic(t *testing.T) {
	a := ChipsOf(Red, Red, Blue)
	b := ChipsOf(Blue, Purple)
	sum := a.Add(b)
	if sum.Total() != 5 || sum[Blue] != 2 {
		t.Fatalf("unexpected sum %v", sum)
	}
	if !sum.Covers(a) || a.Covers(sum) {
		t.Fatalf("covers is wrong for %v / %v", sum, a)
	}
	if d := a.Sub(b); d.Valid() {
		t.Fatalf("expected invalid difference, got %v", d)
	}
	if got := RandomChips(rand.New(rand.NewSource(1)), 4).Total(); got != 4 {
		t.Fatalf("random chips total %d", got)
	}
}
