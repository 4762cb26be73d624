package entropy

import "testing"

func TestSeedIsPositiveAndVaries(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 100; i++ {
		s := Seed()
		if s <= 0 {
			t.Fatalf("seed %d not positive", s)
		}
		seen[s] = true
	}
	if len(seen) < 90 {
		t.Fatalf("only %d distinct seeds out of 100", len(seen))
	}
}
