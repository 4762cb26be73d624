package board

import (
	"fmt"
	"math/rand"
	"strings"
)

// Chips is a multiset of colored tokens, one count per palette color.
// A fixed-size array keeps it comparable and usable as a map key.
type Chips [NumColors]int

// ChipsOf builds a multiset from a list of colors.
func ChipsOf(colors ...Color) Chips {
	var c Chips
	for _, col := range colors {
		c[col]++
	}
	return c
}

// RandomChips draws n chips uniformly from the palette.
func RandomChips(rng *rand.Rand, n int) Chips {
	var c Chips
	for i := 0; i < n; i++ {
		c[rng.Intn(NumColors)]++
	}
	return c
}

// Total returns the number of chips.
func (c Chips) Total() int {
	n := 0
	for _, qty := range c {
		n += qty
	}
	return n
}

// IsEmpty returns true if no chips are held.
func (c Chips) IsEmpty() bool {
	for _, qty := range c {
		if qty != 0 {
			return false
		}
	}
	return true
}

// Valid reports whether every count is non-negative.
func (c Chips) Valid() bool {
	for _, qty := range c {
		if qty < 0 {
			return false
		}
	}
	return true
}

// Add returns the component-wise sum.
func (c Chips) Add(o Chips) Chips {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Sub returns the component-wise difference. The result may be invalid.
func (c Chips) Sub(o Chips) Chips {
	for i := range c {
		c[i] -= o[i]
	}
	return c
}

// Covers reports whether c holds at least the chips in o.
func (c Chips) Covers(o Chips) bool {
	for i := range c {
		if c[i] < o[i] {
			return false
		}
	}
	return true
}

// String renders counts as e.g. "R2 G0 B1 Y0 P1".
func (c Chips) String() string {
	parts := make([]string, NumColors)
	for i, qty := range c {
		parts[i] = fmt.Sprintf("%c%d", strings.ToUpper(colorNames[i])[0], qty)
	}
	return strings.Join(parts, " ")
}
