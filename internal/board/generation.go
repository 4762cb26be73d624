// Board generation using layered simplex noise.
// Noise values are ranked and cut into equal-sized bands, one per color, so
// every color appears about equally often while neighbouring tiles still
// tend to share a color.
package board

import (
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds board generation parameters.
type GenConfig struct {
	Width     int     // Tiles per row
	Height    int     // Tiles per column
	Seed      int64   // Random seed (0 = random)
	Frequency float64 // Base noise frequency; higher values give smaller color patches
}

// DefaultGenConfig returns the classic 5×5 negotiation board.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:     5,
		Height:    5,
		Seed:      0,
		Frequency: 0.45,
	}
}

// Generate creates a board with noise-clustered colors.
func Generate(cfg GenConfig) *Board {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	freq := cfg.Frequency
	if freq <= 0 {
		freq = DefaultGenConfig().Frequency
	}

	noise := opensimplex.NewNormalized(seed)

	type sample struct {
		index int
		value float64
	}
	n := cfg.Width * cfg.Height
	samples := make([]sample, 0, n)
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			samples = append(samples, sample{
				index: y*cfg.Width + x,
				value: octaveNoise(noise, float64(x), float64(y), 3, freq, 0.5),
			})
		}
	}

	// Rank by noise value; ties broken by index so generation is deterministic.
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].value != samples[j].value {
			return samples[i].value < samples[j].value
		}
		return samples[i].index < samples[j].index
	})

	// Band order is shuffled so the lowest noise does not always map to red.
	rng := rand.New(rand.NewSource(seed + 1))
	palette := rng.Perm(NumColors)

	tiles := make([]Color, n)
	for rank, s := range samples {
		band := rank * NumColors / n
		tiles[s.index] = Color(palette[band])
	}

	return &Board{Width: cfg.Width, Height: cfg.Height, Tiles: tiles}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
