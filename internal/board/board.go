// Package board provides the colored tile grid, cell coordinates and chip
// multisets the negotiating agents trade over.
// Cells are addressed by (x, y) with the origin in the top-left corner.
package board

import (
	"fmt"
	"strings"
)

// Color is the color of a tile and of the chip needed to enter it.
type Color uint8

const (
	Red Color = iota
	Green
	Blue
	Yellow
	Purple
)

// NumColors is the size of the color palette.
const NumColors = 5

var colorNames = [NumColors]string{"red", "green", "blue", "yellow", "purple"}

// String returns the lowercase color name.
func (c Color) String() string {
	if int(c) < NumColors {
		return colorNames[c]
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

// Valid reports whether c is part of the palette.
func (c Color) Valid() bool {
	return int(c) < NumColors
}

// MarshalText encodes the color by name so boards stay readable in JSON.
func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid color %d", uint8(c))
	}
	return []byte(colorNames[c]), nil
}

// UnmarshalText decodes a color name.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor looks up a color by name (case-insensitive).
func ParseColor(name string) (Color, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range colorNames {
		if n == name {
			return Color(i), nil
		}
	}
	return 0, fmt.Errorf("unknown color %q", name)
}

// Cell is a position on the board.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// cellDirections are the four orthogonal moves.
var cellDirections = [4]Cell{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
}

// Neighbors returns the four orthogonally adjacent cells (possibly off-board).
func (c Cell) Neighbors() [4]Cell {
	var result [4]Cell
	for i, dir := range cellDirections {
		result[i] = Cell{X: c.X + dir.X, Y: c.Y + dir.Y}
	}
	return result
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Distance returns the Manhattan distance between two cells.
func Distance(a, b Cell) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Board is an immutable W×H grid of colored tiles stored row-major.
type Board struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Tiles  []Color `json:"tiles"`
}

// New creates a board from row-major tile colors.
func New(width, height int, tiles []Color) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("board dimensions must be positive, got %dx%d", width, height)
	}
	if len(tiles) != width*height {
		return nil, fmt.Errorf("board %dx%d needs %d tiles, got %d", width, height, width*height, len(tiles))
	}
	for i, c := range tiles {
		if !c.Valid() {
			return nil, fmt.Errorf("tile %d has invalid color %d", i, uint8(c))
		}
	}
	b := &Board{Width: width, Height: height, Tiles: make([]Color, len(tiles))}
	copy(b.Tiles, tiles)
	return b, nil
}

// InBounds returns true if the cell lies on the board.
func (b *Board) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < b.Width && c.Y < b.Height
}

// ColorAt returns the color of an in-bounds cell.
func (b *Board) ColorAt(c Cell) Color {
	return b.Tiles[b.Index(c)]
}

// Index returns the row-major board index of a cell.
func (b *Board) Index(c Cell) int {
	return c.Y*b.Width + c.X
}

// CellAt converts a board index back to a cell.
func (b *Board) CellAt(index int) Cell {
	return Cell{X: index % b.Width, Y: index / b.Width}
}

// ValidIndex reports whether index addresses a cell on the board.
func (b *Board) ValidIndex(index int) bool {
	return index >= 0 && index < b.CellCount()
}

// Center returns the middle cell (rounded towards the origin).
func (b *Board) Center() Cell {
	return Cell{X: (b.Width - 1) / 2, Y: (b.Height - 1) / 2}
}

// CellCount returns the number of tiles.
func (b *Board) CellCount() int {
	return b.Width * b.Height
}

// Cells returns every cell in board-index order.
func (b *Board) Cells() []Cell {
	cells := make([]Cell, 0, b.CellCount())
	for i := 0; i < b.CellCount(); i++ {
		cells = append(cells, b.CellAt(i))
	}
	return cells
}

// ColorCounts returns how many tiles of each color the board has.
func (b *Board) ColorCounts() [NumColors]int {
	var counts [NumColors]int
	for _, c := range b.Tiles {
		counts[c]++
	}
	return counts
}

// Equal reports whether two boards have the same shape and tiles.
func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || len(b.Tiles) != len(o.Tiles) {
		return false
	}
	for i := range b.Tiles {
		if b.Tiles[i] != o.Tiles[i] {
			return false
		}
	}
	return true
}

// String renders the board as rows of color initials.
func (b *Board) String() string {
	var sb strings.Builder
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if x > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte(strings.ToUpper(b.ColorAt(Cell{X: x, Y: y}).String())[0])
		}
		if y < b.Height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
