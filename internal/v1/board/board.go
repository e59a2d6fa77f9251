// Package board implements the Gomoku rule engine: a 15x15 grid, stone
// placement, and win/draw detection. It is pure and deterministic — no
// locking, no I/O, no knowledge of rooms or connections, grounded on
// original_source/server/game_logic.py's GomokuBoard.
package board

import "fmt"

const Size = 15

// WinLength is the minimum contiguous run required to win. Overlines
// (runs longer than WinLength) also win, matching game_logic.py.
const WinLength = 5

// Cell holds the stone at a board position, or CellEmpty if empty.
type Cell string

const (
	CellEmpty Cell = ""
	CellBlack Cell = "black"
	CellWhite Cell = "white"
)

// Board is a 15x15 Gomoku grid. The zero value is ready to use.
type Board struct {
	grid  [Size][Size]Cell
	count int
}

// New returns an empty board.
func New() *Board {
	return &Board{}
}

// IsValidPosition reports whether (x, y) lies on the board.
func (b *Board) IsValidPosition(x, y int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size
}

// IsEmpty reports whether (x, y) has no stone. Callers must check
// IsValidPosition first; an out-of-range position is reported as empty.
func (b *Board) IsEmpty(x, y int) bool {
	if !b.IsValidPosition(x, y) {
		return true
	}
	return b.grid[y][x] == CellEmpty
}

// StoneAt returns the stone at (x, y), or CellEmpty if out of range or
// unoccupied.
func (b *Board) StoneAt(x, y int) Cell {
	if !b.IsValidPosition(x, y) {
		return CellEmpty
	}
	return b.grid[y][x]
}

// Place records a stone of the given color at (x, y). It returns an error
// if the position is off-board, already occupied, or the color is not
// "black"/"white" — mirroring game_logic.py's place_stone validation.
func (b *Board) Place(x, y int, color Cell) error {
	if color != CellBlack && color != CellWhite {
		return fmt.Errorf("board: invalid color %q", color)
	}
	if !b.IsValidPosition(x, y) {
		return fmt.Errorf("board: position (%d,%d) out of bounds", x, y)
	}
	if !b.IsEmpty(x, y) {
		return fmt.Errorf("board: position (%d,%d) already occupied", x, y)
	}
	b.grid[y][x] = color
	b.count++
	return nil
}

var directions = [4][2]int{
	{1, 0},  // horizontal
	{0, 1},  // vertical
	{1, 1},  // diagonal down-right / up-left
	{1, -1}, // diagonal down-left / up-right
}

// CheckWinner reports whether the stone just placed at (x, y) completes a
// run of WinLength or more in any of the four axes. It walks outward in
// both directions along each axis counting contiguous same-color stones,
// exactly as game_logic.py's check_winner.
func (b *Board) CheckWinner(x, y int) bool {
	color := b.StoneAt(x, y)
	if color == CellEmpty {
		return false
	}
	for _, d := range directions {
		count := 1
		count += b.countDirection(x, y, d[0], d[1], color)
		count += b.countDirection(x, y, -d[0], -d[1], color)
		if count >= WinLength {
			return true
		}
	}
	return false
}

func (b *Board) countDirection(x, y, dx, dy int, color Cell) int {
	n := 0
	cx, cy := x+dx, y+dy
	for b.IsValidPosition(cx, cy) && b.grid[cy][cx] == color {
		n++
		cx += dx
		cy += dy
	}
	return n
}

// IsFull reports whether every cell is occupied, used to detect a draw
// after a non-winning placement. game_logic.py computes this
// (is_board_full) but never acts on it; SPEC_FULL.md decides draw
// detection should actually be wired up.
func (b *Board) IsFull() bool {
	return b.count == Size*Size
}

// CountStones returns the number of stones placed so far.
func (b *Board) CountStones() int {
	return b.count
}

// Reset clears the board back to empty.
func (b *Board) Reset() {
	b.grid = [Size][Size]Cell{}
	b.count = 0
}

// Snapshot returns a deep copy of the grid as a row-major [15][15]string
// slice, suitable for direct JSON marshaling into a BOARD_UPDATE/GAME_START
// or SUCCESS payload. Mirrors game_logic.py's get_board_state deep copy.
func (b *Board) Snapshot() [][]string {
	out := make([][]string, Size)
	for row := 0; row < Size; row++ {
		out[row] = make([]string, Size)
		for col := 0; col < Size; col++ {
			out[row][col] = string(b.grid[row][col])
		}
	}
	return out
}
