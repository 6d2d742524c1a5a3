package domain

import (
	"errors"
	"fmt"
)

// Cell represents a board cell state.
type Cell uint8

const (
	Empty Cell = iota
	Human
	Computer
)

func (c Cell) String() string {
	switch c {
	case Human:
		return "O"
	case Computer:
		return "X"
	default:
		return ""
	}
}

// Opponent returns the other player. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case Human:
		return Computer
	case Computer:
		return Human
	default:
		return Empty
	}
}

// Board is a fixed 3x3 board stored row-major.
type Board [9]Cell

// WinLine is a triple of board indices that wins when fully marked.
type WinLine [3]int

var winLines = [8]WinLine{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// WinLines returns the eight winning lines in their fixed order.
func WinLines() [8]WinLine { return winLines }

// Errors returned by domain operations.
var (
	ErrInvalidMove  = errors.New("invalid move")
	ErrGameOver     = errors.New("game over")
	ErrNoEmptyCells = errors.New("no empty cells")
)

// Apply places player's mark at index.
func (b *Board) Apply(index int, player Cell) error {
	if player != Human && player != Computer {
		return fmt.Errorf("%w: no player %d", ErrInvalidMove, player)
	}
	if index < 0 || index >= len(b) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidMove, index)
	}
	if b.Result().Outcome != InProgress {
		return ErrGameOver
	}
	if b[index] != Empty {
		return fmt.Errorf("%w: cell %d occupied", ErrInvalidMove, index)
	}
	b[index] = player
	return nil
}

// CheckWin returns the position in WinLines of the first line fully marked by
// player.
func (b *Board) CheckWin(player Cell) (int, bool) {
	if player == Empty {
		return -1, false
	}
	for i, ln := range winLines {
		if b[ln[0]] == player && b[ln[1]] == player && b[ln[2]] == player {
			return i, true
		}
	}
	return -1, false
}

// EmptyCells lists the empty indices in ascending order.
func (b *Board) EmptyCells() []int {
	out := make([]int, 0, len(b))
	for i, c := range b {
		if c == Empty {
			out = append(out, i)
		}
	}
	return out
}

// IsFull reports whether no empty cell remains.
func (b *Board) IsFull() bool { return len(b.EmptyCells()) == 0 }

// Marks counts the non-empty cells.
func (b *Board) Marks() int { return len(b) - len(b.EmptyCells()) }

// Outcome is the coarse state of a board.
type Outcome uint8

const (
	InProgress Outcome = iota
	Won
	Tied
)

func (o Outcome) String() string {
	switch o {
	case Won:
		return "won"
	case Tied:
		return "tied"
	default:
		return "in_progress"
	}
}

// Result describes a board's outcome. Winner and Line are set only for Won.
type Result struct {
	Outcome Outcome
	Winner  Cell
	Line    int
}

// Cells returns the board indices of the winning line, or nil.
func (r Result) Cells() []int {
	if r.Outcome != Won {
		return nil
	}
	ln := winLines[r.Line]
	return ln[:]
}

// Result evaluates the board. Human wins are checked before Computer wins.
func (b *Board) Result() Result {
	for _, p := range [2]Cell{Human, Computer} {
		if line, ok := b.CheckWin(p); ok {
			return Result{Outcome: Won, Winner: p, Line: line}
		}
	}
	if b.IsFull() {
		return Result{Outcome: Tied, Line: -1}
	}
	return Result{Outcome: InProgress, Line: -1}
}
