package domain

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Mode selects how the computer picks its move.
type Mode uint8

const (
	Random Mode = iota
	Optimal
)

func (m Mode) String() string {
	if m == Optimal {
		return "optimal"
	}
	return "random"
}

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown difficulty")

// ParseMode accepts "random" or "optimal", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random":
		return Random, nil
	case "optimal":
		return Optimal, nil
	}
	return Random, fmt.Errorf("%w %q", ErrUnknownMode, s)
}

// Selector chooses the computer's moves.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector drawing random moves from src. A nil src is
// seeded from the clock.
func NewSelector(src rand.Source) *Selector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Selector{rng: rand.New(src)}
}

// SelectMove returns the computer's next move for b. The board is not
// modified.
func (s *Selector) SelectMove(b Board, mode Mode) (int, error) {
	if b.Result().Outcome == Won {
		return -1, ErrGameOver
	}
	empty := b.EmptyCells()
	if len(empty) == 0 {
		return -1, ErrNoEmptyCells
	}
	if mode == Optimal {
		return Minimax(&b, Computer, math.MinInt, math.MaxInt).Index, nil
	}
	s.mu.Lock()
	i := s.rng.Intn(len(empty))
	s.mu.Unlock()
	return empty[i], nil
}

// Scored is a candidate move with its minimax value. Index is -1 for
// terminal positions.
type Scored struct {
	Index int
	Score int
}

// Minimax searches b with alpha-beta pruning, mover to play. Computer
// maximizes and Human minimizes; ties keep the lowest index. Moves are
// played on b and undone, so b is unchanged on return. A mover other than
// Human or Computer scores 0 without searching.
func Minimax(b *Board, mover Cell, alpha, beta int) Scored {
	if _, ok := b.CheckWin(Human); ok {
		return Scored{Index: -1, Score: -1}
	}
	if _, ok := b.CheckWin(Computer); ok {
		return Scored{Index: -1, Score: 1}
	}
	empty := b.EmptyCells()
	if len(empty) == 0 || mover.Opponent() == Empty {
		return Scored{Index: -1, Score: 0}
	}

	best := Scored{Index: -1, Score: math.MaxInt}
	if mover == Computer {
		best.Score = math.MinInt
	}
	for _, idx := range empty {
		b[idx] = mover
		score := Minimax(b, mover.Opponent(), alpha, beta).Score
		b[idx] = Empty

		if mover == Computer {
			if score > best.Score {
				best = Scored{Index: idx, Score: score}
			}
			alpha = max(alpha, score)
		} else {
			if score < best.Score {
				best = Scored{Index: idx, Score: score}
			}
			beta = min(beta, score)
		}
		if beta <= alpha {
			break
		}
	}
	return best
}
