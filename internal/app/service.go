package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/manav-chan/tic-tac-toe/internal/domain"
	"go.uber.org/zap"
)

// Errors exposed by the service layer.
var (
	ErrNotFound        = errors.New("game not found")
	ErrNotAPlayer      = errors.New("not a player")
	ErrTurnInFlight    = errors.New("computer is thinking")
	ErrNotComputerTurn = errors.New("not the computer's turn")
)

// Phase is the turn state of a game.
type Phase uint8

const (
	AwaitingHuman Phase = iota
	AwaitingComputer
	Terminal
)

func (p Phase) String() string {
	switch p {
	case AwaitingComputer:
		return "awaiting_computer"
	case Terminal:
		return "terminal"
	default:
		return "awaiting_human"
	}
}

// Score tallies completed games. It survives retries and is only cleared by
// ResetScore.
type Score struct {
	Human    int
	Computer int
	Ties     int
}

// GameState is the in-memory state tracked per game.
type GameState struct {
	ID     string
	Owner  string
	Board  domain.Board
	Result domain.Result
	Phase  Phase
	Mode   domain.Mode
	Score  Score
	// LastComputerMove is the index of the computer's latest mark, or -1.
	LastComputerMove int
	Created          time.Time
	Updated          time.Time

	// generation changes on every reset so stale scheduled turns are dropped.
	generation uint64
}

type subscriber struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Service manages games and subscribers.
type Service struct {
	mu          sync.Mutex
	games       map[string]*GameState
	subs        map[string]map[*subscriber]struct{}
	render      func(GameState) []byte
	selector    *domain.Selector
	log         *zap.Logger
	thinkDelay  time.Duration
	defaultMode domain.Mode
	after       func(time.Duration, func())
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithThinkDelay delays the computer's reply after a human move played via
// Play. Zero replies immediately.
func WithThinkDelay(d time.Duration) Option {
	return func(s *Service) { s.thinkDelay = d }
}

// WithDefaultMode sets the difficulty of newly created games.
func WithDefaultMode(m domain.Mode) Option {
	return func(s *Service) { s.defaultMode = m }
}

// WithRandSource seeds the random move selector.
func WithRandSource(src rand.Source) Option {
	return func(s *Service) { s.selector = domain.NewSelector(src) }
}

// NewService creates a service with a default renderer (encodes nothing useful).
func NewService(opts ...Option) *Service {
	return NewServiceWithRenderer(func(gs GameState) []byte { return nil }, opts...)
}

// NewServiceWithRenderer allows injecting a renderer for broadcast payloads.
func NewServiceWithRenderer(renderer func(GameState) []byte, opts ...Option) *Service {
	if renderer == nil {
		renderer = func(gs GameState) []byte { return nil }
	}
	s := &Service{
		games:  make(map[string]*GameState),
		subs:   make(map[string]map[*subscriber]struct{}),
		render: renderer,
		log:    zap.NewNop(),
		after:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.selector == nil {
		s.selector = domain.NewSelector(nil)
	}
	return s
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(GameState) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(gs GameState) []byte { return nil }
		return
	}
	s.render = renderer
}

// CreateGame creates and registers a new game owned by playerID.
func (s *Service) CreateGame(playerID string) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := newID()
	now := time.Now()
	gs := &GameState{
		ID:               id,
		Owner:            playerID,
		Result:           domain.Result{Outcome: domain.InProgress, Line: -1},
		Mode:             s.defaultMode,
		LastComputerMove: -1,
		Created:          now,
		Updated:          now,
	}
	s.games[id] = gs
	s.log.Info("game created", zap.String("game", id), zap.Stringer("mode", gs.Mode))
	cp := *gs
	return &cp, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return nil, false
	}
	cp := *gs
	return &cp, true
}

// NewGame clears the board for a retry. The score is kept; a pending
// computer turn is discarded.
func (s *Service) NewGame(id, playerID string) (*GameState, error) {
	return s.update(id, playerID, func(gs *GameState) error {
		gs.Board = domain.Board{}
		gs.Result = domain.Result{Outcome: domain.InProgress, Line: -1}
		gs.Phase = AwaitingHuman
		gs.LastComputerMove = -1
		gs.generation++
		return nil
	})
}

// ResetScore zeroes the win, loss and tie counters.
func (s *Service) ResetScore(id, playerID string) (*GameState, error) {
	return s.update(id, playerID, func(gs *GameState) error {
		gs.Score = Score{}
		return nil
	})
}

// SetDifficulty changes how the computer picks its next moves.
func (s *Service) SetDifficulty(id, playerID string, mode domain.Mode) (*GameState, error) {
	return s.update(id, playerID, func(gs *GameState) error {
		gs.Mode = mode
		return nil
	})
}

// ApplyHumanMove validates owner and phase, then places the human mark.
func (s *Service) ApplyHumanMove(id, playerID string, index int) (*GameState, error) {
	return s.update(id, playerID, func(gs *GameState) error {
		switch gs.Phase {
		case AwaitingComputer:
			return ErrTurnInFlight
		case Terminal:
			return domain.ErrGameOver
		}
		if err := gs.Board.Apply(index, domain.Human); err != nil {
			return err
		}
		s.settleLocked(gs, AwaitingComputer)
		return nil
	})
}

// ComputerTurn selects and places the computer's mark, returning its index.
func (s *Service) ComputerTurn(id string) (int, *GameState, error) {
	idx := -1
	gs, err := s.update(id, "", func(gs *GameState) error {
		var err error
		idx, err = s.computerTurnLocked(gs)
		return err
	})
	return idx, gs, err
}

// Play applies a human move and then lets the computer reply, after the
// think delay when one is configured. The returned state is the latest one
// visible to the caller.
func (s *Service) Play(id, playerID string, index int) (*GameState, error) {
	gs, err := s.ApplyHumanMove(id, playerID, index)
	if err != nil || gs.Phase != AwaitingComputer {
		return gs, err
	}
	if s.thinkDelay <= 0 {
		_, gs, err = s.ComputerTurn(id)
		return gs, err
	}
	gen := gs.generation
	s.after(s.thinkDelay, func() { s.scheduledTurn(id, gen) })
	return gs, nil
}

func (s *Service) scheduledTurn(id string, gen uint64) {
	_, err := s.update(id, "", func(gs *GameState) error {
		if gs.generation != gen || gs.Phase != AwaitingComputer {
			return errStale
		}
		_, err := s.computerTurnLocked(gs)
		return err
	})
	if err != nil && !errors.Is(err, errStale) {
		s.log.Error("scheduled computer turn failed", zap.String("game", id), zap.Error(err))
	}
}

var errStale = errors.New("stale turn")

func (s *Service) computerTurnLocked(gs *GameState) (int, error) {
	if gs.Phase != AwaitingComputer {
		return -1, ErrNotComputerTurn
	}
	idx, err := s.selector.SelectMove(gs.Board, gs.Mode)
	if err != nil {
		return -1, fmt.Errorf("select computer move: %w", err)
	}
	if err := gs.Board.Apply(idx, domain.Computer); err != nil {
		return -1, fmt.Errorf("apply computer move %d: %w", idx, err)
	}
	gs.LastComputerMove = idx
	s.log.Debug("computer moved", zap.String("game", gs.ID), zap.Int("index", idx), zap.Stringer("mode", gs.Mode))
	s.settleLocked(gs, AwaitingHuman)
	return idx, nil
}

// settleLocked evaluates the board after a move and tallies a finished game
// exactly once.
func (s *Service) settleLocked(gs *GameState, next Phase) {
	gs.Result = gs.Board.Result()
	if gs.Result.Outcome == domain.InProgress {
		gs.Phase = next
		return
	}
	gs.Phase = Terminal
	switch {
	case gs.Result.Outcome == domain.Tied:
		gs.Score.Ties++
	case gs.Result.Winner == domain.Human:
		gs.Score.Human++
	default:
		gs.Score.Computer++
	}
	s.log.Info("game over",
		zap.String("game", gs.ID),
		zap.Stringer("outcome", gs.Result.Outcome),
		zap.Stringer("winner", gs.Result.Winner),
	)
}

// update runs fn on the game under lock and broadcasts the new state when fn
// succeeds. An empty playerID skips the owner check.
func (s *Service) update(id, playerID string, fn func(*GameState) error) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	if playerID != "" && gs.Owner != playerID {
		return nil, ErrNotAPlayer
	}
	if err := fn(gs); err != nil {
		cp := *gs
		return &cp, err
	}
	gs.Updated = time.Now()
	cp := *gs
	s.broadcastLocked(id, s.render(cp))
	return &cp, nil
}

// broadcastLocked fans out without blocking. A subscriber that has not read
// the previous payload gets it replaced by the newest one.
func (s *Service) broadcastLocked(id string, payload []byte) {
	for sub := range s.subs[id] {
		select {
		case sub.ch <- payload:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- payload
		}
	}
}

// Subscribe registers a subscriber for a game. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, func() {}, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}
