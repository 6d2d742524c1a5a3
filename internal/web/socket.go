package web

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/manav-chan/tic-tac-toe/internal/app"
	"github.com/manav-chan/tic-tac-toe/internal/domain"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Message is the websocket envelope in both directions.
type Message struct {
	Type     string                 `json:"type"`
	Contents map[string]interface{} `json:"contents"`
}

// Inbound requests
type MakeMoveRequest struct {
	Index *int `mapstructure:"index"`
}

type SetDifficultyRequest struct {
	Mode string `mapstructure:"mode"`
}

// Outbound messages
type GameStateBroadcast struct {
	ID               string    `mapstructure:"id"`
	Board            [9]string `mapstructure:"board"`
	Phase            string    `mapstructure:"phase"`
	Outcome          string    `mapstructure:"outcome"`
	Winner           string    `mapstructure:"winner"`
	WinningLine      []int     `mapstructure:"winning_line"`
	LastComputerMove int       `mapstructure:"last_computer_move"`
	Mode             string    `mapstructure:"mode"`
	Score            ScoreView `mapstructure:"score"`
	Owner            bool      `mapstructure:"owner"`
}

type ScoreView struct {
	Human    int `mapstructure:"human"`
	Computer int `mapstructure:"computer"`
	Ties     int `mapstructure:"ties"`
}

type ErrorResponse struct {
	Reason string `mapstructure:"reason"`
}

// toMessage wraps contents in an envelope named after its type.
func (h *handlers) toMessage(contents interface{}) Message {
	var m map[string]interface{}
	if err := mapstructure.Decode(contents, &m); err != nil {
		h.log.Error("encode websocket message", zap.String("type", fmt.Sprintf("%T", contents)), zap.Error(err))
	}
	return Message{Type: reflect.TypeOf(contents).Name(), Contents: m}
}

// decodeContents decodes request contents strictly: unknown keys and
// fractional numbers for integer fields are errors.
func decodeContents(contents map[string]interface{}, out interface{}) error {
	if contents == nil {
		contents = map[string]interface{}{}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		DecodeHook:  integralHook,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(contents)
}

func integralHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
		if f := reflect.ValueOf(data).Float(); f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
	}
	return data, nil
}

func stateBroadcast(gs app.GameState, playerID string) GameStateBroadcast {
	b := GameStateBroadcast{
		ID:               gs.ID,
		Phase:            gs.Phase.String(),
		Outcome:          gs.Result.Outcome.String(),
		Winner:           gs.Result.Winner.String(),
		WinningLine:      gs.Result.Cells(),
		LastComputerMove: gs.LastComputerMove,
		Mode:             gs.Mode.String(),
		Score:            ScoreView(gs.Score),
		Owner:            playerID != "" && gs.Owner == playerID,
	}
	for i, c := range gs.Board {
		b.Board[i] = c.String()
	}
	return b
}

func (h *handlers) socket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	// Cookies cannot be set on an upgraded response; unknown visitors watch.
	pid := playerID(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("game", id), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		return
	}
	defer unsub()

	replies := make(chan Message, 4)
	if gs, ok := h.svc.Get(id); ok {
		replies <- h.toMessage(stateBroadcast(*gs, pid))
	}
	go h.writeLoop(ctx, cancel, conn, id, pid, updates, replies)

	for {
		var req Message
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if reply, ok := h.handleSocketRequest(id, pid, req); ok {
			select {
			case replies <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleSocketRequest applies one inbound request. State changes reach the
// client through the subscription, so only failures produce a direct reply.
func (h *handlers) handleSocketRequest(id, pid string, req Message) (Message, bool) {
	if pid == "" {
		return h.toMessage(ErrorResponse{Reason: "You are a spectator"}), true
	}
	var err error
	switch req.Type {
	case "MakeMoveRequest":
		var contents MakeMoveRequest
		if derr := decodeContents(req.Contents, &contents); derr != nil {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidMove, derr)
		} else if contents.Index == nil {
			err = fmt.Errorf("%w: missing index", domain.ErrInvalidMove)
		} else {
			_, err = h.svc.Play(id, pid, *contents.Index)
		}
	case "RetryRequest":
		_, err = h.svc.NewGame(id, pid)
	case "ResetScoreRequest":
		_, err = h.svc.ResetScore(id, pid)
	case "SetDifficultyRequest":
		var contents SetDifficultyRequest
		if err := decodeContents(req.Contents, &contents); err != nil {
			return h.toMessage(ErrorResponse{Reason: "Unable to parse SetDifficultyRequest"}), true
		}
		var mode domain.Mode
		if mode, err = domain.ParseMode(contents.Mode); err == nil {
			_, err = h.svc.SetDifficulty(id, pid, mode)
		}
	default:
		return h.toMessage(ErrorResponse{Reason: "Unknown request type " + req.Type}), true
	}
	if err != nil {
		return h.toMessage(ErrorResponse{Reason: h.errorMessage(id, err)}), true
	}
	return Message{}, false
}

// writeLoop is the only writer on conn.
func (h *handlers) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id, pid string, updates <-chan []byte, replies <-chan Message) {
	defer cancel()
	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()
	write := func(m Message) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			h.log.Debug("websocket write failed", zap.String("game", id), zap.Error(err))
			_ = conn.Close()
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-replies:
			if !write(m) {
				return
			}
		case _, ok := <-updates:
			if !ok {
				_ = conn.Close()
				return
			}
			gs, found := h.svc.Get(id)
			if !found || !write(h.toMessage(stateBroadcast(*gs, pid))) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
