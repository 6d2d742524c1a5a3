package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/manav-chan/tic-tac-toe/internal/app"
	"go.uber.org/zap"
)

// Options tunes the HTTP layer. Zero values fall back to defaults.
type Options struct {
	Logger    *zap.Logger
	Heartbeat time.Duration
	// CheckOrigin validates websocket upgrades; nil accepts same-host origins.
	CheckOrigin func(*http.Request) bool
}

// NewServer wires routes and returns an http.Handler. It installs the board
// renderer used for subscriber broadcasts on s.
func NewServer(s *app.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	h := &handlers{
		svc:       s,
		tpl:       loadTemplates(),
		log:       opts.Logger,
		heartbeat: opts.Heartbeat,
		upgrader:  websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
	}
	s.SetRenderer(func(gs app.GameState) []byte { return h.renderBoard(gs, "") })

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Get("/healthz", h.health)
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/play", h.play)
		r.Post("/retry", h.retry)
		r.Post("/score/reset", h.resetScore)
		r.Post("/difficulty", h.difficulty)
		r.Get("/events", h.events)
		r.Get("/ws", h.socket)
	})
	return r
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
