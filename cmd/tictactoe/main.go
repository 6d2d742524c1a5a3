package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manav-chan/tic-tac-toe/internal/app"
	"github.com/manav-chan/tic-tac-toe/internal/config"
	"github.com/manav-chan/tic-tac-toe/internal/web"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", os.Getenv("TICTACTOE_CONFIG"), "Path to a YAML config file")
	addr       = flag.String("addr", "", "Listen address, overrides config and PORT")
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Addr = *addr
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	svc := app.NewService(
		app.WithLogger(log.Named("game")),
		app.WithThinkDelay(cfg.ThinkDelay),
		app.WithDefaultMode(cfg.Mode()),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewServer(svc, web.Options{Logger: log.Named("http"), Heartbeat: cfg.HeartbeatInterval}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	log.Info("starting server",
		zap.String("addr", cfg.Addr),
		zap.Stringer("difficulty", cfg.Mode()),
		zap.Duration("think_delay", cfg.ThinkDelay),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server stopped", zap.Error(err))
	}
}
