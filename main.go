package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nagababu23/collaborative-drawing-canvas/board"
	"github.com/Nagababu23/collaborative-drawing-canvas/config"
	"github.com/Nagababu23/collaborative-drawing-canvas/hub"
	"github.com/Nagababu23/collaborative-drawing-canvas/metrics"
	"github.com/Nagababu23/collaborative-drawing-canvas/protocol"
	ws "github.com/Nagababu23/collaborative-drawing-canvas/websocket"
)

type server struct {
	cfg      *config.Config
	registry *hub.Hub
	boards   *board.Manager
	handler  *protocol.Handler
	upgrader websocket.Upgrader
}

func newServer(cfg *config.Config) *server {
	registry := hub.New()
	boards := board.NewManager()

	s := &server{
		cfg:      cfg,
		registry: registry,
		boards:   boards,
		handler:  protocol.NewHandler(registry, boards, protocol.WithCursorLimit(cfg.CursorRate, cfg.CursorBurst)),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	s := newServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.RoomIdleTTL > 0 {
		go board.NewSweeper(s.boards, s.registry, cfg.RoomIdleTTL).Run(ctx)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s.routes(),
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "defaultRoom", cfg.DefaultRoom, "origins", cfg.AllowedOrigins)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowCredentials: true,
		}),
	)

	r.Get("/ws", s.wsHandler)
	r.Get("/health", healthHandler)
	r.Get("/stats", s.statsHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (s *server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade error", "error", err)
		return
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		room = s.cfg.DefaultRoom
	}

	ws.NewConn(uuid.New().String(), room, conn, s.handler).Start()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) statsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, clients := s.registry.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients, "boards": s.boards.Count()})
}
