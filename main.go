package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sustentus/collab/bus"
	"github.com/sustentus/collab/client"
	"github.com/sustentus/collab/config"
	"github.com/sustentus/collab/event"
	"github.com/sustentus/collab/hub"
	"github.com/sustentus/collab/state"
	"github.com/sustentus/collab/ws"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error(fmt.Sprintf("load config: %v", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error(fmt.Sprintf("invalid config: %v", err))
		os.Exit(1)
	}

	serverCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.New(
		hub.WithLogger(logger.With(slog.String("component", "hub"))),
		hub.WithActivityInterval(cfg.ActivityInterval),
	)
	h.Start()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok: %d connections, %d rooms\n", h.ConnCount(), h.RoomCount())
	})
	r.Handle("/ws", h)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("server exit: %v", err))
			os.Exit(1)
		}
	}()

	// Demo client: connect over a real websocket, join a project room and
	// report activity as it arrives.
	b := bus.New(bus.WithLogger(logger.With(slog.String("component", "bus"))))
	store := state.NewStore(b,
		state.WithRetention(cfg.ActivityRetention),
		state.WithLogger(logger.With(slog.String("component", "store"))))
	transport := ws.NewTransport(fmt.Sprintf("ws://%s/ws", cfg.Addr),
		ws.WithLogger(logger.With(slog.String("component", "transport"))))
	cl := client.New(transport, b,
		client.WithLogger(logger.With(slog.String("component", "client"))),
		client.WithHeartbeatInterval(cfg.Heartbeat),
		client.WithReconnect(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts))

	b.On(event.Connected, func(...any) {
		cl.JoinProject("demo")
		cl.UpdatePresence("david", event.StatusOnline)
		cl.SendChatMessage("demo", "Hello from the demo client!", "david")
	})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-serverCtx.Done():
				return
			case <-ticker.C:
				last, ok := store.LastActivity()
				if !ok {
					continue
				}
				logger.Info("status",
					slog.String("connection", store.ConnectionStatus()),
					slog.Int("online", len(store.OnlineUsers())),
					slog.String("last_activity", last.Type))
			}
		}
	}()

	// Give the listener a moment before dialing.
	time.Sleep(100 * time.Millisecond)
	cl.Connect()

	<-serverCtx.Done()
	logger.Info("shutting down")

	cl.Disconnect()
	store.Close()
	h.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("server shutdown: %v", err))
		os.Exit(1)
	}
}
