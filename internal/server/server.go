// Package server wires the HTTP JSON surface and the websocket endpoint
// around the relay core and the message store.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"private-messenger/internal/relay"
	"private-messenger/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	hub           *relay.Hub
	afterShutdown []func()
}

// NewServer builds a Server over provided store and relay hub. JSON endpoints
// are wrapped with request logging and POST-JSON enforcement; the websocket
// endpoint is mounted bare since the upgrade handshake is a GET.
func NewServer(logger *zap.Logger, store *storage.Store, hub *relay.Hub, opts ...Option) (*Server, error) {
	sugar := logger.Sugar()

	h := &handler{
		logger: sugar,
		store:  store,
		hub:    hub,
	}

	c := &config{
		httpServer: &http.Server{Addr: "0.0.0.0:9000"},
		handlers: map[string]http.Handler{
			"/users/add":    http.HandlerFunc(h.createUser),
			"/users/get":    http.HandlerFunc(h.listUsers),
			"/chats/access": http.HandlerFunc(h.accessChat),
			"/chats/get":    http.HandlerFunc(h.listChats),
			"/chats/delete": http.HandlerFunc(h.deleteChat),
			"/messages/get": http.HandlerFunc(h.listMessages),
		},
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	mux := http.NewServeMux()
	for pattern, hndl := range c.handlers {
		mux.Handle(pattern, log(enforcePostJson(hndl), logger))
	}
	mux.Handle("/ws", http.HandlerFunc(h.serveWs))

	c.httpServer.Handler = mux

	return &Server{
		logger:        sugar,
		httpServer:    c.httpServer,
		hub:           hub,
		afterShutdown: c.afterShutdown,
	}, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		if err := s.hub.Shutdown(shutdownTimeout); err != nil {
			s.logger.Errorf("hub.Shutdown: %v", err)
		}

		for _, f := range s.afterShutdown {
			f()
		}

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	return nil
}
