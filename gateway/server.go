package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"campus-chat/auth"
)

// Server serves the REST and websocket surface. Shutdown is graceful:
// in-flight requests finish, then the listener closes.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

func NewServer(host string, port int, handler *Handler, tokens *auth.TokenService,
	allowedOrigins []string, log *slog.Logger) *Server {

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	chain := corsHandler.Handler(auth.Middleware(tokens, log)(handler.Router()))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           chain,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run blocks until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.log.Info("Gateway listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Gateway shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
