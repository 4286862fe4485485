package rpcapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/config"
	"github.com/goran-ethernal/ChainFilters/pkg/engine"
)

const shutdownCtxTimeout = 10 * time.Second

// Server serves the filter API over HTTP JSON-RPC.
type Server struct {
	config    *config.RPCConfig
	rpcServer *gethrpc.Server
	server    *http.Server
	log       *logger.Logger
}

// NewServer registers the filter API under the "eth" namespace and prepares
// the HTTP server.
func NewServer(cfg *config.RPCConfig, eng *engine.Engine, log *logger.Logger) (*Server, error) {
	rpcServer := gethrpc.NewServer()
	if err := rpcServer.RegisterName("eth", NewFilterAPI(eng, log)); err != nil {
		return nil, fmt.Errorf("registering filter API: %w", err)
	}

	var handler http.Handler = rpcServer
	if cfg.CORS.Enabled {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(handler)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		config:    cfg,
		rpcServer: rpcServer,
		server:    httpServer,
		log:       log,
	}, nil
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.log.Infof("Starting JSON-RPC server on %s", s.config.ListenAddress)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("JSON-RPC server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down JSON-RPC server...")
	s.rpcServer.Stop()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("JSON-RPC server shutdown error: %w", err)
	}

	s.log.Info("JSON-RPC server stopped")
	return nil
}
