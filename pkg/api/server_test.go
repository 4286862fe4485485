package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainFilters/internal/common"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/config"
)

func testAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled:       true,
		ListenAddress: "localhost:0",
		ReadTimeout:   common.Duration{Duration: 5 * time.Second},
		WriteTimeout:  common.Duration{Duration: 10 * time.Second},
		IdleTimeout:   common.Duration{Duration: 60 * time.Second},
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   *config.APIConfig
		validate func(t *testing.T, server *Server)
	}{
		{
			name: "create server with basic config",
			config: &config.APIConfig{
				Enabled:       true,
				ListenAddress: "localhost:8080",
				ReadTimeout:   common.Duration{Duration: 5 * time.Second},
				WriteTimeout:  common.Duration{Duration: 10 * time.Second},
				IdleTimeout:   common.Duration{Duration: 60 * time.Second},
			},
			validate: func(t *testing.T, server *Server) {
				t.Helper()

				require.NotNil(t, server.handler)
				require.NotNil(t, server.server)
				require.Equal(t, "localhost:8080", server.server.Addr)
				require.Equal(t, 5*time.Second, server.server.ReadTimeout)
				require.Equal(t, 10*time.Second, server.server.WriteTimeout)
				require.Equal(t, 60*time.Second, server.server.IdleTimeout)
			},
		},
		{
			name: "create server with CORS enabled",
			config: &config.APIConfig{
				Enabled:       true,
				ListenAddress: ":9090",
				ReadTimeout:   common.Duration{Duration: 30 * time.Second},
				WriteTimeout:  common.Duration{Duration: 30 * time.Second},
				IdleTimeout:   common.Duration{Duration: 120 * time.Second},
				CORS: config.CORSConfig{
					Enabled:        true,
					AllowedOrigins: []string{"http://localhost:3000", "https://example.com"},
				},
			},
			validate: func(t *testing.T, server *Server) {
				t.Helper()

				require.True(t, server.config.CORS.Enabled)
				require.Len(t, server.config.CORS.AllowedOrigins, 2)
				require.Equal(t, ":9090", server.server.Addr)
			},
		},
		{
			name: "create server with disabled state",
			config: &config.APIConfig{
				Enabled:       false,
				ListenAddress: ":8080",
				ReadTimeout:   common.Duration{Duration: 5 * time.Second},
				WriteTimeout:  common.Duration{Duration: 5 * time.Second},
				IdleTimeout:   common.Duration{Duration: 60 * time.Second},
			},
			validate: func(t *testing.T, server *Server) {
				t.Helper()

				require.False(t, server.config.Enabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := NewServer(tt.config, testRegistry(), logger.NewNopLogger())

			require.NotNil(t, server)
			tt.validate(t, server)
		})
	}
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig(), testRegistry(), logger.NewNopLogger())

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK},
		{name: "list filters", path: "/api/v1/filters", wantStatus: http.StatusOK},
		{name: "single filter", path: "/api/v1/filters/0x1f", wantStatus: http.StatusOK},
		{name: "status", path: "/api/v1/status", wantStatus: http.StatusOK},
		{name: "unknown path", path: "/api/v1/bogus", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			server.server.Handler.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestServer_Routes_FilterByID(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig(), testRegistry(), logger.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filters/0x2a", nil)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var info FilterInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "0x2a", info.ID)
}

func TestServer_Start_Disabled(t *testing.T) {
	t.Parallel()

	cfg := testAPIConfig()
	cfg.Enabled = false

	server := NewServer(cfg, testRegistry(), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(1 * time.Second):
		t.Fatal("Start() did not return when server is disabled")
	}
}

func TestServer_Start_GracefulShutdown(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig(), testRegistry(), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	// Give the server time to start before triggering shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Server did not shutdown gracefully within timeout")
	}
}

func TestServer_CORSApplied(t *testing.T) {
	t.Parallel()

	cfg := testAPIConfig()
	cfg.CORS = config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
	}

	server := NewServer(cfg, testRegistry(), logger.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
