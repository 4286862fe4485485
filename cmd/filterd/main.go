package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goran-ethernal/ChainFilters/internal/chaindb"
	"github.com/goran-ethernal/ChainFilters/internal/common"
	"github.com/goran-ethernal/ChainFilters/internal/config"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/metrics"
	"github.com/goran-ethernal/ChainFilters/internal/nodeclient"
	"github.com/goran-ethernal/ChainFilters/internal/rpcapi"
	"github.com/goran-ethernal/ChainFilters/pkg/accounts"
	"github.com/goran-ethernal/ChainFilters/pkg/api"
	"github.com/goran-ethernal/ChainFilters/pkg/chain"
	pkgconfig "github.com/goran-ethernal/ChainFilters/pkg/config"
	"github.com/goran-ethernal/ChainFilters/pkg/engine"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         ChainFilters v%s               ║
║     Ethereum Filter and Log Service       ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filterd",
	Short: "ChainFilters - Ethereum filter and event-log query service",
	Long: `ChainFilters serves the Ethereum filter API (eth_newFilter and friends) on top
of any upstream node. It maintains installed filters locally, scans blocks with
bloom-accelerated log matching, and optionally caches chain data in SQLite.`,
	Version: version,
	RunE:    runDaemon,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the configuration JSON schema",
	Long:  `Print the JSON schema describing the configuration file format to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.GenerateSchema()
		if err != nil {
			return fmt.Errorf("failed to generate schema: %w", err)
		}
		fmt.Println(string(schema))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(schemaCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	// Load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	// Initialize logger
	log := logger.NewComponentLoggerFromConfig(common.ComponentEngine, cfg.Logging)

	// Connect to the upstream node
	log.Info("Connecting to Ethereum node...")
	client, err := nodeclient.New(ctx, cfg.Node.RPCURL, cfg.Node.Retry,
		logger.NewComponentLoggerFromConfig(common.ComponentNodeClient, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create node client: %w", err)
	}
	defer client.Close()
	log.Infof("Connected to Ethereum node: %s", cfg.Node.RPCURL)

	// Initialize metrics server if enabled
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics,
			logger.NewComponentLoggerFromConfig(common.ComponentMetrics, cfg.Logging))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	// Wrap the chain source with the SQLite cache when enabled
	var source chain.Source = client
	if cfg.Cache != nil && cfg.Cache.Enabled {
		cache, err := chaindb.New(client, cfg.Cache,
			logger.NewComponentLoggerFromConfig(common.ComponentChainCache, cfg.Logging))
		if err != nil {
			return fmt.Errorf("failed to open chain cache: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				log.Warnf("Failed to close chain cache: %v", err)
			}
		}()
		log.Infof("Chain cache enabled at %s", cfg.Cache.DB.Path)
		source = cache
	}

	// Select the owned-account source
	var accts accounts.Source = client
	if cfg.Node.Accounts.Source == pkgconfig.AccountSourceStatic {
		static, err := nodeclient.NewStaticAccounts(cfg.Node.Accounts.Addresses)
		if err != nil {
			return fmt.Errorf("failed to build static account list: %w", err)
		}
		log.Infof("Using static account list (%d accounts)", len(cfg.Node.Accounts.Addresses))
		accts = static
	}

	// Start the filter engine
	eng := engine.New(source, accts, client, engine.Config{
		PendingTimeout: cfg.Engine.PendingTimeout.Duration,
	}, log)
	defer eng.Close()

	// Build the servers
	rpcServer, err := rpcapi.NewServer(&cfg.RPC, eng,
		logger.NewComponentLoggerFromConfig(common.ComponentRPCServer, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create JSON-RPC server: %w", err)
	}

	log.Info("Starting ChainFilters...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rpcServer.Start(gctx)
	})

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, eng,
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		g.Go(func() error {
			return apiServer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("ChainFilters stopped successfully")
	return nil
}
