// Package engine is the public entry point to the filter engine: it wires the
// collaborator interfaces (chain data, owned accounts, pending pool) into the
// registry/dispatch core and exposes the Ethereum filter operations.
package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainFilters/internal/common"
	internalengine "github.com/goran-ethernal/ChainFilters/internal/engine"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/pending"
	"github.com/goran-ethernal/ChainFilters/pkg/accounts"
	"github.com/goran-ethernal/ChainFilters/pkg/chain"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
	"github.com/goran-ethernal/ChainFilters/pkg/txpool"
)

// Re-exported introspection types and errors from the engine core.
type (
	// Info describes one installed filter.
	Info = internalengine.Info

	// Stats summarizes the filter registry.
	Stats = internalengine.Stats
)

// ErrStopped is returned by all operations after Close.
var ErrStopped = internalengine.ErrEngineStopped

// Config holds engine tuning knobs.
type Config struct {
	// PendingTimeout bounds the wait for a pending-pool reply.
	// Zero means the default of 5 seconds.
	PendingTimeout time.Duration
}

// Engine installs, polls and uninstalls Ethereum filters against the given
// chain source. All methods are safe for concurrent use.
type Engine struct {
	core *internalengine.Engine
}

// New creates a running Engine. The accounts and pool sources back
// pending-transaction filters; the chain source backs everything else.
func New(source chain.Source, accts accounts.Source, pool txpool.Source, cfg Config, log *logger.Logger) *Engine {
	bridge := pending.NewBridge(accts, pool, cfg.PendingTimeout, log.WithComponent(common.ComponentPendingBridge))

	return &Engine{
		core: internalengine.New(source, bridge, log.WithComponent(common.ComponentEngine)),
	}
}

// Close stops the engine. In-flight requests fail with ErrStopped.
func (e *Engine) Close() {
	e.core.Close()
}

// NewLogFilter installs a log filter and returns its ID.
func (e *Engine) NewLogFilter(ctx context.Context, query filter.Query) (filter.ID, error) {
	return e.core.NewLogFilter(ctx, query)
}

// NewBlockFilter installs a filter tracking new block hashes.
func (e *Engine) NewBlockFilter(ctx context.Context) (filter.ID, error) {
	return e.core.NewBlockFilter(ctx)
}

// NewPendingTransactionFilter installs a filter tracking pending transactions
// from locally-controlled accounts.
func (e *Engine) NewPendingTransactionFilter(ctx context.Context) (filter.ID, error) {
	return e.core.NewPendingTransactionFilter(ctx)
}

// UninstallFilter removes the filter. It succeeds for unknown IDs too.
func (e *Engine) UninstallFilter(ctx context.Context, id filter.ID) (bool, error) {
	return e.core.UninstallFilter(ctx, id)
}

// FilterLogs returns the filter's full matching history.
func (e *Engine) FilterLogs(ctx context.Context, id filter.ID) (*filter.Changes, error) {
	return e.core.FilterLogs(ctx, id)
}

// FilterChanges returns what changed since the previous poll of the filter.
func (e *Engine) FilterChanges(ctx context.Context, id filter.ID) (*filter.Changes, error) {
	return e.core.FilterChanges(ctx, id)
}

// Logs runs a one-shot log query without installing a filter.
func (e *Engine) Logs(ctx context.Context, query filter.Query) ([]*types.Log, error) {
	return e.core.Logs(ctx, query)
}

// List returns the installed filters in insertion order.
func (e *Engine) List(ctx context.Context) ([]Info, error) {
	return e.core.List(ctx)
}

// Stats returns registry counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	return e.core.Stats(ctx)
}
