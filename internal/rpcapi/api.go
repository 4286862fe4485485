// Package rpcapi exposes the filter engine over JSON-RPC in the shape of the
// standard Ethereum filter API (the eth_newFilter family), so existing tooling
// can point at the local endpoint unchanged.
package rpcapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/engine"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
)

// FilterAPI is the receiver registered under the "eth" namespace. Filter IDs
// cross the wire as hex quantities.
type FilterAPI struct {
	engine *engine.Engine
	log    *logger.Logger
}

// NewFilterAPI creates the RPC receiver for the given engine.
func NewFilterAPI(eng *engine.Engine, log *logger.Logger) *FilterAPI {
	return &FilterAPI{engine: eng, log: log}
}

// NewFilter installs a log filter (eth_newFilter).
func (api *FilterAPI) NewFilter(ctx context.Context, query filter.Query) (hexutil.Uint64, error) {
	id, err := api.engine.NewLogFilter(ctx, query)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(id), nil
}

// NewBlockFilter installs a block filter (eth_newBlockFilter).
func (api *FilterAPI) NewBlockFilter(ctx context.Context) (hexutil.Uint64, error) {
	id, err := api.engine.NewBlockFilter(ctx)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(id), nil
}

// NewPendingTransactionFilter installs a pending-transaction filter
// (eth_newPendingTransactionFilter).
func (api *FilterAPI) NewPendingTransactionFilter(ctx context.Context) (hexutil.Uint64, error) {
	id, err := api.engine.NewPendingTransactionFilter(ctx)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(id), nil
}

// UninstallFilter removes a filter (eth_uninstallFilter).
func (api *FilterAPI) UninstallFilter(ctx context.Context, id hexutil.Uint64) (bool, error) {
	return api.engine.UninstallFilter(ctx, filter.ID(id))
}

// GetFilterLogs returns the filter's full matching history (eth_getFilterLogs).
func (api *FilterAPI) GetFilterLogs(ctx context.Context, id hexutil.Uint64) (interface{}, error) {
	changes, err := api.engine.FilterLogs(ctx, filter.ID(id))
	if err != nil {
		return nil, err
	}
	return shapeChanges(changes), nil
}

// GetFilterChanges returns what changed since the previous poll
// (eth_getFilterChanges).
func (api *FilterAPI) GetFilterChanges(ctx context.Context, id hexutil.Uint64) (interface{}, error) {
	changes, err := api.engine.FilterChanges(ctx, filter.ID(id))
	if err != nil {
		return nil, err
	}
	return shapeChanges(changes), nil
}

// GetLogs runs a one-shot log query (eth_getLogs).
func (api *FilterAPI) GetLogs(ctx context.Context, query filter.Query) ([]*types.Log, error) {
	return api.engine.Logs(ctx, query)
}

// shapeChanges picks the wire representation for a poll result: log objects
// for log filters, hashes for block and pending-transaction filters.
func shapeChanges(changes *filter.Changes) interface{} {
	if changes.Kind == filter.KindLog {
		return changes.Logs
	}
	return changes.Hashes
}
