package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Source is a read-only view over canonical chain data.
// This abstraction allows for easier testing and alternative implementations;
// the engine ships an upstream-RPC implementation and an optional SQLite
// read-through cache decorator.
//
// Implementations report a missing block, body or receipt set with
// ethereum.NotFound. The engine treats absence as end of available data,
// never as a hard failure.
type Source interface {
	// HeaderByNumber retrieves the canonical header at the given height.
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// ReceiptsByHash retrieves the receipts of the block with the given hash.
	ReceiptsByHash(ctx context.Context, hash common.Hash) (types.Receipts, error)

	// BodyByHash retrieves the body (transactions) of the block with the given hash.
	BodyByHash(ctx context.Context, hash common.Hash) (*types.Body, error)

	// BestBlockNumber returns the current best (head) block number.
	BestBlockNumber(ctx context.Context) (*big.Int, error)
}
