// Package chaintest provides an in-memory chain.Source used by tests across
// the repo. Blocks are appended with synthetic transactions and receipts, and
// header blooms are derived from the logs so bloom-screening paths behave as
// they do against real chain data.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainFilters/pkg/chain"
)

// Compile-time check to ensure Chain implements chain.Source.
var _ chain.Source = (*Chain)(nil)

// Chain is a fake chain.Source holding blocks in memory.
type Chain struct {
	mu       sync.Mutex
	headers  map[uint64]*types.Header
	receipts map[common.Hash]types.Receipts
	bodies   map[common.Hash]*types.Body
	best     uint64

	// Call counters, used by cache-transparency tests.
	HeaderCalls  int
	ReceiptCalls int
	BodyCalls    int
}

// New creates an empty chain holding only the genesis block.
func New() *Chain {
	c := &Chain{
		headers:  make(map[uint64]*types.Header),
		receipts: make(map[common.Hash]types.Receipts),
		bodies:   make(map[common.Hash]*types.Body),
	}
	c.appendBlock(nil)
	return c
}

// AddBlock appends a block with one transaction per logs entry and returns
// its header. Entries may be nil for transactions that emit nothing.
func (c *Chain) AddBlock(logsPerTx ...[]*types.Log) *types.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendBlock(logsPerTx)
}

func (c *Chain) appendBlock(logsPerTx [][]*types.Log) *types.Header {
	number := uint64(0)
	parentHash := common.Hash{}
	if len(c.headers) > 0 {
		number = c.best + 1
		parentHash = c.headers[c.best].Hash()
	}

	var (
		txs      []*types.Transaction
		receipts types.Receipts
	)
	for i, logs := range logsPerTx {
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    number<<16 | uint64(i),
			Gas:      21000,
			GasPrice: big.NewInt(1),
			To:       &common.Address{},
		})
		txs = append(txs, tx)

		receipt := &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   logs,
		}
		receipt.Bloom = types.CreateBloom(receipt)
		receipts = append(receipts, receipt)
	}

	header := &types.Header{
		Number:     new(big.Int).SetUint64(number),
		ParentHash: parentHash,
		Difficulty: big.NewInt(1),
		GasLimit:   8_000_000,
		Time:       1_700_000_000 + number,
		Bloom:      types.MergeBloom(receipts),
	}

	c.headers[number] = header
	c.receipts[header.Hash()] = receipts
	c.bodies[header.Hash()] = &types.Body{Transactions: txs}
	c.best = number

	return header
}

// DeleteHeader removes the header at the given height, simulating a data gap.
func (c *Chain) DeleteHeader(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.headers, number)
}

// DeleteReceipts removes the receipts of the given block.
func (c *Chain) DeleteReceipts(hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.receipts, hash)
}

// DeleteBody removes the body of the given block.
func (c *Chain) DeleteBody(hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bodies, hash)
}

// Header returns the stored header at the given height, or nil.
func (c *Chain) Header(number uint64) *types.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[number]
}

// TxHash returns the hash of the given transaction in the given block.
func (c *Chain) TxHash(blockNumber uint64, txIndex int) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := c.bodies[c.headers[blockNumber].Hash()]
	return body.Transactions[txIndex].Hash()
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HeaderCalls++

	header, ok := c.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return header, nil
}

func (c *Chain) ReceiptsByHash(ctx context.Context, hash common.Hash) (types.Receipts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReceiptCalls++

	receipts, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipts, nil
}

func (c *Chain) BodyByHash(ctx context.Context, hash common.Hash) (*types.Body, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BodyCalls++

	body, ok := c.bodies[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return body, nil
}

func (c *Chain) BestBlockNumber(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).SetUint64(c.best), nil
}
