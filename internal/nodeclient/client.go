// Package nodeclient adapts an upstream Ethereum node, reached over JSON-RPC,
// to the engine's collaborator interfaces: chain data, owned accounts and the
// pending transaction pool.
package nodeclient

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/metrics"
	"github.com/goran-ethernal/ChainFilters/pkg/accounts"
	"github.com/goran-ethernal/ChainFilters/pkg/chain"
	"github.com/goran-ethernal/ChainFilters/pkg/config"
	"github.com/goran-ethernal/ChainFilters/pkg/txpool"
)

// Compile-time checks for the collaborator interfaces.
var (
	_ chain.Source    = (*Client)(nil)
	_ accounts.Source = (*Client)(nil)
	_ txpool.Source   = (*Client)(nil)
)

// Client wraps the upstream node connection. Failed calls are retried with
// exponential backoff when a retry config is given; absence of chain data
// surfaces as ethereum.NotFound, which the ethclient layer already produces
// for null results.
type Client struct {
	eth   *ethclient.Client
	rpc   *rpc.Client
	retry *config.RetryConfig
	log   *logger.Logger
}

// New dials the upstream node at the given endpoint.
func New(ctx context.Context, endpoint string, retry *config.RetryConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing upstream node: %w", err)
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: retry,
		log:   log,
	}, nil
}

// Close closes the upstream connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeaderByNumber returns the canonical header at the given height.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	metrics.NodeRequestInc("eth_getBlockByNumber")

	var header *types.Header
	err := retryWithBackoff(ctx, c.retry, "eth_getBlockByNumber", func() error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, number)
		return err
	})
	if err != nil {
		return nil, err
	}

	return header, nil
}

// ReceiptsByHash returns all transaction receipts of the given block.
func (c *Client) ReceiptsByHash(ctx context.Context, hash common.Hash) (types.Receipts, error) {
	metrics.NodeRequestInc("eth_getBlockReceipts")

	var receipts []*types.Receipt
	err := retryWithBackoff(ctx, c.retry, "eth_getBlockReceipts", func() error {
		var err error
		receipts, err = c.eth.BlockReceipts(ctx, rpc.BlockNumberOrHashWithHash(hash, false))
		return err
	})
	if err != nil {
		return nil, err
	}

	return types.Receipts(receipts), nil
}

// BodyByHash returns the transactions of the given block.
func (c *Client) BodyByHash(ctx context.Context, hash common.Hash) (*types.Body, error) {
	metrics.NodeRequestInc("eth_getBlockByHash")

	var block *types.Block
	err := retryWithBackoff(ctx, c.retry, "eth_getBlockByHash", func() error {
		var err error
		block, err = c.eth.BlockByHash(ctx, hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	return block.Body(), nil
}

// BestBlockNumber returns the upstream node's current head height.
func (c *Client) BestBlockNumber(ctx context.Context) (*big.Int, error) {
	metrics.NodeRequestInc("eth_blockNumber")

	var number uint64
	err := retryWithBackoff(ctx, c.retry, "eth_blockNumber", func() error {
		var err error
		number, err = c.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetUint64(number), nil
}

// ListAccounts returns the accounts the upstream node controls (eth_accounts).
func (c *Client) ListAccounts(ctx context.Context) ([]common.Address, error) {
	metrics.NodeRequestInc("eth_accounts")

	var addrs []common.Address
	err := retryWithBackoff(ctx, c.retry, "eth_accounts", func() error {
		return c.rpc.CallContext(ctx, &addrs, "eth_accounts")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", accounts.ErrAccountsUnavailable, err)
	}

	return addrs, nil
}

// poolContent mirrors the txpool_content response shape: transactions grouped
// by sender, then by nonce.
type poolContent struct {
	Pending map[common.Address]map[string]*txpool.Transaction `json:"pending"`
}

// Pending returns the upstream node's pending transactions (txpool_content).
func (c *Client) Pending(ctx context.Context) ([]*txpool.Transaction, error) {
	metrics.NodeRequestInc("txpool_content")

	var content poolContent
	err := retryWithBackoff(ctx, c.retry, "txpool_content", func() error {
		return c.rpc.CallContext(ctx, &content, "txpool_content")
	})
	if err != nil {
		return nil, err
	}

	return flattenPending(content.Pending), nil
}

// flattenPending turns the by-sender/by-nonce pool map into a flat list,
// ordered by sender then nonce so repeated polls are stable.
func flattenPending(pending map[common.Address]map[string]*txpool.Transaction) []*txpool.Transaction {
	var txs []*txpool.Transaction
	for from, byNonce := range pending {
		for _, tx := range byNonce {
			tx.From = from
			txs = append(txs, tx)
		}
	}

	sort.Slice(txs, func(i, j int) bool {
		cmp := txs[i].From.Cmp(txs[j].From)
		if cmp != 0 {
			return cmp < 0
		}
		return txs[i].Nonce < txs[j].Nonce
	})

	return txs
}
