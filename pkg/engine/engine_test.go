package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainFilters/internal/chaintest"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
	"github.com/goran-ethernal/ChainFilters/pkg/txpool"
)

var (
	contractA     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner         = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	topicTransfer = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

type staticAccounts struct{ addrs []common.Address }

func (s *staticAccounts) ListAccounts(ctx context.Context) ([]common.Address, error) {
	return s.addrs, nil
}

type staticPool struct{ txs []*txpool.Transaction }

func (s *staticPool) Pending(ctx context.Context) ([]*txpool.Transaction, error) {
	return s.txs, nil
}

func newEngine(t *testing.T, c *chaintest.Chain, pool []*txpool.Transaction) *Engine {
	t.Helper()

	e := New(c, &staticAccounts{addrs: []common.Address{owner}}, &staticPool{txs: pool},
		Config{}, logger.NewNopLogger())
	t.Cleanup(e.Close)
	return e
}

// A one-shot query and an installed filter's full poll must agree for the
// same criteria.
func TestEngine_OneShotMatchesInstalledFilterLogs(t *testing.T) {
	t.Parallel()

	c := chaintest.New()
	for i := 0; i < 3; i++ {
		c.AddBlock([]*types.Log{{Address: contractA, Topics: []common.Hash{topicTransfer}}})
	}

	e := newEngine(t, c, nil)
	ctx := context.Background()
	query := filter.Query{Address: &contractA}

	oneShot, err := e.Logs(ctx, query)
	require.NoError(t, err)

	id, err := e.NewLogFilter(ctx, query)
	require.NoError(t, err)
	polled, err := e.FilterLogs(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, oneShot, polled.Logs)
}

func TestEngine_EndToEndPendingFilter(t *testing.T) {
	t.Parallel()

	ownedTx := &txpool.Transaction{Hash: common.HexToHash("0x01"), From: owner}
	otherTx := &txpool.Transaction{Hash: common.HexToHash("0x02"), From: contractA}

	e := newEngine(t, chaintest.New(), []*txpool.Transaction{ownedTx, otherTx})
	ctx := context.Background()

	id, err := e.NewPendingTransactionFilter(ctx)
	require.NoError(t, err)

	changes, err := e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{ownedTx.Hash}, changes.Hashes)

	ok, err := e.UninstallFilter(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}
