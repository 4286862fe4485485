package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainFilters/internal/chaintest"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
	"github.com/goran-ethernal/ChainFilters/pkg/txpool"
)

var (
	contractA     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	contractB     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	topicTransfer = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

type fakeFetcher struct {
	txs     []*txpool.Transaction
	err     error
	release chan struct{} // when non-nil, FetchOwned blocks until closed
}

func (f *fakeFetcher) FetchOwned(ctx context.Context) ([]*txpool.Transaction, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.txs, f.err
}

func newTestEngine(t *testing.T, c *chaintest.Chain, fetcher PendingFetcher) *Engine {
	t.Helper()

	if fetcher == nil {
		fetcher = &fakeFetcher{}
	}
	e := New(c, fetcher, logger.NewNopLogger())
	t.Cleanup(e.Close)
	return e
}

func matchingLog() *types.Log {
	return &types.Log{Address: contractA, Topics: []common.Hash{topicTransfer}, Data: []byte{0x01}}
}

func TestEngine_InstallAndUninstall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, chaintest.New(), nil)

	logID, err := e.NewLogFilter(ctx, filter.Query{Address: &contractA})
	require.NoError(t, err)
	blockID, err := e.NewBlockFilter(ctx)
	require.NoError(t, err)
	_, err = e.NewPendingTransactionFilter(ctx)
	require.NoError(t, err)

	infos, err := e.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, logID, infos[0].ID)
	assert.Equal(t, filter.KindLog, infos[0].Kind)
	require.NotNil(t, infos[0].Query)
	assert.Equal(t, contractA, *infos[0].Query.Address)
	assert.Equal(t, filter.KindBlock, infos[1].Kind)
	assert.Nil(t, infos[1].Query)
	assert.Equal(t, filter.KindPendingTx, infos[2].Kind)

	ok, err := e.UninstallFilter(ctx, blockID)
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByKind[filter.KindLog])
	assert.Equal(t, 0, stats.ByKind[filter.KindBlock])

	// Removing an already-removed or never-installed filter still succeeds.
	ok, err = e.UninstallFilter(ctx, blockID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.UninstallFilter(ctx, filter.ID(123456))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_UnknownFilterYieldsEmptyLogs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, chaintest.New(), nil)

	changes, err := e.FilterChanges(ctx, filter.ID(42))
	require.NoError(t, err)
	require.NotNil(t, changes)
	assert.Equal(t, filter.KindLog, changes.Kind)
	assert.NotNil(t, changes.Logs)
	assert.Empty(t, changes.Logs)

	changes, err = e.FilterLogs(ctx, filter.ID(42))
	require.NoError(t, err)
	assert.Equal(t, filter.KindLog, changes.Kind)
	assert.Empty(t, changes.Logs)
}

func TestEngine_LogFilterChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	c.AddBlock([]*types.Log{matchingLog()}) // block 1, before install

	e := newTestEngine(t, c, nil)
	id, err := e.NewLogFilter(ctx, filter.Query{Address: &contractA})
	require.NoError(t, err)

	// Nothing new since install.
	changes, err := e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, changes.Logs)

	c.AddBlock([]*types.Log{matchingLog()}) // block 2
	c.AddBlock(
		[]*types.Log{{Address: contractB, Topics: []common.Hash{topicTransfer}}},
		[]*types.Log{matchingLog()},
	) // block 3

	changes, err = e.FilterChanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, changes.Logs, 2)
	assert.Equal(t, uint64(2), changes.Logs[0].BlockNumber)
	assert.Equal(t, uint64(3), changes.Logs[1].BlockNumber)

	// The cursor advanced, so an immediate re-poll is empty.
	changes, err = e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, changes.Logs)
}

func TestEngine_FilterLogsReturnsHistoryAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	c.AddBlock([]*types.Log{matchingLog()}) // block 1

	e := newTestEngine(t, c, nil)
	id, err := e.NewLogFilter(ctx, filter.Query{
		Address: &contractA,
	})
	require.NoError(t, err)

	c.AddBlock([]*types.Log{matchingLog()}) // block 2

	// The full poll ignores the cursor: block 1 predates the install but its
	// log is in the query's range.
	changes, err := e.FilterLogs(ctx, id)
	require.NoError(t, err)
	require.Len(t, changes.Logs, 2)
	assert.Equal(t, uint64(1), changes.Logs[0].BlockNumber)
	assert.Equal(t, uint64(2), changes.Logs[1].BlockNumber)

	// The full poll also reset the cursor to the best block it saw.
	changes, err = e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, changes.Logs)
}

func TestEngine_LogFilterRangeSelectors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	for i := 0; i < 4; i++ {
		c.AddBlock([]*types.Log{matchingLog()}) // blocks 1..4
	}

	e := newTestEngine(t, c, nil)

	from := rpc.BlockNumber(2)
	to := rpc.BlockNumber(3)
	id, err := e.NewLogFilter(ctx, filter.Query{
		FromBlock: &from,
		ToBlock:   &to,
		Address:   &contractA,
	})
	require.NoError(t, err)

	changes, err := e.FilterLogs(ctx, id)
	require.NoError(t, err)
	require.Len(t, changes.Logs, 2)
	assert.Equal(t, uint64(2), changes.Logs[0].BlockNumber)
	assert.Equal(t, uint64(3), changes.Logs[1].BlockNumber)
}

func TestEngine_BlockFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	e := newTestEngine(t, c, nil)

	id, err := e.NewBlockFilter(ctx)
	require.NoError(t, err)

	h1 := c.AddBlock()
	h2 := c.AddBlock()

	changes, err := e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, filter.KindBlock, changes.Kind)
	require.Equal(t, []common.Hash{h1.Hash(), h2.Hash()}, changes.Hashes)

	// Re-poll with no new blocks.
	changes, err = e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, changes.Hashes)

	// The full poll is defined as empty for block filters but still resets
	// the cursor.
	c.AddBlock()
	changes, err = e.FilterLogs(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, changes.Hashes)
	assert.Empty(t, changes.Hashes)

	changes, err = e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, changes.Hashes)
}

func TestEngine_BlockFilterCapsAtMostRecent256(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	e := newTestEngine(t, c, nil)

	id, err := e.NewBlockFilter(ctx)
	require.NoError(t, err)

	headers := make([]*types.Header, 0, 300)
	for i := 0; i < 300; i++ {
		headers = append(headers, c.AddBlock())
	}

	changes, err := e.FilterChanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, changes.Hashes, 256)

	// Most recent 256, ascending.
	assert.Equal(t, headers[len(headers)-256].Hash(), changes.Hashes[0])
	assert.Equal(t, headers[len(headers)-1].Hash(), changes.Hashes[255])
}

func TestEngine_BlockFilterStopsAtHeaderGap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	e := newTestEngine(t, c, nil)

	id, err := e.NewBlockFilter(ctx)
	require.NoError(t, err)

	h1 := c.AddBlock()
	c.AddBlock()
	c.AddBlock()
	c.DeleteHeader(2)

	changes, err := e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{h1.Hash()}, changes.Hashes)
}

func TestEngine_PendingTransactionFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	txA := &txpool.Transaction{Hash: common.HexToHash("0x01"), From: contractA}
	txB := &txpool.Transaction{Hash: common.HexToHash("0x02"), From: contractA}
	fetcher := &fakeFetcher{txs: []*txpool.Transaction{txA, txB}}

	e := newTestEngine(t, chaintest.New(), fetcher)
	id, err := e.NewPendingTransactionFilter(ctx)
	require.NoError(t, err)

	changes, err := e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, filter.KindPendingTx, changes.Kind)
	assert.Equal(t, []common.Hash{txA.Hash, txB.Hash}, changes.Hashes)

	// No cursor for pending filters: every poll reports the full current set.
	changes, err = e.FilterChanges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{txA.Hash, txB.Hash}, changes.Hashes)

	changes, err = e.FilterLogs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{txA.Hash, txB.Hash}, changes.Hashes)
}

func TestEngine_PendingPollDoesNotBlockDispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := &fakeFetcher{
		txs:     []*txpool.Transaction{{Hash: common.HexToHash("0x01"), From: contractA}},
		release: make(chan struct{}),
	}

	c := chaintest.New()
	e := newTestEngine(t, c, fetcher)
	pendingID, err := e.NewPendingTransactionFilter(ctx)
	require.NoError(t, err)
	blockID, err := e.NewBlockFilter(ctx)
	require.NoError(t, err)

	type result struct {
		changes *filter.Changes
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		changes, err := e.FilterChanges(ctx, pendingID)
		resultCh <- result{changes, err}
	}()

	// With the pool query stalled, the dispatch loop must still serve other
	// requests.
	h1 := c.AddBlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		changes, err := e.FilterChanges(ctx, blockID)
		assert.NoError(t, err)
		assert.Equal(t, []common.Hash{h1.Hash()}, changes.Hashes)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop blocked behind a pending pool query")
	}

	close(fetcher.release)
	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.Len(t, r.changes.Hashes, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("pending poll never completed")
	}
}

func TestEngine_PendingErrorPropagates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetchErr := errors.New("pool offline")
	e := newTestEngine(t, chaintest.New(), &fakeFetcher{err: fetchErr})

	id, err := e.NewPendingTransactionFilter(ctx)
	require.NoError(t, err)

	_, err = e.FilterChanges(ctx, id)
	require.ErrorIs(t, err, fetchErr)
}

func TestEngine_Logs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := chaintest.New()
	c.AddBlock([]*types.Log{matchingLog()})
	c.AddBlock([]*types.Log{{Address: contractB, Topics: []common.Hash{topicTransfer}}})
	c.AddBlock([]*types.Log{matchingLog()})

	e := newTestEngine(t, c, nil)

	logs, err := e.Logs(ctx, filter.Query{Address: &contractA})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(1), logs[0].BlockNumber)
	assert.Equal(t, uint64(3), logs[1].BlockNumber)

	from := rpc.BlockNumber(2)
	logs, err = e.Logs(ctx, filter.Query{FromBlock: &from, Address: &contractA})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(3), logs[0].BlockNumber)
}

func TestEngine_ClosedEngineRejectsRequests(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := New(chaintest.New(), &fakeFetcher{}, logger.NewNopLogger())
	e.Close()

	_, err := e.NewBlockFilter(ctx)
	assert.ErrorIs(t, err, ErrEngineStopped)
	_, err = e.FilterChanges(ctx, filter.ID(1))
	assert.ErrorIs(t, err, ErrEngineStopped)
	_, err = e.UninstallFilter(ctx, filter.ID(1))
	assert.ErrorIs(t, err, ErrEngineStopped)
	_, err = e.List(ctx)
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestResolveBlockNumber(t *testing.T) {
	t.Parallel()

	best := big.NewInt(90)
	ptr := func(n rpc.BlockNumber) *rpc.BlockNumber { return &n }

	tests := []struct {
		name string
		bn   *rpc.BlockNumber
		want int64
	}{
		{"nil means best", nil, 90},
		{"latest", ptr(rpc.LatestBlockNumber), 90},
		{"pending", ptr(rpc.PendingBlockNumber), 90},
		{"finalized", ptr(rpc.FinalizedBlockNumber), 90},
		{"safe", ptr(rpc.SafeBlockNumber), 90},
		{"earliest", ptr(rpc.EarliestBlockNumber), 0},
		{"concrete", ptr(rpc.BlockNumber(7)), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := resolveBlockNumber(tt.bn, best)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}
