package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/metrics"
	"github.com/goran-ethernal/ChainFilters/internal/scan"
	"github.com/goran-ethernal/ChainFilters/pkg/chain"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
	"github.com/goran-ethernal/ChainFilters/pkg/txpool"
)

// maxBlockHashes caps the number of block hashes one changes poll returns for
// a block filter; older entries beyond the cap are dropped.
const maxBlockHashes = 256

// ErrEngineStopped is returned by all operations after Close.
var ErrEngineStopped = errors.New("filter engine stopped")

// PendingFetcher is the owned-pending query the engine dispatches
// pending-transaction filters to. It is satisfied by pending.Bridge.
type PendingFetcher interface {
	FetchOwned(ctx context.Context) ([]*txpool.Transaction, error)
}

// installedFilter is a live filter plus its change cursor: the last block
// number up to which the filter has been checked. Both "logs" and "changes"
// polls reset the cursor to the best block seen at the start of the poll.
type installedFilter struct {
	id     filter.ID
	kind   filter.Kind
	query  filter.Query
	cursor *big.Int
}

// Info is a read-only snapshot of an installed filter, served to the
// inspection API.
type Info struct {
	ID              filter.ID     `json:"id"`
	Kind            filter.Kind   `json:"kind"`
	Query           *filter.Query `json:"query,omitempty"`
	LastPolledBlock *big.Int      `json:"last_polled_block"`
}

// Stats summarizes the registry contents.
type Stats struct {
	Total  int                 `json:"total"`
	ByKind map[filter.Kind]int `json:"by_kind"`
}

// Engine owns the filter registry and cursor map. A single dispatch goroutine
// processes requests one at a time, so the registry is never mutated
// concurrently and no locks guard it. Only pending-pool queries leave the
// dispatch goroutine: after the registry mutation is done they are handed to
// a separate goroutine whose reply goes straight to the original caller,
// keeping the loop free to serve subsequent requests.
type Engine struct {
	source  chain.Source
	scanner *scan.Scanner
	pending PendingFetcher
	log     *logger.Logger

	installCh   chan *installReq
	uninstallCh chan *uninstallReq
	pollCh      chan *pollReq
	snapshotCh  chan *snapshotReq
	quit        chan struct{}
	done        chan struct{}

	// owned exclusively by the dispatch goroutine
	filters map[filter.ID]*installedFilter
	order   []filter.ID
}

type installReq struct {
	ctx   context.Context
	kind  filter.Kind
	query filter.Query
	reply chan filter.ID
}

type uninstallReq struct {
	id    filter.ID
	reply chan bool
}

type pollReq struct {
	ctx     context.Context
	id      filter.ID
	changes bool
	reply   chan pollResp
}

type pollResp struct {
	changes *filter.Changes
	err     error
}

type snapshotReq struct {
	reply chan snapshot
}

type snapshot struct {
	infos []Info
	stats Stats
}

// New creates an Engine and starts its dispatch loop.
func New(source chain.Source, pendingFetcher PendingFetcher, log *logger.Logger) *Engine {
	e := &Engine{
		source:      source,
		scanner:     scan.New(source, log.WithComponent("scanner")),
		pending:     pendingFetcher,
		log:         log,
		installCh:   make(chan *installReq),
		uninstallCh: make(chan *uninstallReq),
		pollCh:      make(chan *pollReq),
		snapshotCh:  make(chan *snapshotReq),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		filters:     make(map[filter.ID]*installedFilter),
	}

	go e.loop()
	return e
}

// Close stops the dispatch loop. In-flight requests receive ErrEngineStopped.
func (e *Engine) Close() {
	close(e.quit)
	<-e.done
}

// NewLogFilter installs a log filter for the given query and returns its ID.
func (e *Engine) NewLogFilter(ctx context.Context, query filter.Query) (filter.ID, error) {
	return e.install(ctx, filter.KindLog, query)
}

// NewBlockFilter installs a filter tracking new block hashes.
func (e *Engine) NewBlockFilter(ctx context.Context) (filter.ID, error) {
	return e.install(ctx, filter.KindBlock, filter.Query{})
}

// NewPendingTransactionFilter installs a filter tracking pending transactions
// from locally-controlled accounts.
func (e *Engine) NewPendingTransactionFilter(ctx context.Context) (filter.ID, error) {
	return e.install(ctx, filter.KindPendingTx, filter.Query{})
}

func (e *Engine) install(ctx context.Context, kind filter.Kind, query filter.Query) (filter.ID, error) {
	req := &installReq{
		ctx:   ctx,
		kind:  kind,
		query: query,
		reply: make(chan filter.ID, 1),
	}

	select {
	case e.installCh <- req:
	case <-e.quit:
		return 0, ErrEngineStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case id := <-req.reply:
		return id, nil
	case <-e.quit:
		return 0, ErrEngineStopped
	}
}

// UninstallFilter removes the filter and its cursor. It reports success even
// for unknown IDs: uninstalling is idempotent.
func (e *Engine) UninstallFilter(ctx context.Context, id filter.ID) (bool, error) {
	req := &uninstallReq{id: id, reply: make(chan bool, 1)}

	select {
	case e.uninstallCh <- req:
	case <-e.quit:
		return false, ErrEngineStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-req.reply:
		return ok, nil
	case <-e.quit:
		return false, ErrEngineStopped
	}
}

// FilterLogs returns the full matching history of the filter: all matching
// logs for a log filter, the current owned pending set for a
// pending-transaction filter, and an empty list for a block filter (the
// complete historical hash list is unbounded and intentionally not
// reconstructed). The filter's cursor advances to the current best block even
// for kinds that ignore it, so a later changes poll starts from now.
//
// An unknown ID yields an empty log-shaped result, not an error.
func (e *Engine) FilterLogs(ctx context.Context, id filter.ID) (*filter.Changes, error) {
	return e.poll(ctx, id, false)
}

// FilterChanges returns what changed since the previous poll of this filter:
// logs in blocks past the cursor for a log filter, hashes of blocks past the
// cursor (at most the most recent 256) for a block filter, and the current
// owned pending set for a pending-transaction filter, which tracks no cursor.
func (e *Engine) FilterChanges(ctx context.Context, id filter.ID) (*filter.Changes, error) {
	return e.poll(ctx, id, true)
}

func (e *Engine) poll(ctx context.Context, id filter.ID, changes bool) (*filter.Changes, error) {
	req := &pollReq{
		ctx:     ctx,
		id:      id,
		changes: changes,
		reply:   make(chan pollResp, 1),
	}

	select {
	case e.pollCh <- req:
	case <-e.quit:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.changes, resp.err
	case <-e.quit:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Logs runs a one-shot scan for the query without installing a filter (the
// eth_getLogs path). It does not touch the registry and therefore runs on the
// caller's goroutine, concurrently with other scans.
func (e *Engine) Logs(ctx context.Context, query filter.Query) ([]*types.Log, error) {
	best, err := e.source.BestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading best block: %w", err)
	}

	from := resolveBlockNumber(query.FromBlock, best)
	to := resolveBlockNumber(query.ToBlock, best)
	return e.scanner.Run(ctx, query, from, to), nil
}

// List returns a snapshot of the installed filters in insertion order.
func (e *Engine) List(ctx context.Context) ([]Info, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.infos, nil
}

// Stats returns registry counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	return snap.stats, nil
}

func (e *Engine) snapshot(ctx context.Context) (snapshot, error) {
	req := &snapshotReq{reply: make(chan snapshot, 1)}

	select {
	case e.snapshotCh <- req:
	case <-e.quit:
		return snapshot{}, ErrEngineStopped
	case <-ctx.Done():
		return snapshot{}, ctx.Err()
	}

	select {
	case snap := <-req.reply:
		return snap, nil
	case <-e.quit:
		return snapshot{}, ErrEngineStopped
	}
}

// loop is the dispatch goroutine: the only writer of the registry and cursors.
func (e *Engine) loop() {
	defer close(e.done)

	for {
		select {
		case req := <-e.installCh:
			req.reply <- e.handleInstall(req)

		case req := <-e.uninstallCh:
			req.reply <- e.handleUninstall(req.id)

		case req := <-e.pollCh:
			e.handlePoll(req)

		case req := <-e.snapshotCh:
			req.reply <- e.handleSnapshot()

		case <-e.quit:
			return
		}
	}
}

func (e *Engine) handleInstall(req *installReq) filter.ID {
	id := filter.NewID()

	cursor := new(big.Int)
	best, err := e.source.BestBlockNumber(req.ctx)
	if err != nil {
		// Installation never fails; the filter starts at genesis and the
		// first changes poll covers everything up to the then-best block.
		e.log.Warnf("installing %s filter %s with zero cursor: best block unavailable: %v", req.kind, id.Hex(), err)
	} else {
		cursor.Set(best)
	}

	e.filters[id] = &installedFilter{
		id:     id,
		kind:   req.kind,
		query:  req.query,
		cursor: cursor,
	}
	e.order = append(e.order, id)

	metrics.FilterCreatedInc(string(req.kind))
	e.log.Debugf("installed %s filter %s at block %s", req.kind, id.Hex(), cursor)
	return id
}

func (e *Engine) handleUninstall(id filter.ID) bool {
	f, ok := e.filters[id]
	if ok {
		delete(e.filters, id)
		for i, other := range e.order {
			if other == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
		metrics.FilterUninstalledInc(string(f.kind))
		e.log.Debugf("uninstalled %s filter %s", f.kind, id.Hex())
	}

	// Absence is not an error: a raced double-uninstall succeeds too.
	return true
}

func (e *Engine) handlePoll(req *pollReq) {
	f, ok := e.filters[req.id]
	if !ok {
		// Unknown IDs degrade to an empty log-shaped result so callers don't
		// have to distinguish a missing filter from one with no matches.
		req.reply <- pollResp{changes: filter.EmptyChanges(filter.KindLog)}
		return
	}

	// One best-block snapshot per request: the range a poll sees is fixed at
	// its start even if new blocks arrive while it executes.
	best, err := e.source.BestBlockNumber(req.ctx)
	if err != nil {
		req.reply <- pollResp{err: fmt.Errorf("reading best block: %w", err)}
		return
	}

	operation := "logs"
	if req.changes {
		operation = "changes"
	}
	metrics.PollServedInc(operation, string(f.kind))

	switch f.kind {
	case filter.KindLog:
		var from *big.Int
		if req.changes {
			from = new(big.Int).Add(f.cursor, big.NewInt(1))
		} else {
			from = resolveBlockNumber(f.query.FromBlock, best)
		}
		to := resolveBlockNumber(f.query.ToBlock, best)

		logs := e.scanner.Run(req.ctx, f.query, from, to)
		f.cursor.Set(best)
		req.reply <- pollResp{changes: &filter.Changes{Kind: filter.KindLog, Logs: logs}}

	case filter.KindBlock:
		result := filter.EmptyChanges(filter.KindBlock)
		if req.changes {
			result.Hashes = e.blockHashes(req.ctx, f.cursor, best)
		}
		f.cursor.Set(best)
		req.reply <- pollResp{changes: result}

	case filter.KindPendingTx:
		f.cursor.Set(best)
		// The pool query must not stall the dispatch loop; its reply goes
		// straight to the caller while the loop serves the next request.
		go e.fetchPending(req)
	}
}

// fetchPending resolves a pending-transaction poll off the dispatch loop.
// Both the full and the incremental poll return the current owned pending
// set: no pending cursor is tracked, every poll reports everything currently
// pending from owned accounts.
func (e *Engine) fetchPending(req *pollReq) {
	txs, err := e.pending.FetchOwned(req.ctx)
	if err != nil {
		req.reply <- pollResp{err: err}
		return
	}

	hashes := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash)
	}
	req.reply <- pollResp{changes: &filter.Changes{Kind: filter.KindPendingTx, Hashes: hashes}}
}

// blockHashes collects the canonical hashes of blocks in (cursor, best],
// ascending, capped to the most recent maxBlockHashes. A missing header ends
// the collection, mirroring the scanner's end-of-data policy.
func (e *Engine) blockHashes(ctx context.Context, cursor, best *big.Int) []common.Hash {
	hashes := []common.Hash{}

	start := new(big.Int).Add(cursor, big.NewInt(1))
	// Only the most recent maxBlockHashes survive the cap, so older blocks
	// in the window are never fetched.
	if window := new(big.Int).Sub(best, big.NewInt(maxBlockHashes-1)); start.Cmp(window) < 0 {
		start = window
	}

	one := big.NewInt(1)
	for num := start; num.Cmp(best) <= 0; num.Add(num, one) {
		header, err := e.source.HeaderByNumber(ctx, num)
		if err != nil || header == nil {
			e.log.Debugf("block hash collection stopped at %s: header unavailable", num)
			break
		}
		hashes = append(hashes, header.Hash())
	}

	return hashes
}

func (e *Engine) handleSnapshot() snapshot {
	infos := make([]Info, 0, len(e.order))
	stats := Stats{ByKind: make(map[filter.Kind]int)}

	for _, id := range e.order {
		f := e.filters[id]
		info := Info{
			ID:              f.id,
			Kind:            f.kind,
			LastPolledBlock: new(big.Int).Set(f.cursor),
		}
		if f.kind == filter.KindLog {
			query := f.query
			info.Query = &query
		}
		infos = append(infos, info)
		stats.ByKind[f.kind]++
	}

	stats.Total = len(infos)
	return snapshot{infos: infos, stats: stats}
}

// resolveBlockNumber maps a block selector to a concrete height against the
// given best block: nil and all symbolic tags except "earliest" mean the best
// block, "earliest" means genesis. Resolution happens at query time so
// selectors track the moving head.
func resolveBlockNumber(bn *rpc.BlockNumber, best *big.Int) *big.Int {
	if bn == nil {
		return new(big.Int).Set(best)
	}

	switch *bn {
	case rpc.EarliestBlockNumber:
		return big.NewInt(0)
	case rpc.LatestBlockNumber, rpc.PendingBlockNumber, rpc.FinalizedBlockNumber, rpc.SafeBlockNumber:
		return new(big.Int).Set(best)
	default:
		if *bn < 0 {
			return new(big.Int).Set(best)
		}
		return big.NewInt(bn.Int64())
	}
}
