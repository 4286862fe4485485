package scan

import (
	"context"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainFilters/internal/bloom"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/metrics"
	"github.com/goran-ethernal/ChainFilters/pkg/chain"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
)

// Scanner retrieves the logs matching a query over a block range, using bloom
// filters at block and receipt granularity to skip data that cannot match.
type Scanner struct {
	source chain.Source
	log    *logger.Logger
}

// New creates a Scanner reading from the given chain source.
func New(source chain.Source, log *logger.Logger) *Scanner {
	return &Scanner{
		source: source,
		log:    log,
	}
}

// Run scans block numbers from `from` to `to` inclusive, ascending, and
// returns the logs matching the query in (block, transaction, log index)
// order. An inverted range yields an empty result.
//
// Missing chain data (header, receipts or body) terminates the scan: the
// chain is assumed contiguous from genesis to best, so a gap means the range
// runs past known data, and whatever was accumulated is returned. A scan is
// never cancelled mid-range; it runs to completion or to a gap.
func (s *Scanner) Run(ctx context.Context, query filter.Query, from, to *big.Int) []*types.Log {
	logs := []*types.Log{}
	if from == nil || to == nil || from.Cmp(to) > 0 {
		return logs
	}

	metrics.ScanStartedInc()
	started := time.Now()
	defer func() {
		metrics.ScanDurationLog(time.Since(started))
		metrics.LogsMatchedInc(len(logs))
	}()

	candidates := bloom.FromQuery(query)

	one := big.NewInt(1)
	for num := new(big.Int).Set(from); num.Cmp(to) <= 0; num.Add(num, one) {
		header, err := s.source.HeaderByNumber(ctx, num)
		if err != nil || header == nil {
			s.log.Debugf("scan stopped at block %s: header unavailable", num)
			metrics.DataGapInc()
			return logs
		}
		metrics.BlocksScannedInc()

		if !candidates.MatchesBloom(header.Bloom) {
			metrics.BloomSkipInc("block")
			continue
		}

		blockHash := header.Hash()
		receipts, err := s.source.ReceiptsByHash(ctx, blockHash)
		if err != nil || receipts == nil {
			s.log.Debugf("scan stopped at block %s: receipts unavailable", num)
			metrics.DataGapInc()
			return logs
		}

		matched, ok := s.matchBlock(ctx, query, candidates, header, blockHash, receipts)
		logs = append(logs, matched...)
		if !ok {
			metrics.DataGapInc()
			return logs
		}
	}

	return logs
}

// matchBlock applies receipt-level bloom screening and exact matching to one
// block's receipts. The returned bool is false when the block body could not
// be fetched, which ends the surrounding scan.
func (s *Scanner) matchBlock(
	ctx context.Context,
	query filter.Query,
	candidates bloom.Candidates,
	header *types.Header,
	blockHash common.Hash,
	receipts types.Receipts,
) ([]*types.Log, bool) {
	var matched []*types.Log

	// Transaction hashes come from the body, fetched at most once per block
	// and only when a log actually matches.
	var body *types.Body

	// Position of the current receipt's first log within the block's
	// flattened log list. Receipts skipped by the bloom pre-filter still
	// advance it.
	logIndex := uint(0)

	for txIndex, receipt := range receipts {
		if !candidates.MatchesBloom(receipt.Bloom) {
			metrics.BloomSkipInc("receipt")
			logIndex += uint(len(receipt.Logs))
			continue
		}

		for i, entry := range receipt.Logs {
			if !matchLog(query, entry) {
				continue
			}

			if body == nil {
				b, err := s.source.BodyByHash(ctx, blockHash)
				if err != nil || b == nil {
					s.log.Debugf("scan stopped at block %s: body unavailable", header.Number)
					return matched, false
				}
				body = b
			}

			var txHash common.Hash
			if txIndex < len(body.Transactions) {
				txHash = body.Transactions[txIndex].Hash()
			}

			matched = append(matched, &types.Log{
				Address:     entry.Address,
				Topics:      entry.Topics,
				Data:        entry.Data,
				BlockNumber: header.Number.Uint64(),
				BlockHash:   blockHash,
				TxHash:      txHash,
				TxIndex:     uint(txIndex),
				Index:       logIndex + uint(i),
			})
		}

		logIndex += uint(len(receipt.Logs))
	}

	return matched, true
}

// matchLog is the exact address/topic predicate, applied after the bloom
// pre-filters pass. Topic sets are positional: an empty set is a wildcard, a
// constrained position past the log's topic count fails the log.
func matchLog(query filter.Query, entry *types.Log) bool {
	if query.Address != nil && *query.Address != entry.Address {
		return false
	}

	for i, set := range query.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(entry.Topics) {
			return false
		}
		if !slices.Contains(set, entry.Topics[i]) {
			return false
		}
	}

	return true
}
