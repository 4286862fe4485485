// Package chaindb is a read-through SQLite cache in front of a chain source.
// It stores chain data only (headers, receipts, bodies); filter state never
// touches the database. Chain data is immutable per (height, hash) key, so
// cached entries are never invalidated, only pruned by height.
package chaindb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/russross/meddler"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/metrics"
	"github.com/goran-ethernal/ChainFilters/pkg/chain"
	"github.com/goran-ethernal/ChainFilters/pkg/config"
)

var _ chain.Source = (*CachedSource)(nil)

// CachedSource decorates a chain source with a SQLite read-through cache.
// Cache failures degrade to upstream reads; they never fail the request.
type CachedSource struct {
	upstream chain.Source
	db       *sql.DB
	retain   uint64
	log      *logger.Logger
}

// New opens (and migrates) the cache database and wraps the upstream source.
func New(upstream chain.Source, cfg *config.CacheConfig, log *logger.Logger) (*CachedSource, error) {
	db, err := openDB(cfg.DB)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(log, db, migrations); err != nil {
		db.Close()
		return nil, err
	}

	return &CachedSource{
		upstream: upstream,
		db:       db,
		retain:   cfg.RetainBlocks,
		log:      log,
	}, nil
}

// Close closes the cache database. The upstream source is not touched.
func (s *CachedSource) Close() error {
	return s.db.Close()
}

type headerRow struct {
	Number uint64      `meddler:"number"`
	Hash   common.Hash `meddler:"hash,hash"`
	Data   []byte      `meddler:"data"`
}

type blobRow struct {
	BlockHash   common.Hash `meddler:"block_hash,hash"`
	BlockNumber uint64      `meddler:"block_number"`
	Data        []byte      `meddler:"data"`
}

// HeaderByNumber serves the header from the cache when present, reading
// through to the upstream source otherwise.
func (s *CachedSource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var row headerRow
	err := meddler.QueryRow(s.db, &row, "SELECT * FROM headers WHERE number = ?", number.Uint64())
	if err == nil {
		var header types.Header
		if err := json.Unmarshal(row.Data, &header); err == nil {
			metrics.CacheLookupInc("header", "hit")
			return &header, nil
		}
		s.log.Warnf("discarding undecodable cached header %s: %v", number, err)
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.log.Warnf("header cache lookup failed for %s: %v", number, err)
	}
	metrics.CacheLookupInc("header", "miss")

	header, err := s.upstream.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	s.storeHeader(header)
	return header, nil
}

// ReceiptsByHash serves the block's receipts from the cache when present.
func (s *CachedSource) ReceiptsByHash(ctx context.Context, hash common.Hash) (types.Receipts, error) {
	var row blobRow
	err := meddler.QueryRow(s.db, &row, "SELECT * FROM receipts WHERE block_hash = ?", hash.Hex())
	if err == nil {
		var receipts types.Receipts
		if err := json.Unmarshal(row.Data, &receipts); err == nil {
			metrics.CacheLookupInc("receipts", "hit")
			return receipts, nil
		}
		s.log.Warnf("discarding undecodable cached receipts %s: %v", hash, err)
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.log.Warnf("receipts cache lookup failed for %s: %v", hash, err)
	}
	metrics.CacheLookupInc("receipts", "miss")

	receipts, err := s.upstream.ReceiptsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	s.storeBlob("receipts", hash, receipts)
	return receipts, nil
}

// BodyByHash serves the block body from the cache when present.
func (s *CachedSource) BodyByHash(ctx context.Context, hash common.Hash) (*types.Body, error) {
	var row blobRow
	err := meddler.QueryRow(s.db, &row, "SELECT * FROM bodies WHERE block_hash = ?", hash.Hex())
	if err == nil {
		var body types.Body
		if err := json.Unmarshal(row.Data, &body); err == nil {
			metrics.CacheLookupInc("body", "hit")
			return &body, nil
		}
		s.log.Warnf("discarding undecodable cached body %s: %v", hash, err)
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.log.Warnf("body cache lookup failed for %s: %v", hash, err)
	}
	metrics.CacheLookupInc("body", "miss")

	body, err := s.upstream.BodyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	s.storeBlob("bodies", hash, body)
	return body, nil
}

// BestBlockNumber always reads the upstream source: the head is the one
// moving value and must never be served stale.
func (s *CachedSource) BestBlockNumber(ctx context.Context) (*big.Int, error) {
	return s.upstream.BestBlockNumber(ctx)
}

func (s *CachedSource) storeHeader(header *types.Header) {
	data, err := json.Marshal(header)
	if err != nil {
		s.log.Warnf("failed to encode header %s for caching: %v", header.Number, err)
		return
	}

	number := header.Number.Uint64()
	_, err = s.db.Exec("INSERT OR REPLACE INTO headers (number, hash, data) VALUES (?, ?, ?)",
		number, header.Hash().Hex(), data)
	if err != nil {
		s.log.Warnf("failed to cache header %d: %v", number, err)
		return
	}

	s.prune(number)
}

func (s *CachedSource) storeBlob(table string, hash common.Hash, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Warnf("failed to encode %s %s for caching: %v", table, hash, err)
		return
	}

	// The header is cached before its receipts and body are ever requested,
	// so the height is resolvable from the headers table. Unresolvable rows
	// get height 0 and fall out at the next prune.
	var number uint64
	if err := s.db.QueryRow("SELECT number FROM headers WHERE hash = ?", hash.Hex()).Scan(&number); err != nil {
		number = 0
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (block_hash, block_number, data) VALUES (?, ?, ?)", table)
	if _, err := s.db.Exec(query, hash.Hex(), number, data); err != nil {
		s.log.Warnf("failed to cache %s for %s: %v", table, hash, err)
	}
}

// prune drops cached entries more than retain blocks behind the given height.
func (s *CachedSource) prune(best uint64) {
	if s.retain == 0 || best < s.retain {
		return
	}
	cutoff := best - s.retain

	for _, stmt := range []string{
		"DELETE FROM headers WHERE number <= ?",
		"DELETE FROM receipts WHERE block_number <= ?",
		"DELETE FROM bodies WHERE block_number <= ?",
	} {
		if _, err := s.db.Exec(stmt, cutoff); err != nil {
			s.log.Warnf("cache prune failed: %v", err)
			return
		}
	}
}
