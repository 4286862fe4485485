package filter

import (
	"math/rand/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ID identifies an installed filter. IDs are drawn from a uniform random
// 63-bit non-negative source at creation time. There is no collision check:
// with 2^63 possible values the collision probability across the lifetime of
// a process is accepted as negligible, and callers may depend on the plain
// numeric format, so no stronger uniqueness scheme is used.
type ID int64

// NewID returns a fresh random filter ID.
func NewID() ID {
	return ID(rand.Int64())
}

// Hex renders the ID as a 0x-prefixed hex quantity, the form used on the
// JSON-RPC surface.
func (id ID) Hex() string {
	return hexutil.Uint64(uint64(id)).String()
}

// Kind discriminates the filter variants.
type Kind string

const (
	// KindLog filters watch contract logs matching a Query.
	KindLog Kind = "log"
	// KindBlock filters watch new block hashes.
	KindBlock Kind = "block"
	// KindPendingTx filters watch pending transactions from locally-controlled accounts.
	KindPendingTx Kind = "pending-tx"
)

// Changes is the kind-shaped result of a filter poll. Log filters fill Logs;
// block and pending-transaction filters fill Hashes. Polling an unknown ID
// yields an empty log-shaped result rather than an error, so callers cannot
// distinguish a raced uninstall from a valid filter with no matches.
type Changes struct {
	Kind   Kind          `json:"kind"`
	Logs   []*types.Log  `json:"logs,omitempty"`
	Hashes []common.Hash `json:"hashes,omitempty"`
}

// EmptyChanges returns an empty result of the given kind, with the matching
// collection non-nil so it serializes as [] rather than null.
func EmptyChanges(kind Kind) *Changes {
	c := &Changes{Kind: kind}
	switch kind {
	case KindLog:
		c.Logs = []*types.Log{}
	default:
		c.Hashes = []common.Hash{}
	}
	return c
}
