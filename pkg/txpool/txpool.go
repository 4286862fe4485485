package txpool

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultPendingTimeout is the reply bound applied when no explicit timeout
// is configured. The bridge and the config defaults both reference it.
const DefaultPendingTimeout = 5 * time.Second

// ErrPendingTimeout is returned when the pending pool does not reply within
// the configured bound. No partial result accompanies it.
var ErrPendingTimeout = errors.New("pending pool request timed out")

// Transaction is a pending transaction as reported by the pool, with the
// sender recovered by the reporting node.
type Transaction struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Value    *hexutil.Big    `json:"value"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Input    hexutil.Bytes   `json:"input"`
}

// Source provides the current pending transaction set.
// This abstraction allows for easier testing and alternative implementations;
// the repo ships an implementation backed by the upstream node's txpool API.
//
// Pending is invoked on a dedicated goroutine by the bridge, which enforces
// the reply bound; implementations only need to honor ctx cancellation.
type Source interface {
	Pending(ctx context.Context) ([]*Transaction, error)
}
