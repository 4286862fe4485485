package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/internal/metrics"
	"github.com/goran-ethernal/ChainFilters/pkg/accounts"
	"github.com/goran-ethernal/ChainFilters/pkg/txpool"
)

// DefaultTimeout bounds the wait for the pending pool's reply.
const DefaultTimeout = txpool.DefaultPendingTimeout

// Bridge queries the pending transaction pool asynchronously and filters the
// result to transactions sent by locally-controlled accounts. The pool request
// runs on its own goroutine so a slow pool only delays the requesting caller,
// never the engine's dispatch loop.
type Bridge struct {
	accounts accounts.Source
	pool     txpool.Source
	timeout  time.Duration
	log      *logger.Logger
}

// NewBridge creates a Bridge. A non-positive timeout falls back to DefaultTimeout.
func NewBridge(accountSource accounts.Source, pool txpool.Source, timeout time.Duration, log *logger.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Bridge{
		accounts: accountSource,
		pool:     pool,
		timeout:  timeout,
		log:      log,
	}
}

// FetchOwned returns the current pending transactions whose sender is a
// locally-controlled account. Ownership is an exact set-membership test on the
// sender address.
//
// It fails with accounts.ErrAccountsUnavailable when the account list cannot
// be obtained, and with txpool.ErrPendingTimeout when the pool does not reply
// within the bound; a timeout never carries a partial result. Every call
// returns the full current owned set rather than a delta since the last poll.
func (b *Bridge) FetchOwned(ctx context.Context) ([]*txpool.Transaction, error) {
	addrs, err := b.accounts.ListAccounts(ctx)
	if err != nil {
		metrics.PendingFetchInc("accounts_unavailable")
		if !errors.Is(err, accounts.ErrAccountsUnavailable) {
			err = fmt.Errorf("%w: %v", accounts.ErrAccountsUnavailable, err)
		}
		return nil, err
	}
	owned := mapset.NewSet(addrs...)

	type reply struct {
		txs []*txpool.Transaction
		err error
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	replyCh := make(chan reply, 1)
	go func() {
		txs, err := b.pool.Pending(reqCtx)
		replyCh <- reply{txs: txs, err: err}
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case r := <-replyCh:
		if r.err != nil {
			metrics.PendingFetchInc("error")
			return nil, fmt.Errorf("pending pool request: %w", r.err)
		}
		metrics.PendingFetchInc("ok")
		return filterOwned(r.txs, owned), nil

	case <-timer.C:
		metrics.PendingFetchInc("timeout")
		b.log.Warnf("pending pool did not reply within %s", b.timeout)
		return nil, txpool.ErrPendingTimeout

	case <-ctx.Done():
		metrics.PendingFetchInc("cancelled")
		return nil, ctx.Err()
	}
}

func filterOwned(txs []*txpool.Transaction, owned mapset.Set[common.Address]) []*txpool.Transaction {
	result := make([]*txpool.Transaction, 0, len(txs))
	for _, tx := range txs {
		if owned.Contains(tx.From) {
			result = append(result, tx)
		}
	}
	return result
}
