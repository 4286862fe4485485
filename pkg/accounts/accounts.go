package accounts

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrAccountsUnavailable is returned when the locally-controlled account list
// cannot be obtained from the upstream source. It is surfaced to callers of
// pending-transaction queries rather than degraded to an empty result.
var ErrAccountsUnavailable = errors.New("account list unavailable")

// Source provides the set of locally-controlled account addresses.
// This abstraction allows for easier testing and alternative implementations;
// the repo ships a config-backed static list and a node-backed implementation.
type Source interface {
	// ListAccounts returns the locally-controlled addresses. Implementations
	// wrap upstream failures in ErrAccountsUnavailable.
	ListAccounts(ctx context.Context) ([]common.Address, error)
}
