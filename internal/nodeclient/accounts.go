package nodeclient

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainFilters/pkg/accounts"
)

var _ accounts.Source = (*StaticAccounts)(nil)

// StaticAccounts is a fixed owned-account list taken from configuration, for
// deployments where the upstream node manages no keys (eth_accounts empty).
type StaticAccounts struct {
	addrs []common.Address
}

// NewStaticAccounts parses the configured address strings.
func NewStaticAccounts(addrs []string) (*StaticAccounts, error) {
	parsed := make([]common.Address, 0, len(addrs))
	for i, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("address[%d]: '%s' is not a valid address", i, addr)
		}
		parsed = append(parsed, common.HexToAddress(addr))
	}

	return &StaticAccounts{addrs: parsed}, nil
}

// ListAccounts returns the configured account list.
func (s *StaticAccounts) ListAccounts(ctx context.Context) ([]common.Address, error) {
	out := make([]common.Address, len(s.addrs))
	copy(out, s.addrs)
	return out, nil
}
