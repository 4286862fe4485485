package filter

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Query describes the matching criteria of a log filter.
//
// FromBlock and ToBlock are block selectors: nil means unspecified, which
// resolves to the current best block at query time, the same as
// rpc.LatestBlockNumber and rpc.PendingBlockNumber. rpc.EarliestBlockNumber
// resolves to genesis. Selectors are re-resolved on every poll, never frozen
// at filter creation.
//
// Address optionally pins the emitting contract; nil matches any contract.
//
// Topics constrain log topics positionally: position i matches if the set at
// position i is empty (wildcard) or contains the log's topic at that position.
// A query with more topic positions than a log has topics never matches that log.
type Query struct {
	FromBlock *rpc.BlockNumber
	ToBlock   *rpc.BlockNumber
	Address   *common.Address
	Topics    [][]common.Hash
}

// MarshalJSON renders the query in the Ethereum wire form.
func (q Query) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	if q.FromBlock != nil {
		out["fromBlock"] = q.FromBlock
	}
	if q.ToBlock != nil {
		out["toBlock"] = q.ToBlock
	}
	if q.Address != nil {
		out["address"] = q.Address
	}
	if q.Topics != nil {
		out["topics"] = q.Topics
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the Ethereum wire form of filter criteria: block
// selectors as hex quantities or tags, "address" as a single address or a
// one-element array, "topics" as an array of null / single topic / topic array
// entries. Multi-address criteria are rejected: this engine matches a single
// contract address per filter.
func (q *Query) UnmarshalJSON(data []byte) error {
	type input struct {
		FromBlock *rpc.BlockNumber  `json:"fromBlock"`
		ToBlock   *rpc.BlockNumber  `json:"toBlock"`
		Address   json.RawMessage   `json:"address"`
		Topics    []json.RawMessage `json:"topics"`
	}

	var raw input
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	q.FromBlock = raw.FromBlock
	q.ToBlock = raw.ToBlock
	q.Address = nil
	q.Topics = nil

	if len(raw.Address) > 0 && string(raw.Address) != "null" {
		addr, err := parseAddress(raw.Address)
		if err != nil {
			return err
		}
		q.Address = addr
	}

	if len(raw.Topics) > 0 {
		q.Topics = make([][]common.Hash, len(raw.Topics))
		for i, entry := range raw.Topics {
			set, err := parseTopicSet(entry)
			if err != nil {
				return fmt.Errorf("topics[%d]: %w", i, err)
			}
			q.Topics[i] = set
		}
	}

	return nil
}

func parseAddress(raw json.RawMessage) (*common.Address, error) {
	// single address
	var single common.Address
	if err := json.Unmarshal(raw, &single); err == nil {
		return &single, nil
	}

	// one-element address array
	var many []common.Address
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.New("invalid address(es) given")
	}
	switch len(many) {
	case 0:
		return nil, nil
	case 1:
		return &many[0], nil
	default:
		return nil, errors.New("only a single filter address is supported")
	}
}

// parseTopicSet parses one positional topic entry. JSON null and empty arrays
// are wildcards (empty set); a bare string is a one-element set.
func parseTopicSet(raw json.RawMessage) ([]common.Hash, error) {
	if string(raw) == "null" {
		return nil, nil
	}

	var single common.Hash
	if err := json.Unmarshal(raw, &single); err == nil {
		return []common.Hash{single}, nil
	}

	var many []common.Hash
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.New("invalid topic(s)")
	}
	return many, nil
}
