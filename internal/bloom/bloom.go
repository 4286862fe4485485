package bloom

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/ChainFilters/pkg/filter"
)

// Candidate is a single byte string probed against bloom filters.
// It satisfies the bytesBacked constraint of types.BloomLookup.
type Candidate []byte

// Bytes returns the raw candidate bytes.
func (c Candidate) Bytes() []byte { return c }

// Candidates is the flattened set of byte strings a query probes bloom
// filters for: the address constraint (if any) plus every non-wildcard topic
// value across all positions.
type Candidates []Candidate

// FromQuery flattens a log query into its bloom candidates.
func FromQuery(q filter.Query) Candidates {
	var c Candidates

	if q.Address != nil {
		c = append(c, Candidate(q.Address.Bytes()))
	}

	for _, set := range q.Topics {
		for _, topic := range set {
			c = append(c, Candidate(topic.Bytes()))
		}
	}

	return c
}

// MatchesBloom reports whether the bloom filter may contain at least one of
// the candidates. It is a pre-filter: false guarantees no exact match exists
// in the covered data, true only permits one, so exact matching downstream
// stays mandatory. An empty candidate set always passes, since an
// unconstrained query must never be screened out.
func (c Candidates) MatchesBloom(bloom types.Bloom) bool {
	if len(c) == 0 {
		return true
	}

	for _, candidate := range c {
		if types.BloomLookup(bloom, candidate) {
			return true
		}
	}

	return false
}
