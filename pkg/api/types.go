package api

import (
	"time"

	"github.com/goran-ethernal/ChainFilters/pkg/filter"
)

// FilterInfo describes one installed filter as exposed over the REST surface.
// The ID uses the same hex-quantity form as the JSON-RPC API, so values can be
// fed straight back into eth_getFilterChanges.
type FilterInfo struct {
	ID              string        `json:"id"`
	Kind            filter.Kind   `json:"kind"`
	Query           *filter.Query `json:"query,omitempty"`
	LastPolledBlock uint64        `json:"last_polled_block"`
}

// StatusResponse summarizes the filter registry.
type StatusResponse struct {
	Total  int                 `json:"total"`
	ByKind map[filter.Kind]int `json:"by_kind"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Filters   int       `json:"filters"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
