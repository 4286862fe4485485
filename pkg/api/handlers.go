package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/ChainFilters/internal/common"
	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/engine"
	"github.com/goran-ethernal/ChainFilters/pkg/filter"
)

// FilterRegistry defines the interface for inspecting installed filters.
// *engine.Engine satisfies it.
type FilterRegistry interface {
	List(ctx context.Context) ([]engine.Info, error)
	Stats(ctx context.Context) (engine.Stats, error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	registry FilterRegistry
	log      *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(registry FilterRegistry, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		log:      log,
	}
}

// ListFilters returns all installed filters in installation order.
// @Summary List all filters
// @Description Get a list of all installed filters with their kind, query and poll cursor
// @Tags Filters
// @Produce json
// @Success 200 {array} FilterInfo "List of filters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /filters [get]
func (h *Handler) ListFilters(w http.ResponseWriter, r *http.Request) {
	infos, err := h.registry.List(r.Context())
	if err != nil {
		h.log.Errorf("Failed to list filters: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list filters")
		return
	}

	out := make([]FilterInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, toFilterInfo(info))
	}

	respondJSON(w, http.StatusOK, out)
}

// GetFilter returns a single installed filter by ID.
// @Summary Get a filter
// @Description Retrieve one installed filter by its ID (decimal or 0x-prefixed hex)
// @Tags Filters
// @Produce json
// @Param id path string true "Filter ID"
// @Success 200 {object} FilterInfo "Filter details"
// @Failure 400 {object} ErrorResponse "Invalid filter ID"
// @Failure 404 {object} ErrorResponse "Filter not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /filters/{id} [get]
func (h *Handler) GetFilter(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := common.ParseUint64orHex(&idStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid filter id '%s'", idStr))
		return
	}

	infos, err := h.registry.List(r.Context())
	if err != nil {
		h.log.Errorf("Failed to list filters: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list filters")
		return
	}

	for _, info := range infos {
		if info.ID == filter.ID(id) {
			respondJSON(w, http.StatusOK, toFilterInfo(info))
			return
		}
	}

	respondError(w, http.StatusNotFound, fmt.Sprintf("filter '%s' not found", idStr))
}

// GetStatus returns registry counters.
// @Summary Get registry status
// @Description Retrieve the number of installed filters, total and per kind
// @Tags Status
// @Produce json
// @Success 200 {object} StatusResponse "Registry counters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registry.Stats(r.Context())
	if err != nil {
		h.log.Errorf("Failed to get registry stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get registry stats")
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		Total:  stats.Total,
		ByKind: stats.ByKind,
	})
}

// Health returns the health status of the API and the filter engine.
// @Summary Health check
// @Description Check the health status of the API and the filter engine
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "API health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	}

	// A stopped engine degrades the report but the endpoint itself stays up.
	stats, err := h.registry.Stats(r.Context())
	if err != nil {
		response.Status = "degraded"
	} else {
		response.Filters = stats.Total
	}

	respondJSON(w, http.StatusOK, response)
}

func toFilterInfo(info engine.Info) FilterInfo {
	out := FilterInfo{
		ID:    info.ID.Hex(),
		Kind:  info.Kind,
		Query: info.Query,
	}
	if info.LastPolledBlock != nil {
		out.LastPolledBlock = info.LastPolledBlock.Uint64()
	}
	return out
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode JSON first to catch any errors before writing status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		// Headers already sent, the partial response may have reached the client
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
