package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/argus-apm/argus/pkg/profiler"
)

// StatsHandler creates a handler reporting duration statistics over the
// completed traces and spans in the store.
// @Summary Get aggregate trace and span statistics.
// @Tags stats
// @Produce json
// @Success 200 {object} service.CollectorStats "Aggregate statistics"
// @Router /stats [get]
func StatsHandler(core *profiler.ProfilerCore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(core.GetStats()); err != nil {
			logger.Error("Error encountered when encoding stats response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
		}
	}
}
