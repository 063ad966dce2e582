package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/argus-apm/argus/pkg/profiler"
	traceService "github.com/argus-apm/argus/pkg/trace/service"
)

// ExportHandler creates a handler exporting the trace store as JSON or CSV.
// @Summary Export stored traces.
// @Tags export
// @Produce json
// @Param format query string false "json or csv (default json)"
// @Success 200 {string} string "Exported traces"
// @Failure 400 {object} ErrorMessage "Unsupported format"
// @Router /export [get]
func ExportHandler(core *profiler.ProfilerCore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := traceService.ExportFormat(r.URL.Query().Get("format"))
		if format == "" {
			format = traceService.ExportFormatJson
		}

		out, err := core.Export(format)
		if err != nil {
			logger.Error("Error encountered when exporting traces", zap.Error(err))
			HttpError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}

		switch format {
		case traceService.ExportFormatCsv:
			w.Header().Set("Content-Type", "text/csv")
		default:
			w.Header().Set("Content-Type", "application/json")
		}
		if _, err := w.Write([]byte(out)); err != nil {
			logger.Error("Error encountered when writing export response", zap.Error(err))
		}
	}
}

// MetricsHandler creates a handler exporting the metric ring as JSON.
// @Summary Export recorded metrics.
// @Tags export
// @Produce json
// @Success 200 {array} model.Metric "Recorded metrics"
// @Router /metrics [get]
func MetricsHandler(core *profiler.ProfilerCore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := core.GetMetrics().Export()
		if err != nil {
			logger.Error("Error encountered when exporting metrics", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(out)); err != nil {
			logger.Error("Error encountered when writing metrics response", zap.Error(err))
		}
	}
}
