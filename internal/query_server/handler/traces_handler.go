package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/argus-apm/argus/pkg/profiler"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
)

// TracesHandler creates a handler listing stored traces, optionally bounded
// by an inclusive start-time range given as unix milliseconds.
// @Summary List stored traces.
// @Tags traces
// @Produce json
// @Param from query int false "Inclusive lower bound on trace start (unix ms)"
// @Param to query int false "Inclusive upper bound on trace start (unix ms)"
// @Success 200 {array} model.Trace "Stored traces"
// @Failure 400 {object} ErrorMessage "Malformed range parameter"
// @Router /traces [get]
func TracesHandler(core *profiler.ProfilerCore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var traces []*traceModel.Trace
		fromParam := r.URL.Query().Get("from")
		toParam := r.URL.Query().Get("to")
		if fromParam == "" && toParam == "" {
			traces = core.GetAllTraces()
		} else {
			from, to, err := parseTimeRange(fromParam, toParam)
			if err != nil {
				logger.Error("Error encountered when parsing time range", zap.Error(err))
				HttpError(w, "Invalid time range", http.StatusBadRequest, logger)
				return
			}
			traces = core.GetTracesByTimeRange(from, to)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(traces); err != nil {
			logger.Error("Error encountered when encoding traces response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
		}
	}
}

// TraceByIdHandler creates a handler returning one trace with its spans.
// @Summary Get one trace by id.
// @Tags traces
// @Produce json
// @Param id path string true "Trace id"
// @Success 200 {object} model.Trace "The trace"
// @Failure 404 {object} ErrorMessage "Unknown trace id"
// @Router /traces/{id} [get]
func TraceByIdHandler(core *profiler.ProfilerCore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		trace := core.GetTrace(id)
		if trace == nil {
			HttpError(w, "Trace not found", http.StatusNotFound, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(trace); err != nil {
			logger.Error("Error encountered when encoding trace response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
		}
	}
}

func parseTimeRange(fromParam string, toParam string) (time.Time, time.Time, error) {
	from := time.UnixMilli(0)
	to := time.UnixMilli(1<<62 - 1)
	if fromParam != "" {
		fromMs, err := strconv.ParseInt(fromParam, 10, 64)
		if err != nil {
			return from, to, err
		}
		from = time.UnixMilli(fromMs)
	}
	if toParam != "" {
		toMs, err := strconv.ParseInt(toParam, 10, 64)
		if err != nil {
			return from, to, err
		}
		to = time.UnixMilli(toMs)
	}
	return from, to, nil
}
