package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	flamegraphService "github.com/argus-apm/argus/pkg/flamegraph/service"
	"github.com/argus-apm/argus/pkg/profiler"
)

const (
	flamegraphWidth  = 1200
	flamegraphHeight = 400
)

// FlamegraphHandler creates a handler rendering a trace's flame graph as
// SVG. Completed traces are served from the render cache; generation is pure
// so a cache miss just regenerates.
// @Summary Render a trace flame graph.
// @Tags traces
// @Produce image/svg+xml
// @Param id path string true "Trace id"
// @Success 200 {string} string "SVG document"
// @Failure 404 {object} ErrorMessage "Unknown trace id"
// @Router /flamegraph/{id} [get]
func FlamegraphHandler(
	core *profiler.ProfilerCore,
	renderCache flamegraphService.RenderCache,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if svg, err := renderCache.Get(id); err == nil {
			writeSvg(w, svg, logger)
			return
		}

		trace := core.GetTrace(id)
		if trace == nil {
			HttpError(w, "Trace not found", http.StatusNotFound, logger)
			return
		}

		frameTree, err := flamegraphService.GenerateFromTrace(trace)
		if err != nil {
			logger.Error("Error encountered when generating flamegraph", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		svg := flamegraphService.ToSVG(frameTree, flamegraphWidth, flamegraphHeight)

		// Only completed traces are cached; pending ones still change.
		if trace.IsCompleted() {
			if err := renderCache.Put(id, svg); err != nil {
				logger.Debug("Failed to cache rendered flamegraph", zap.Error(err))
			}
		}
		writeSvg(w, svg, logger)
	}
}

func writeSvg(w http.ResponseWriter, svg string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err := w.Write([]byte(svg)); err != nil {
		logger.Error("Error encountered when writing svg response", zap.Error(err))
	}
}
