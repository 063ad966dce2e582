package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/argus-apm/argus/internal/query_server/handler"
	flamegraphService "github.com/argus-apm/argus/pkg/flamegraph/service"
	"github.com/argus-apm/argus/pkg/profiler"
	"github.com/argus-apm/argus/pkg/throttle"
)

func CreateRouter(
	core *profiler.ProfilerCore,
	renderCache flamegraphService.RenderCache,
	exportThrottle throttle.Throttler,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle("/stats", handler.StatsHandler(core, logger)).Methods("GET")
	r.Handle("/traces", handler.TracesHandler(core, logger)).Methods("GET")
	r.Handle("/traces/{id}", handler.TraceByIdHandler(core, logger)).Methods("GET")
	r.Handle(
		"/export",
		throttled(exportThrottle, handler.ExportHandler(core, logger), logger),
	).Methods("GET")
	r.Handle("/metrics", handler.MetricsHandler(core, logger)).Methods("GET")
	r.Handle(
		"/flamegraph/{id}",
		handler.FlamegraphHandler(core, renderCache, logger),
	).Methods("GET")

	return r
}

// throttled bounds the rate of an expensive endpoint. Export walks and
// serializes the whole store, so operator tooling gone haywire must not be
// able to starve the collector of CPU.
func throttled(t throttle.Throttler, next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow() {
			logger.Warn("Export request throttled", zap.String("remote", r.RemoteAddr))
			handler.HttpError(w, "Too many export requests", http.StatusTooManyRequests, logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}
