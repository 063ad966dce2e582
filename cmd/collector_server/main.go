package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/ristretto"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"

	"github.com/argus-apm/argus/internal/config"
	traceServer "github.com/argus-apm/argus/internal/otel_server/trace/server"
	"github.com/argus-apm/argus/internal/query_server/router"
	"github.com/argus-apm/argus/pkg/clock"
	flamegraphService "github.com/argus-apm/argus/pkg/flamegraph/service"
	"github.com/argus-apm/argus/pkg/profiler"
	"github.com/argus-apm/argus/pkg/throttle"
)

const exportRequestsPerWindow = 10

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	core := profiler.New(cfg.ToProfilerConfig(), logger)
	core.Init()
	defer core.Stop()

	listener, err := net.Listen("tcp", cfg.Server.GrpcListenAddress)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	srv := grpc.NewServer()
	protoTrace.RegisterTraceServiceServer(srv, traceServer.NewTraceServiceServerImpl(logger, core))
	logger.Info("gRPC service started, listening for OpenTelemetry traces...",
		zap.String("address", cfg.Server.GrpcListenAddress),
	)

	renderCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 16,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		logger.Fatal("Failed to create flamegraph render cache", zap.Error(err))
	}

	queryHandler := router.CreateRouter(
		core,
		flamegraphService.NewRenderCacheImpl(renderCache),
		throttle.NewTokenBucket(exportRequestsPerWindow, time.Second, clock.NewSystemClock()),
		logger,
	)
	httpServer := &http.Server{
		Addr:    cfg.Server.HttpListenAddress,
		Handler: queryHandler,
	}
	go func() {
		logger.Info("Query server started", zap.String("address", cfg.Server.HttpListenAddress))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("Query server failed", zap.Error(serveErr))
		}
	}()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("Shutting down")
		srv.GracefulStop()
	}()

	if err := srv.Serve(listener); err != nil {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}
