package grpcx

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// HealthReporter flips the standard gRPC health status of service according to check,
// re-evaluated every interval until ctx is done.
type HealthReporter struct {
	Server   *health.Server
	Service  string
	Check    func(context.Context) error
	Interval time.Duration
	Logger   *slog.Logger
}

func RegisterHealth(srv *grpc.Server) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return hs
}

func (h HealthReporter) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h.evaluate(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Server.Shutdown()
			return
		case <-ticker.C:
			h.evaluate(ctx)
		}
	}
}

func (h HealthReporter) evaluate(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.Check != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.Check(checkCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if h.Logger != nil {
				h.Logger.Warn("grpc health check failing", "service", h.Service, "err", err)
			}
		}
	}
	h.Server.SetServingStatus(h.Service, status)
}
