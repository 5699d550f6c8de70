package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/homeservices/libs/config"
	"github.com/md-rashed-zaman/homeservices/libs/db"
	"github.com/md-rashed-zaman/homeservices/libs/grpcx"
)

type grpcStopper interface {
	GracefulStop()
}

// startGRPC serves the standard gRPC health service so mesh and orchestrator probes can
// follow database reachability. It is off unless GRPC_PORT is set.
func startGRPC(ctx context.Context, logger *slog.Logger, pool *db.Pool) (grpcStopper, error) {
	if config.String("GRPC_PORT", "") == "" {
		return nil, nil
	}
	port, err := config.Port("GRPC_PORT", "")
	if err != nil {
		return nil, err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}

	srv := grpcx.NewServer(logger)
	hs := grpcx.RegisterHealth(srv)
	go grpcx.HealthReporter{
		Server:  hs,
		Service: "availability",
		Check:   db.ReadyCheck(pool),
		Logger:  logger,
	}.Run(ctx)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	return srv, nil
}
