package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"parkreserve-backend/internal/api/grpc/interceptor"
	"parkreserve-backend/internal/logger"
)

// ServiceName is the health-checked service name besides the overall "".
const ServiceName = "parkreserve.ReservationEngine"

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer builds the gRPC server exposing grpc.health.v1 and reflection.
func NewServer() (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Recovery(), interceptor.Logging()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)
	return s, hs
}

// WatchStore updates the serving status from store pings until ctx is done.
func WatchStore(ctx context.Context, hs *health.Server, store Pinger, interval time.Duration) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("Store ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
