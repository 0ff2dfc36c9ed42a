// Package grpcapi exposes the standard gRPC health service so orchestrators
// can check the dispatcher without going through HTTP.
package grpcapi

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// DispatchService is the health service name reporting the last run's result.
const DispatchService = "poolpilot.Dispatch"

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
}

func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		logger:     logger.Named("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(DispatchService, healthpb.HealthCheckResponse_SERVING)
	return s
}

// ObserveRun updates the dispatch service status from a finished run.  A
// failed run marks it NOT_SERVING until the next successful one.
func (s *Server) ObserveRun(_ types.RunSummary, err error) {
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(DispatchService, status)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight calls, falling
// back to a hard stop when ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}
