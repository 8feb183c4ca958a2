// Package health serves grpc.health.v1.Health for the ops plane. The
// overall service is SERVING while the process runs; LogsService follows the
// outcome of the last event log write.
package health

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// LogsService reports whether the event log sinks accept writes.
const LogsService = "authgate.logs"

type Server struct {
	address string
	logger  logging.Logger
	health  *health.Server
}

func NewServer(address string, logger logging.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(LogsService, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		address: address,
		logger:  logger.With("module", "health"),
		health:  hs,
	}
}

// OnWrite flips LogsService to NOT_SERVING after a failed write and back
// after a successful one.
func (s *Server) OnWrite(stream string, err error) {
	if err != nil {
		s.health.SetServingStatus(LogsService, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.health.SetServingStatus(LogsService, healthpb.HealthCheckResponse_SERVING)
}

// OnDrop does not change health; drops are visible in metrics.
func (s *Server) OnDrop(string) {}

// Check answers a health probe in process.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Run serves until ctx is done, then marks everything NOT_SERVING and stops
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
