// Package grpc runs the backend's gRPC health service. Clients probe it to
// decide whether to attempt a sync pass.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// defaultCheckInterval is how often the serving status is re-evaluated.
const defaultCheckInterval = 10 * time.Second

// Check reports whether the backend's dependencies are reachable.
type Check func(ctx context.Context) error

type HealthServer struct {
	address  string
	check    Check
	interval time.Duration
	health   *health.Server
	logger   logging.Logger
}

// NewHealthServer returns a server for address. A nil check always reports
// SERVING.
func NewHealthServer(address string, check Check, l logging.Logger) *HealthServer {
	return &HealthServer{
		address:  address,
		check:    check,
		interval: defaultCheckInterval,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
}

// refresh runs the check once and publishes the result.
func (s *HealthServer) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		cctx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
}

func (s *HealthServer) monitor(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *HealthServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.recoveryInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)
	go s.monitor(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
