package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthProber asks the backend's gRPC health service whether it is
// serving. The sync loop uses it to notice offline to online transitions.
type HealthProber struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

var _ Pinger = (*HealthProber)(nil)

// NewHealthProber connects lazily to addr. Extra dial options are appended
// after the default insecure transport credentials.
func NewHealthProber(addr string, opts ...grpc.DialOption) (*HealthProber, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &HealthProber{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

func (p *HealthProber) Ping(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return mapGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: health status %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (p *HealthProber) Close() error {
	return p.conn.Close()
}

func mapGRPCError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	}
}
