package client

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*health.Server, *HealthProber) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	p, err := NewHealthProber("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return hs, p
}

func TestHealthProber_Serving(t *testing.T) {
	hs, p := startHealth(t)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	require.NoError(t, p.Ping(context.Background()))
}

func TestHealthProber_NotServing(t *testing.T) {
	hs, p := startHealth(t)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	require.ErrorIs(t, p.Ping(context.Background()), ErrUnavailable)
}

func TestHealthProber_Down(t *testing.T) {
	p, err := NewHealthProber("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return nil, net.ErrClosed
		}))
	require.NoError(t, err)
	defer p.Close()

	require.ErrorIs(t, p.Ping(context.Background()), ErrUnavailable)
}
