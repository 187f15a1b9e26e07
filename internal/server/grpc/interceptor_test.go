package grpc

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestServer() *HealthServer {
	return NewHealthServer("127.0.0.1:0", nil, logging.NewDiscard())
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := newTestServer()

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	handlerCalled := false
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestLoggingInterceptor_KeepsError(t *testing.T) {
	s := newTestServer()

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	_, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRecoveryInterceptor_TurnsPanicIntoInternal(t *testing.T) {
	s := newTestServer()

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	}

	resp, err := s.recoveryInterceptor(context.Background(), nil, info, h)
	if resp != nil {
		t.Fatalf("expected nil resp, got %v", resp)
	}
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}
