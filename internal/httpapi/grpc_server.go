package httpapi

import (
	"context"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"pitchgate.app/internal/obs"
)

// GRPCServer exposes grpc.health.v1.Health for process supervisors.
type GRPCServer struct {
	Server *grpc.Server
	health *health.Server
}

// NewGRPCServer starts in NOT_SERVING; call SetServing once the client is ready.
func NewGRPCServer() *GRPCServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(recoverInterceptor(), logInterceptor()))
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)
	return &GRPCServer{Server: s, health: h}
}

func (g *GRPCServer) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", st)
	g.health.SetServingStatus(serviceName, st)
}

func (g *GRPCServer) Serve(lis net.Listener) error { return g.Server.Serve(lis) }

// Stop marks the service NOT_SERVING and drains in-flight calls.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.Server.GracefulStop()
}

func recoverInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				obs.Logger().ErrorContext(ctx, "grpc.panic", "method", info.FullMethod, "panic", p, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func logInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log := obs.Logger().With("method", info.FullMethod, "code", status.Code(err).String(), "duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			log.WarnContext(ctx, "grpc.request", "error", err)
			return resp, err
		}
		log.DebugContext(ctx, "grpc.request")
		return resp, nil
	}
}
