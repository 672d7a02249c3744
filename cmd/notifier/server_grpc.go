package main

import (
	"net"

	"github.com/NordCoder/Herald/internal/obs"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// buildGRPCServer exposes the standard health service so orchestrators can
// probe the notifier the same way they probe other gRPC services.
func buildGRPCServer(addr string) (*grpc.Server, *health.Server, net.Listener, error) {
	s := grpc.NewServer(obs.GRPCServerOpts()...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	grpcprometheus.Register(s)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, hs, ln, nil
}

func serveGRPC(s *grpc.Server, ln net.Listener, logger *zap.Logger) error {
	logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
	return s.Serve(ln)
}
