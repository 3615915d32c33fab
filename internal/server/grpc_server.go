package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	reflectionv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	reflectionv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/oggyb/muzz-daily/internal/config"
)

// Server is the gRPC server with every service, health and reflection registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// New builds the server and registers all provided services.
func New(logger *slog.Logger, registrars ...Registrar) *Server {
	s := &Server{
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryInterceptor(logger))),
		health: health.NewServer(),
		logger: logger,
	}

	for _, r := range registrars {
		r.Register(s.grpc)
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)

	// enable reflection for easier debugging with grpcurl
	opts := reflection.ServerOptions{
		Services:           s.grpc,
		DescriptorResolver: s.serviceFiles(),
	}
	reflectionv1.RegisterServerReflectionServer(s.grpc, reflection.NewServerV1(opts))
	reflectionv1alpha.RegisterServerReflectionServer(s.grpc, reflection.NewServer(opts))

	for name := range s.grpc.GetServiceInfo() {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return s
}

// serviceFiles collects the proto files registered services carry in
// their Metadata. Lookups it cannot answer go to protoregistry.GlobalFiles.
func (s *Server) serviceFiles() protodesc.Resolver {
	files := new(protoregistry.Files)
	for name, info := range s.grpc.GetServiceInfo() {
		fd, ok := info.Metadata.(protoreflect.FileDescriptor)
		if !ok {
			continue
		}
		if err := files.RegisterFile(fd); err != nil {
			s.logger.Warn("service descriptor not registered for reflection", "service", name, "err", err)
		}
	}
	return layeredFiles{files, protoregistry.GlobalFiles}
}

// layeredFiles resolves from each registry in turn.
type layeredFiles []*protoregistry.Files

func (l layeredFiles) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	for _, f := range l {
		if fd, err := f.FindFileByPath(path); err == nil {
			return fd, nil
		}
	}
	return nil, protoregistry.NotFound
}

func (l layeredFiles) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	for _, f := range l {
		if d, err := f.FindDescriptorByName(name); err == nil {
			return d, nil
		}
	}
	return nil, protoregistry.NotFound
}

// GRPC exposes the underlying server.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Serve blocks on lis until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Run listens on the configured address and serves until ctx ends, then
// drains in-flight calls.
func (s *Server) Run(ctx context.Context, cfg *config.Config) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("starting gRPC server", "addr", addr)
	return s.Serve(lis)
}

// Stop flips health to NOT_SERVING and stops gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
