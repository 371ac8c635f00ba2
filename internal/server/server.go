package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"clearinghouse/internal/observability"
)

// Server exposes the daemon's operational surface: a gRPC endpoint with
// health and reflection services, and an HTTP endpoint for liveness,
// readiness, and Prometheus metrics. The trading surface itself is
// in-process; callers embed the engine and talk Go.
type Server struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server
	httpServer *http.Server

	grpcAddr string
	httpAddr string

	checker *observability.HealthChecker
	admin   *AdminAPI
	log     zerolog.Logger
}

func New(grpcAddr, httpAddr string, checker *observability.HealthChecker, admin *AdminAPI, log zerolog.Logger) *Server {
	grpcServer := grpc.NewServer()

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		healthSrv:  healthSrv,
		grpcAddr:   grpcAddr,
		httpAddr:   httpAddr,
		checker:    checker,
		admin:      admin,
		log:        log,
	}
}

// SetServing flips the gRPC health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthSrv.SetServingStatus("", status)
}

// StartGRPC serves the gRPC endpoint until ctx is cancelled (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("grpc server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP serves health and metrics endpoints until ctx is cancelled
// (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.checker.LivenessHandler)
	mux.HandleFunc("/readyz", s.checker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())
	if s.admin != nil {
		s.admin.Register(mux)
	}

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
