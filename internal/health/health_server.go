package health

import (
	"fmt"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"net"
	"sync"
)

// ServiceName is the name orchestrator probes pass in their health check requests.
const ServiceName = "xray_forwarder"

type HealthServer struct {
	srv       *grpc.Server
	health    *health.Server
	listener  net.Listener
	closeOnce sync.Once
	logger    *zap.Logger
}

func NewHealthServer(port int, logger *zap.Logger) (*HealthServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on health port %d: %w", port, err)
	}
	srv := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{
		srv:      srv,
		health:   healthServer,
		listener: listener,
		logger:   logger,
	}, nil
}

func (hs *HealthServer) Start() {
	go func() {
		hs.logger.Info("gRPC health server started", zap.String("address", hs.listener.Addr().String()))
		if err := hs.srv.Serve(hs.listener); err != nil {
			hs.logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
}

func (hs *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus("", status)
	hs.health.SetServingStatus(ServiceName, status)
}

func (hs *HealthServer) Addr() net.Addr {
	return hs.listener.Addr()
}

// Close reports NOT_SERVING to watchers and stops the server.
func (hs *HealthServer) Close() error {
	hs.closeOnce.Do(func() {
		hs.health.Shutdown()
		hs.srv.GracefulStop()
	})
	return nil
}
