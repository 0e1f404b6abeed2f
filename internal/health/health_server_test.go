package health

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"testing"
	"time"
)

func TestHealthServer(t *testing.T) {
	t.Run("Reports the serving status set by the forwarder", func(t *testing.T) {
		hs, err := NewHealthServer(0, zap.NewNop())
		require.Nil(t, err)
		hs.Start()
		defer hs.Close()

		conn, err := grpc.NewClient(hs.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.Nil(t, err)
		defer conn.Close()
		healthClient := healthpb.NewHealthClient(conn)

		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, healthClient))
		hs.SetServing(true)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, healthClient))
		hs.SetServing(false)
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, healthClient))
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		hs, err := NewHealthServer(0, zap.NewNop())
		require.Nil(t, err)
		hs.Start()
		assert.Nil(t, hs.Close())
		assert.Nil(t, hs.Close())
	})
}

func check(t *testing.T, healthClient healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.Nil(t, err)
	return res.Status
}
