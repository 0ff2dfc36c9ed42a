package grpcapi_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/poolpilot/alerts/internal/grpcapi"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

func newHealthClient(t *testing.T, srv *grpcapi.Server) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_ServingOnStart(t *testing.T) {
	c := newHealthClient(t, grpcapi.NewServer(zap.NewNop()))

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, grpcapi.DispatchService))
}

func TestHealth_TracksRunOutcome(t *testing.T) {
	srv := grpcapi.NewServer(zap.NewNop())
	c := newHealthClient(t, srv)

	srv.ObserveRun(types.RunSummary{}, errors.New("store select: db down"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, grpcapi.DispatchService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))

	srv.ObserveRun(types.RunSummary{Sent: 1}, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, grpcapi.DispatchService))
}
