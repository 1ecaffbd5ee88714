package app

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// startTestService собирает сервисы поверх in-memory хранилища с демо-данными и отдаёт клиента через bufconn.
func startTestService(t *testing.T, cfg Config) (*grpc.ClientConn, runtimeDependencies) {
	t.Helper()

	logger := log.WithField("test", t.Name())
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	services, err := NewServices(cfg, deps, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger)
	require.NoError(t, err)

	server, _ := newGRPCServer(services.CheckoutGRPC, logger)
	listener := bufconn.Listen(1024 * 1024)
	go func() { _ = server.Serve(listener) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
		_ = deps.close()
	})
	return conn, deps
}

func TestNewServices_CheckoutLifecycle(t *testing.T) {
	conn, deps := startTestService(t, DefaultConfig())
	client := grpcsvc.NewCheckoutServiceClient(conn)
	ctx := context.Background()

	created, err := client.Checkout(ctx, &grpcsvc.CheckoutRequest{
		CustomerID: memory.DemoCustomerID,
		RequestKey: "cart-1",
		Lines:      []grpcsvc.Line{{ProductID: "sku-coffee", Qty: 2}},
		Shipping: grpcsvc.Shipping{
			ReceiverName: "Tran Thi B",
			Phone:        "+84911111111",
			Address:      "12 Nguyen Hue",
			City:         "Ho Chi Minh City",
		},
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	order := created.Order
	require.Equal(t, "VND", order.Currency)
	require.Equal(t, int64(500_000), order.SubtotalMinor)
	require.Equal(t, int64(35_000), order.ShippingFeeMinor)
	require.Equal(t, order.SubtotalMinor+order.ShippingFeeMinor, order.TotalMinor)
	require.Equal(t, "pending", order.Status)

	stats, err := deps.outbox.Stats(ctx)
	require.NoError(t, err)
	require.Positive(t, stats.PendingCount)

	moved, err := client.TransitionOrderStatus(ctx, &grpcsvc.TransitionOrderStatusRequest{
		OrderID:        order.OrderID,
		ExpectedStatus: "pending",
		NewStatus:      "confirmed",
		ActorID:        "staff-1",
	})
	require.NoError(t, err)
	require.True(t, moved.Applied)
	require.Equal(t, "confirmed", moved.Order.Status)

	history, err := client.GetOrderHistory(ctx, &grpcsvc.GetOrderHistoryRequest{OrderID: order.OrderID})
	require.NoError(t, err)
	require.Len(t, history.Entries, 2)
}

func TestNewServices_UsesConfiguredPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShippingBaseFee = 10_000
	cfg.ShippingPerKgFee = 0
	cfg.Currency = "USD"

	conn, _ := startTestService(t, cfg)
	client := grpcsvc.NewCheckoutServiceClient(conn)

	created, err := client.Checkout(context.Background(), &grpcsvc.CheckoutRequest{
		CustomerID: memory.DemoCustomerID,
		Lines:      []grpcsvc.Line{{ProductID: "sku-coffee", Qty: 2}},
		Shipping: grpcsvc.Shipping{
			ReceiverName: "Le Van C",
			Phone:        "+84922222222",
			Address:      "5 Hai Ba Trung",
		},
		PaymentMethod: "cod",
	})
	require.NoError(t, err)
	require.Equal(t, int64(10_000), created.Order.ShippingFeeMinor)
	require.Equal(t, "USD", created.Order.Currency)
}

func TestNewServices_RejectsInvalidNodeID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = 4096

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "node-id"))
	require.NoError(t, err)

	_, err = NewServices(cfg, deps, nil, nil)
	require.Error(t, err)
}

func TestNewGRPCServer_ReportsServing(t *testing.T) {
	conn, _ := startTestService(t, DefaultConfig())

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: grpcsvc.ServiceName,
	})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
