package handler

import (
	"context"
	"math"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newGRPCClient(t *testing.T, ts *testServer) *SalesServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterSalesServiceServer(srv, NewGRPCHandler(ts.sales, ts.returns, ts.inventory, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSalesServiceClient(conn)
}

func TestGRPC_SaleLifecycle(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()

	adjusted, err := client.AdjustStock(ctx, &AdjustStockRequestMsg{ProductID: "P1", Quantity: 10, Operation: "add"})
	require.NoError(t, err)
	assert.Equal(t, int32(10), adjusted.NewQuantity)

	created, err := client.CreateSale(ctx, &CreateSaleRequestMsg{
		CustomerID: "C1",
		UserID:     "U1",
		Items:      []SaleLine{{ProductID: "P1", Quantity: 3, UnitPrice: decimal.RequireFromString("1.25")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "3.75", created.TotalAmount)
	assert.Equal(t, 7, ts.stock(t, "P1"))

	_, err = client.CancelSale(ctx, &CancelSaleRequestMsg{SaleID: created.SaleID, UserID: "U2", Reason: "void"})
	require.NoError(t, err)
	assert.Equal(t, 10, ts.stock(t, "P1"))

	_, err = client.CancelSale(ctx, &CancelSaleRequestMsg{SaleID: created.SaleID, UserID: "U2", Reason: "void"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPC_ApproveReturn(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()
	ts.seed(t, "P1", 10)

	created, err := client.CreateSale(ctx, &CreateSaleRequestMsg{
		CustomerID: "C1",
		UserID:     "U1",
		Items:      []SaleLine{{ProductID: "P1", Quantity: 5, UnitPrice: decimal.RequireFromString("3.00")}},
	})
	require.NoError(t, err)

	ret := ts.requestReturn(t, created.SaleID, "P1", 2)

	reply, err := client.ApproveReturn(ctx, &ApproveReturnRequestMsg{ReturnID: ret, UserID: "M1"})
	require.NoError(t, err)
	assert.Equal(t, "approved", reply.Status)
	assert.Equal(t, 7, ts.stock(t, "P1"))
}

func TestGRPC_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()
	ts.seed(t, "P1", 2)

	_, err := client.CreateSale(ctx, &CreateSaleRequestMsg{
		CustomerID: "C1",
		UserID:     "U1",
		Items:      []SaleLine{{ProductID: "P1", Quantity: 3, UnitPrice: decimal.NewFromInt(1)}},
	})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.ApproveReturn(ctx, &ApproveReturnRequestMsg{ReturnID: 99, UserID: "M1"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.AdjustStock(ctx, &AdjustStockRequestMsg{ProductID: "P1", Quantity: 1, Operation: "double"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 2, ts.stock(t, "P1"))

	_, err = client.AdjustStock(ctx, &AdjustStockRequestMsg{ProductID: "P1", Quantity: math.MaxInt32, Operation: "add"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "stock never grows past what the reply can carry")
	assert.Equal(t, 2, ts.stock(t, "P1"))
}
