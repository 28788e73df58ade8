package handler

import (
	"context"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/core/service"
)

// CodecName is the content-subtype of the JSON codec, so clients call with
// grpc.CallContentSubtype(CodecName).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const salesServiceName = "pos.v1.SalesService"

type SaleLine struct {
	ProductID string          `json:"productId"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CreateSaleRequestMsg struct {
	RequestID  string     `json:"requestId"`
	CustomerID string     `json:"customerId"`
	UserID     string     `json:"userId"`
	Items      []SaleLine `json:"items"`
}

type CreateSaleReply struct {
	SaleID      int64  `json:"saleId"`
	TotalAmount string `json:"totalAmount"`
}

type CancelSaleRequestMsg struct {
	SaleID int64  `json:"saleId"`
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type CancelSaleReply struct {
	SaleID int64 `json:"saleId"`
}

type ApproveReturnRequestMsg struct {
	ReturnID int64  `json:"returnId"`
	UserID   string `json:"userId"`
}

type ApproveReturnReply struct {
	ReturnID int64  `json:"returnId"`
	Status   string `json:"status"`
}

type AdjustStockRequestMsg struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
	Operation string `json:"operation"`
}

type AdjustStockReply struct {
	ProductID   string `json:"productId"`
	NewQuantity int32  `json:"newQuantity"`
}

// SalesServiceServer is the server side of pos.v1.SalesService.
type SalesServiceServer interface {
	CreateSale(context.Context, *CreateSaleRequestMsg) (*CreateSaleReply, error)
	CancelSale(context.Context, *CancelSaleRequestMsg) (*CancelSaleReply, error)
	ApproveReturn(context.Context, *ApproveReturnRequestMsg) (*ApproveReturnReply, error)
	AdjustStock(context.Context, *AdjustStockRequestMsg) (*AdjustStockReply, error)
}

func RegisterSalesServiceServer(s grpc.ServiceRegistrar, srv SalesServiceServer) {
	s.RegisterService(&salesServiceDesc, srv)
}

// unaryHandler adapts one typed method to the grpc.MethodDesc handler shape.
func unaryHandler[Req, Resp any](method string, call func(SalesServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SalesServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + salesServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(SalesServiceServer), ctx, req.(*Req))
		})
	}
}

var salesServiceDesc = grpc.ServiceDesc{
	ServiceName: salesServiceName,
	HandlerType: (*SalesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSale", Handler: unaryHandler("CreateSale", SalesServiceServer.CreateSale)},
		{MethodName: "CancelSale", Handler: unaryHandler("CancelSale", SalesServiceServer.CancelSale)},
		{MethodName: "ApproveReturn", Handler: unaryHandler("ApproveReturn", SalesServiceServer.ApproveReturn)},
		{MethodName: "AdjustStock", Handler: unaryHandler("AdjustStock", SalesServiceServer.AdjustStock)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pos/v1/sales.proto",
}

type GRPCHandler struct {
	sales     SaleService
	returns   ReturnService
	inventory InventoryService
	logger    *zap.Logger
}

func NewGRPCHandler(sales SaleService, returns ReturnService, inventory InventoryService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{sales: sales, returns: returns, inventory: inventory, logger: logger}
}

func (h *GRPCHandler) CreateSale(ctx context.Context, req *CreateSaleRequestMsg) (*CreateSaleReply, error) {
	items := make([]domain.SaleItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.SaleItem{ProductID: it.ProductID, Quantity: int(it.Quantity), UnitPrice: it.UnitPrice}
	}

	sale, err := h.sales.CreateSale(ctx, service.CreateSaleInput{
		RequestID:  req.RequestID,
		CustomerID: req.CustomerID,
		UserID:     req.UserID,
		Items:      items,
	})
	if err != nil {
		return nil, h.status("CreateSale", err)
	}
	return &CreateSaleReply{SaleID: sale.ID(), TotalAmount: sale.TotalAmount().String()}, nil
}

func (h *GRPCHandler) CancelSale(ctx context.Context, req *CancelSaleRequestMsg) (*CancelSaleReply, error) {
	sale, err := h.sales.CancelSale(ctx, req.SaleID, req.UserID, req.Reason)
	if err != nil {
		return nil, h.status("CancelSale", err)
	}
	return &CancelSaleReply{SaleID: sale.ID()}, nil
}

func (h *GRPCHandler) ApproveReturn(ctx context.Context, req *ApproveReturnRequestMsg) (*ApproveReturnReply, error) {
	ret, err := h.returns.ApproveReturn(ctx, req.ReturnID, req.UserID)
	if err != nil {
		return nil, h.status("ApproveReturn", err)
	}
	return &ApproveReturnReply{ReturnID: ret.ID(), Status: string(ret.Status())}, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustStockRequestMsg) (*AdjustStockReply, error) {
	qty, err := h.inventory.AdjustStock(ctx, req.ProductID, int(req.Quantity), service.AdjustOperation(req.Operation))
	if err != nil {
		return nil, h.status("AdjustStock", err)
	}
	if qty > math.MaxInt32 {
		return nil, status.Errorf(codes.OutOfRange, "stock of %s does not fit the reply", req.ProductID)
	}
	return &AdjustStockReply{ProductID: req.ProductID, NewQuantity: int32(qty)}, nil
}

func (h *GRPCHandler) status(method string, err error) error {
	mapped := mapError(err)
	if mapped.httpStatus >= 500 {
		h.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(mapped.grpcCode, mapped.body.Code+": "+mapped.body.Message)
}

// SalesServiceClient calls pos.v1.SalesService with the JSON codec.
type SalesServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSalesServiceClient(cc grpc.ClientConnInterface) *SalesServiceClient {
	return &SalesServiceClient{cc: cc}
}

func (c *SalesServiceClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+salesServiceName+"/"+method, in, out, opts...)
}

func (c *SalesServiceClient) CreateSale(ctx context.Context, in *CreateSaleRequestMsg, opts ...grpc.CallOption) (*CreateSaleReply, error) {
	out := new(CreateSaleReply)
	if err := c.invoke(ctx, "CreateSale", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SalesServiceClient) CancelSale(ctx context.Context, in *CancelSaleRequestMsg, opts ...grpc.CallOption) (*CancelSaleReply, error) {
	out := new(CancelSaleReply)
	if err := c.invoke(ctx, "CancelSale", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SalesServiceClient) ApproveReturn(ctx context.Context, in *ApproveReturnRequestMsg, opts ...grpc.CallOption) (*ApproveReturnReply, error) {
	out := new(ApproveReturnReply)
	if err := c.invoke(ctx, "ApproveReturn", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SalesServiceClient) AdjustStock(ctx context.Context, in *AdjustStockRequestMsg, opts ...grpc.CallOption) (*AdjustStockReply, error) {
	out := new(AdjustStockReply)
	if err := c.invoke(ctx, "AdjustStock", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
