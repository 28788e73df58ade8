package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/core/service"
)

type SaleService interface {
	CreateSale(ctx context.Context, in service.CreateSaleInput) (*domain.Sale, error)
	CancelSale(ctx context.Context, saleID int64, userID, reason string) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID int64) (*domain.Sale, error)
}

type ReturnService interface {
	RequestReturn(ctx context.Context, in service.RequestReturnInput) (*domain.Return, error)
	ApproveReturn(ctx context.Context, returnID int64, approvedByUserID string) (*domain.Return, error)
	RejectReturn(ctx context.Context, returnID int64, rejectedByUserID, reason string) (*domain.Return, error)
	GetReturn(ctx context.Context, returnID int64) (*domain.Return, error)
}

type InventoryService interface {
	AdjustStock(ctx context.Context, productID string, quantity int, op service.AdjustOperation) (int, error)
	GetStock(ctx context.Context, productID string) (int, error)
	Retire(ctx context.Context, productID string) error
}

type HTTPHandler struct {
	sales     SaleService
	returns   ReturnService
	inventory InventoryService
	logger    *zap.Logger
}

func NewHTTPHandler(sales SaleService, returns ReturnService, inventory InventoryService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{sales: sales, returns: returns, inventory: inventory, logger: logger}
}

type LineItemRequest struct {
	ProductID string          `json:"productId" binding:"notblank"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CreateSaleRequest struct {
	RequestID  string            `json:"requestId"`
	CustomerID string            `json:"customerId" binding:"notblank"`
	UserID     string            `json:"userId" binding:"notblank"`
	Items      []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CancelSaleRequest struct {
	UserID string `json:"userId" binding:"notblank"`
	Reason string `json:"reason" binding:"notblank"`
}

type RequestReturnRequest struct {
	SaleID            int64             `json:"saleId" binding:"required,gt=0"`
	CustomerID        string            `json:"customerId" binding:"notblank"`
	ProcessedByUserID string            `json:"processedByUserId" binding:"notblank"`
	Type              string            `json:"type" binding:"required,oneof=refund exchange"`
	Reason            string            `json:"reason" binding:"notblank"`
	Items             []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

type ApproveReturnRequest struct {
	UserID string `json:"userId" binding:"notblank"`
}

type RejectReturnRequest struct {
	UserID string `json:"userId" binding:"notblank"`
	Reason string `json:"reason" binding:"notblank"`
}

type AdjustStockRequest struct {
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation" binding:"required,oneof=add set"`
}

type LineItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

type SaleResponse struct {
	ID                 int64              `json:"id"`
	CustomerID         string             `json:"customerId"`
	UserID             string             `json:"userId"`
	TotalAmount        string             `json:"totalAmount"`
	IsCancelled        bool               `json:"isCancelled"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	CancelledByUserID  string             `json:"cancelledByUserId,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	Items              []LineItemResponse `json:"items"`
}

type ReturnResponse struct {
	ID          int64              `json:"id"`
	SaleID      int64              `json:"saleId"`
	CustomerID  string             `json:"customerId"`
	Type        string             `json:"type"`
	Status      string             `json:"status"`
	TotalRefund string             `json:"totalRefund"`
	Items       []LineItemResponse `json:"items"`
}

type StockResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func toSaleResponse(s *domain.Sale) SaleResponse {
	resp := SaleResponse{
		ID:                 s.ID(),
		CustomerID:         s.CustomerID(),
		UserID:             s.UserID(),
		TotalAmount:        s.TotalAmount().String(),
		IsCancelled:        s.IsCancelled(),
		CancelledAt:        s.CancelledAt(),
		CancelledByUserID:  s.CancelledByUserID(),
		CancellationReason: s.CancellationReason(),
		CreatedAt:          s.CreatedAt(),
	}
	for _, d := range s.Details() {
		resp.Items = append(resp.Items, LineItemResponse{
			ProductID: d.ProductID(),
			Quantity:  d.Quantity(),
			UnitPrice: d.UnitPrice().String(),
			Total:     d.Total().String(),
		})
	}
	return resp
}

func toReturnResponse(r *domain.Return) ReturnResponse {
	resp := ReturnResponse{
		ID:          r.ID(),
		SaleID:      r.SaleID(),
		CustomerID:  r.CustomerID(),
		Type:        string(r.Type()),
		Status:      string(r.Status()),
		TotalRefund: r.TotalRefund().String(),
	}
	for _, d := range r.Details() {
		resp.Items = append(resp.Items, LineItemResponse{
			ProductID: d.ProductID(),
			Quantity:  d.Quantity(),
			UnitPrice: d.UnitPrice().String(),
			Total:     d.Total().String(),
		})
	}
	return resp
}

func (h *HTTPHandler) CreateSale(c *gin.Context) {
	var req CreateSaleRequest
	if !h.bind(c, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader("X-Request-ID")
	}

	items := make([]domain.SaleItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.SaleItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	sale, err := h.sales.CreateSale(c.Request.Context(), service.CreateSaleInput{
		RequestID:  req.RequestID,
		CustomerID: req.CustomerID,
		UserID:     req.UserID,
		Items:      items,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSaleResponse(sale))
}

func (h *HTTPHandler) GetSale(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	sale, err := h.sales.GetSale(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSaleResponse(sale))
}

func (h *HTTPHandler) CancelSale(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req CancelSaleRequest
	if !h.bind(c, &req) {
		return
	}
	sale, err := h.sales.CancelSale(c.Request.Context(), id, req.UserID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSaleResponse(sale))
}

func (h *HTTPHandler) RequestReturn(c *gin.Context) {
	var req RequestReturnRequest
	if !h.bind(c, &req) {
		return
	}

	items := make([]domain.ReturnItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.ReturnItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	ret, err := h.returns.RequestReturn(c.Request.Context(), service.RequestReturnInput{
		SaleID:            req.SaleID,
		CustomerID:        req.CustomerID,
		ProcessedByUserID: req.ProcessedByUserID,
		Type:              domain.ReturnType(req.Type),
		Reason:            req.Reason,
		Items:             items,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReturnResponse(ret))
}

func (h *HTTPHandler) GetReturn(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	ret, err := h.returns.GetReturn(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReturnResponse(ret))
}

func (h *HTTPHandler) ApproveReturn(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ApproveReturnRequest
	if !h.bind(c, &req) {
		return
	}
	ret, err := h.returns.ApproveReturn(c.Request.Context(), id, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReturnResponse(ret))
}

func (h *HTTPHandler) RejectReturn(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req RejectReturnRequest
	if !h.bind(c, &req) {
		return
	}
	ret, err := h.returns.RejectReturn(c.Request.Context(), id, req.UserID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReturnResponse(ret))
}

func (h *HTTPHandler) GetStock(c *gin.Context) {
	productID := c.Param("productId")
	qty, err := h.inventory.GetStock(c.Request.Context(), productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, StockResponse{ProductID: productID, Quantity: qty})
}

func (h *HTTPHandler) AdjustStock(c *gin.Context) {
	productID := c.Param("productId")
	var req AdjustStockRequest
	if !h.bind(c, &req) {
		return
	}
	qty, err := h.inventory.AdjustStock(c.Request.Context(), productID, req.Quantity, service.AdjustOperation(req.Operation))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, StockResponse{ProductID: productID, Quantity: qty})
}

func (h *HTTPHandler) RetireStock(c *gin.Context) {
	if err := h.inventory.Retire(c.Request.Context(), c.Param("productId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: CodeValidationFailed, Message: describeBindError(err)})
		return false
	}
	return true
}

func (h *HTTPHandler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: CodeValidationFailed, Message: "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	mapped := mapError(err)
	if mapped.httpStatus >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(mapped.httpStatus, mapped.body)
}
