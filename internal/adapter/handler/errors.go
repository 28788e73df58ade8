package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/core/service"
	"github.com/rl1809/pos-inventory/internal/port"
)

// Error codes returned to clients for errors that carry no business rule code.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeConflict          = "CONFLICT"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type mappedError struct {
	httpStatus int
	grpcCode   codes.Code
	body       ErrorResponse
}

// mapError translates the error taxonomy into transport status codes.
// Internal errors never leak their message.
func mapError(err error) mappedError {
	var rule *domain.BusinessRuleError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return mappedError{http.StatusBadRequest, codes.InvalidArgument, ErrorResponse{CodeValidationFailed, err.Error()}}
	case errors.Is(err, domain.ErrNotFound):
		return mappedError{http.StatusNotFound, codes.NotFound, ErrorResponse{CodeNotFound, err.Error()}}
	case errors.Is(err, domain.ErrInsufficientStock):
		return mappedError{http.StatusConflict, codes.FailedPrecondition, ErrorResponse{CodeInsufficientStock, err.Error()}}
	case errors.As(err, &rule):
		return mappedError{http.StatusUnprocessableEntity, codes.FailedPrecondition, ErrorResponse{rule.Code, rule.Message}}
	case errors.Is(err, service.ErrDuplicateRequest):
		return mappedError{http.StatusConflict, codes.AlreadyExists, ErrorResponse{CodeDuplicateRequest, err.Error()}}
	case errors.Is(err, port.ErrConflict):
		return mappedError{http.StatusConflict, codes.Aborted, ErrorResponse{CodeConflict, "the record was changed by another request, retry"}}
	case errors.Is(err, context.DeadlineExceeded):
		return mappedError{http.StatusGatewayTimeout, codes.DeadlineExceeded, ErrorResponse{CodeTimeout, "request timed out"}}
	default:
		return mappedError{http.StatusInternalServerError, codes.Internal, ErrorResponse{CodeInternal, "internal error"}}
	}
}
