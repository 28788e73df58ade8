package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors below match these with errors.Is.
var (
	ErrValidation        = errors.New("validation failure")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBusinessRule      = errors.New("business rule violation")
	ErrNotFound          = errors.New("not found")
)

// Business rule codes
const (
	CodeMissingCustomer   = "MISSING_CUSTOMER"
	CodeMissingUser       = "MISSING_USER"
	CodeNoItems           = "NO_ITEMS"
	CodeDuplicateProduct  = "DUPLICATE_PRODUCT"
	CodeNotPersisted      = "NOT_PERSISTED"
	CodeAlreadyPersisted  = "ALREADY_PERSISTED"
	CodeAlreadyCancelled  = "ALREADY_CANCELLED"
	CodeBlankReason       = "BLANK_REASON"
	CodeNotPending        = "NOT_PENDING"
	CodeNegativeStock     = "NEGATIVE_STOCK"
	CodeSaleCancelled     = "SALE_CANCELLED"
	CodeReturnExceedsSale = "RETURN_EXCEEDS_SALE"
	CodeCustomerMismatch  = "CUSTOMER_MISMATCH"
	CodeTotalMismatch     = "TOTAL_MISMATCH"
	CodeProductRetired    = "PRODUCT_RETIRED"
)

var (
	ErrAlreadyCancelled  = &BusinessRuleError{Code: CodeAlreadyCancelled, Message: "sale is already cancelled"}
	ErrNotPending        = &BusinessRuleError{Code: CodeNotPending, Message: "return is not pending"}
	ErrDuplicateProduct  = &BusinessRuleError{Code: CodeDuplicateProduct, Message: "product appears more than once"}
	ErrNotPersisted      = &BusinessRuleError{Code: CodeNotPersisted, Message: "aggregate has no identity yet"}
	ErrNegativeStock     = &BusinessRuleError{Code: CodeNegativeStock, Message: "stock cannot be negative"}
	ErrBlankReason       = &BusinessRuleError{Code: CodeBlankReason, Message: "reason is required"}
	ErrSaleCancelled     = &BusinessRuleError{Code: CodeSaleCancelled, Message: "sale is cancelled"}
	ErrReturnExceedsSale = &BusinessRuleError{Code: CodeReturnExceedsSale, Message: "returned quantity exceeds sold quantity"}
	ErrCustomerMismatch  = &BusinessRuleError{Code: CodeCustomerMismatch, Message: "customer does not match the sale"}
	ErrProductRetired    = &BusinessRuleError{Code: CodeProductRetired, Message: "product inventory has been retired"}
)

// ValidationError reports malformed input such as an empty id or a non-positive quantity.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError carries both sides of a failed decrement.
type InsufficientStockError struct {
	ProductID string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, required %d",
		e.ProductID, e.Available, e.Required)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// BusinessRuleError is an invariant or state-machine violation identified by Code.
type BusinessRuleError struct {
	Code    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches ErrBusinessRule and any BusinessRuleError carrying the same code.
func (e *BusinessRuleError) Is(target error) bool {
	if target == ErrBusinessRule {
		return true
	}
	var other *BusinessRuleError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

func violation(code, message string) error {
	return &BusinessRuleError{Code: code, Message: message}
}

// NotFoundError reports a missing (or soft-deleted) aggregate.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}
