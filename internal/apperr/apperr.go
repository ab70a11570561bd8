// Package apperr holds the named failure signals shared by the order,
// idempotency and customer components. Errors carry a Kind plus structured
// fields so callers destructure them with errors.As instead of parsing text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation                Kind = "VALIDATION"
	KindProductNotFound           Kind = "PRODUCT_NOT_FOUND"
	KindOrderNotFound             Kind = "ORDER_NOT_FOUND"
	KindCustomerNotFound          Kind = "CUSTOMER_NOT_FOUND"
	KindInsufficientStock         Kind = "INSUFFICIENT_STOCK"
	KindIdempotencyKeyRequired    Kind = "IDEMPOTENCY_KEY_REQUIRED"
	KindRequestInProgress         Kind = "REQUEST_IN_PROGRESS"
	KindInvalidOrderStatus        Kind = "INVALID_ORDER_STATUS"
	KindOrderAlreadyCanceled      Kind = "ORDER_ALREADY_CANCELED"
	KindCancellationWindowExpired Kind = "CANCELLATION_WINDOW_EXPIRED"
	KindExternalService           Kind = "EXTERNAL_SERVICE_ERROR"
	KindUnauthorized              Kind = "UNAUTHORIZED"
	KindForbidden                 Kind = "FORBIDDEN"
)

type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryNotFound     Category = "not_found"
	CategoryConflict     Category = "conflict"
	CategoryBusinessRule Category = "business_rule"
	CategoryExternal     Category = "external"
	CategoryAuth         Category = "auth"
	CategoryInternal     Category = "internal"
)

var categories = map[Kind]Category{
	KindValidation:                CategoryValidation,
	KindIdempotencyKeyRequired:    CategoryValidation,
	KindProductNotFound:           CategoryNotFound,
	KindOrderNotFound:             CategoryNotFound,
	KindCustomerNotFound:          CategoryNotFound,
	KindInsufficientStock:         CategoryConflict,
	KindRequestInProgress:         CategoryConflict,
	KindOrderAlreadyCanceled:      CategoryConflict,
	KindInvalidOrderStatus:        CategoryBusinessRule,
	KindCancellationWindowExpired: CategoryBusinessRule,
	KindExternalService:           CategoryExternal,
	KindUnauthorized:              CategoryAuth,
	KindForbidden:                 CategoryAuth,
}

// Error is a domain signal. ProductID is set for the stock and product kinds.
type Error struct {
	Kind      Kind
	ProductID int64
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.ProductID != 0 {
		msg = fmt.Sprintf("%s: product %d", msg, e.ProductID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only, so errors.Is(err, ErrOrderNotFound) holds for any
// order-not-found error regardless of its fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Category() Category {
	if c, ok := categories[e.Kind]; ok {
		return c
	}
	return CategoryInternal
}

var (
	ErrOrderNotFound             = &Error{Kind: KindOrderNotFound}
	ErrCustomerNotFound          = &Error{Kind: KindCustomerNotFound}
	ErrIdempotencyKeyRequired    = &Error{Kind: KindIdempotencyKeyRequired}
	ErrRequestInProgress         = &Error{Kind: KindRequestInProgress}
	ErrInvalidOrderStatus        = &Error{Kind: KindInvalidOrderStatus}
	ErrOrderAlreadyCanceled      = &Error{Kind: KindOrderAlreadyCanceled}
	ErrCancellationWindowExpired = &Error{Kind: KindCancellationWindowExpired}
	ErrProductNotFound           = &Error{Kind: KindProductNotFound}
	ErrInsufficientStock         = &Error{Kind: KindInsufficientStock}
	ErrExternalService           = &Error{Kind: KindExternalService}
	ErrValidation                = &Error{Kind: KindValidation}
)

func ProductNotFound(productID int64) *Error {
	return &Error{Kind: KindProductNotFound, ProductID: productID}
}

func InsufficientStock(productID int64) *Error {
	return &Error{Kind: KindInsufficientStock, ProductID: productID}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func External(err error) *Error {
	return &Error{Kind: KindExternalService, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
