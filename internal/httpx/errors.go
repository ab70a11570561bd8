package httpx

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:                http.StatusBadRequest,
	apperr.KindIdempotencyKeyRequired:    http.StatusBadRequest,
	apperr.KindInvalidOrderStatus:        http.StatusBadRequest,
	apperr.KindProductNotFound:           http.StatusNotFound,
	apperr.KindOrderNotFound:             http.StatusNotFound,
	apperr.KindCustomerNotFound:          http.StatusNotFound,
	apperr.KindInsufficientStock:         http.StatusConflict,
	apperr.KindRequestInProgress:         http.StatusConflict,
	apperr.KindOrderAlreadyCanceled:      http.StatusConflict,
	apperr.KindCancellationWindowExpired: http.StatusForbidden,
	apperr.KindExternalService:           http.StatusBadGateway,
	apperr.KindUnauthorized:              http.StatusUnauthorized,
	apperr.KindForbidden:                 http.StatusForbidden,
}

var messageByKind = map[apperr.Kind]string{
	apperr.KindProductNotFound:           "product not found",
	apperr.KindOrderNotFound:             "order not found",
	apperr.KindCustomerNotFound:          "customer not found",
	apperr.KindInsufficientStock:         "insufficient stock",
	apperr.KindIdempotencyKeyRequired:    "header X-Idempotency-Key is required",
	apperr.KindRequestInProgress:         "request in progress",
	apperr.KindInvalidOrderStatus:        "order status does not allow this transition",
	apperr.KindOrderAlreadyCanceled:      "order is already canceled",
	apperr.KindCancellationWindowExpired: "cancellation period expired (10 minutes)",
	apperr.KindExternalService:           "customers service unavailable",
}

// statusFor maps a domain error to its HTTP status and body. Anything that
// is not an *apperr.Error is an internal failure.
func statusFor(err error) (int, ErrorResponse) {
	ae, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL", Message: "internal server error"}
	}
	code, ok := statusByKind[ae.Kind]
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL", Message: "internal server error"}
	}
	msg := ae.Message
	if msg == "" {
		msg = messageByKind[ae.Kind]
	}
	return code, ErrorResponse{Error: string(ae.Kind), Message: msg, ProductID: ae.ProductID}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("unhandled error", zap.Error(err))
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw sends pre-encoded JSON unchanged.
func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
