package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/saga"
)

type SagaHandler struct {
	Orchestrator *saga.Orchestrator
}

func (h *SagaHandler) Register(r chi.Router) {
	r.Post("/orchestrations/orders", h.createAndConfirm)
}

// sagaError is the orchestrator's own failure body. Downstream failures are
// passed through untouched instead.
type sagaError struct {
	Error string `json:"error"`
}

func (h *SagaHandler) createAndConfirm(w http.ResponseWriter, r *http.Request) {
	var req saga.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sagaError{Error: "invalid json"})
		return
	}

	res, err := h.Orchestrator.Run(r.Context(), req)
	if err == nil {
		writeJSON(w, http.StatusCreated, res)
		return
	}

	var se *httpclient.StatusError
	switch {
	case errors.Is(err, saga.ErrMissingFields):
		writeJSON(w, http.StatusBadRequest, sagaError{Error: err.Error()})
	case errors.As(err, &se):
		writeRaw(w, se.Status, se.Body)
	default:
		logging.FromContext(r.Context()).Error("orchestration failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, sagaError{Error: err.Error()})
	}
}
