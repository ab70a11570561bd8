package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/customers"
)

type CustomerFinder interface {
	FindByID(ctx context.Context, id int64) (*customers.Customer, error)
}

type CustomersHandler struct {
	Customers    CustomerFinder
	ServiceToken string
}

func (h *CustomersHandler) Register(r chi.Router) {
	r.With(RequireServiceToken(h.ServiceToken)).Get("/internal/customers/{id}", h.getCustomer)
}

func (h *CustomersHandler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, apperr.Validation("customer id must be a positive integer"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Customers.FindByID(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
