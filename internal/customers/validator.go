package customers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
)

// Path is the internal lookup route served by the customers API.
func Path(id int64) string { return fmt.Sprintf("/internal/customers/%d", id) }

// Validator checks customer existence against the customers API.
type Validator struct{ Client *httpclient.Client }

// AssertCustomerExists maps a 404 to CUSTOMER_NOT_FOUND and every other
// failure, timeouts included, to EXTERNAL_SERVICE_ERROR.
func (v *Validator) AssertCustomerExists(ctx context.Context, customerID int64) error {
	_, err := v.Client.Get(ctx, Path(customerID), nil)
	if err == nil {
		return nil
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return apperr.ErrCustomerNotFound
	}
	logging.FromContext(ctx).Warn("customer lookup failed", zap.Int64("customer_id", customerID), zap.Error(err))
	return apperr.External(err)
}
