package customers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
)

func TestAssertCustomerExists(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"found", http.StatusOK, nil},
		{"missing", http.StatusNotFound, apperr.ErrCustomerNotFound},
		{"forbidden", http.StatusForbidden, apperr.ErrExternalService},
		{"server error", http.StatusInternalServerError, apperr.ErrExternalService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/internal/customers/5", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			v := &Validator{Client: httpclient.New(srv.URL, "tok", time.Second)}
			err := v.AssertCustomerExists(context.Background(), 5)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAssertCustomerExistsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	v := &Validator{Client: httpclient.New(url, "tok", 200*time.Millisecond)}
	assert.ErrorIs(t, v.AssertCustomerExists(context.Background(), 1), apperr.ErrExternalService)
}
