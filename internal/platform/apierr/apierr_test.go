package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Invalid("x"), http.StatusBadRequest},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{Duplicate("x"), http.StatusConflict},
		{Unavailable("x"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NotFound("book not found")), http.StatusNotFound},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToHTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestCodeOfOutsideTaxonomy(t *testing.T) {
	assert.Equal(t, CodeForbidden, CodeOf(fmt.Errorf("tx: %w", Forbidden("only the owner"))))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("io")))
}

func TestFromErrHidesInternalText(t *testing.T) {
	body := FromErr(errors.New("dial tcp 10.0.0.1:3306: refused"))
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.Equal(t, "internal error", body.Error.Message)

	body = FromErr(Conflict("Transaction is not pending"))
	assert.Equal(t, CodeConflict, body.Error.Code)
	assert.Equal(t, "Transaction is not pending", body.Error.Message)
}
