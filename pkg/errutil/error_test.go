package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsKeepCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal("failed to approve review", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusInternal, Code(err))
	require.Contains(t, err.Error(), "connection refused")
}

func TestJSONHidesCause(t *testing.T) {
	err := Conflict("review already processed", errors.New("secret detail")).(BaseError)

	body := err.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, StatusConflict, body["code"])
	require.Equal(t, "review already processed", body["message"])
	require.NotContains(t, fmt.Sprint(body), "secret detail")
	_, hasDetails := body["details"]
	require.False(t, hasDetails)
}

func TestCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve: %w", NotFound("review not found", nil))

	require.Equal(t, StatusNotFound, Code(err))
	require.True(t, Is(err, StatusNotFound))
	require.Equal(t, StatusInternal, Code(errors.New("boom")))
	require.Equal(t, CoreStatus(""), Code(nil))
}

func TestWrap(t *testing.T) {
	original := Forbidden("admin only", nil)
	require.Equal(t, original, Wrap(original, "ignored"))

	wrapped := Wrap(errors.New("disk full"), "failed to save")
	require.Equal(t, StatusInternal, Code(wrapped))
	require.Nil(t, Wrap(nil, "nothing"))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:       http.StatusBadRequest,
		StatusValidationFailed: http.StatusBadRequest,
		StatusUnauthorized:     http.StatusUnauthorized,
		StatusForbidden:        http.StatusForbidden,
		StatusNotFound:         http.StatusNotFound,
		StatusMethodNotAllowed: http.StatusMethodNotAllowed,
		StatusConflict:         http.StatusConflict,
		StatusTooManyRequests:  http.StatusTooManyRequests,
		StatusInternal:         http.StatusInternalServerError,
		CoreStatus("???"):      http.StatusInternalServerError,
	}
	for status, want := range cases {
		require.Equal(t, want, status.HTTPStatus(), status)
	}
}
