package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasStatus(t *testing.T) {
	err := NotFound("top-up not found")
	require.True(t, HasStatus(err, StatusNotFound))
	require.False(t, HasStatus(err, StatusConflict))
	require.False(t, HasStatus(errors.New("plain"), StatusNotFound))
	require.False(t, HasStatus(nil, StatusNotFound))
}

func TestHasStatus_Wrapped(t *testing.T) {
	err := fmt.Errorf("resolve: %w", Conflict("already credited"))
	require.True(t, HasStatus(err, StatusConflict))
}

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusConflict, StatusConflict.HTTPStatus())
	require.Equal(t, http.StatusUnprocessableEntity, StatusUnprocessableEntity.HTTPStatus())
	require.Equal(t, http.StatusBadGateway, StatusBadGateway.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StatusUnknown.HTTPStatus())
}

func TestWithErr(t *testing.T) {
	cause := errors.New("connection refused")
	err := BadGateway("panel unreachable", WithErr(cause))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
}
