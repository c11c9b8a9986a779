package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsMapToStatusCodes(t *testing.T) {
	cases := []struct {
		err  *APIError
		typ  ErrorType
		code int
	}{
		{NewValidationError("bad", nil), ErrorTypeValidation, http.StatusBadRequest},
		{NewNotFoundError("gone", nil), ErrorTypeNotFound, http.StatusNotFound},
		{NewConflictError("dup", nil), ErrorTypeConflict, http.StatusConflict},
		{NewDatabaseError("db", nil), ErrorTypeDatabase, http.StatusInternalServerError},
		{NewInternalError("boom", nil), ErrorTypeInternal, http.StatusInternalServerError},
		{NewDeviceUnavailableError("no device", nil), ErrorTypeDeviceUnavailable, http.StatusNotFound},
		{NewDeviceUnreachableError("refused", nil), ErrorTypeDeviceUnreachable, http.StatusServiceUnavailable},
		{NewDeviceTimeoutError("slow", nil), ErrorTypeDeviceTimeout, http.StatusGatewayTimeout},
	}
	for _, c := range cases {
		assert.Equal(t, c.typ, c.err.Type)
		assert.Equal(t, c.code, c.err.Code)
	}
}

func TestWrappedErrorStaysInternal(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewDatabaseError("failed to load firmware", cause).WithRequestID("req_1")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")

	raw, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "req_1", body["request_id"])
	assert.Equal(t, "failed to load firmware", body["message"])
	assert.NotContains(t, string(raw), "connection reset")
	assert.NotContains(t, body, "details")
}
