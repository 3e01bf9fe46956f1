package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, http.StatusBadRequest, ErrorResponse("Missing data.", "validation_failed").
		WithDetails(map[string]string{"vatin": "is required"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Missing data.", body["message"])
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, map[string]interface{}{"vatin": "is required"}, body["details"])
	assert.NotContains(t, body, "data")
}

func TestSuccessResponse(t *testing.T) {
	resp := SuccessResponse("ok", 3)

	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Data)
	assert.Empty(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}
