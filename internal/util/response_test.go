package util

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResponse(t *testing.T) {
	t.Parallel()
	rr := httptest.NewRecorder()
	JSONResponse(rr, http.StatusAccepted, map[string]any{"accepted": 3})

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 3, body["accepted"])
}

func TestJSONResponseEncodeErrorDoesNotPanic(t *testing.T) {
	t.Parallel()
	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		JSONResponse(rr, http.StatusOK, map[string]any{"bad": make(chan int)})
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestJSONError(t *testing.T) {
	t.Parallel()
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusBadRequest, "Invalid JSON")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON"}`, rr.Body.String())
}
