package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"nil data has empty body", http.StatusOK, nil, ""},
		{"empty map", http.StatusOK, map[string]string{}, "{}\n"},
		{"created with payload", http.StatusCreated, map[string]int{"count": 42}, "{\"count\":42}\n"},
		{"array", http.StatusAccepted, []string{"a", "b"}, "[\"a\",\"b\"]\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.status, tc.data)

			assert.Equal(t, tc.status, recorder.Code)
			assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
			assert.Equal(t, tc.wantBody, recorder.Body.String())
		})
	}
}

func TestRespondError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		recorder := httptest.NewRecorder()
		respondError(recorder, status, "something went wrong")

		assertStatusCode(t, recorder, status)
		assertJSONError(t, recorder, "something went wrong")
	}
}

func TestDecodeJSON(t *testing.T) {
	var body struct {
		CustomerID string `json:"customer_id"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"customer_id":"C1"}`))
	require.NoError(t, decodeJSON(req, &body))
	assert.Equal(t, "C1", body.CustomerID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.ErrorIs(t, decodeJSON(req, &body), errEmptyBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{broken"))
	err := decodeJSON(req, &body)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errEmptyBody)
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "C1fake entry", sanitizeForLog("C1\nfake entry\r"))
}

func TestHealthCheck(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		recorder := httptest.NewRecorder()
		HealthCheck(recorder, httptest.NewRequest(method, "/api/health", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		var result map[string]string
		parseJSONResponse(t, recorder, &result)
		assert.Equal(t, "ok", result["status"])
	}
}
