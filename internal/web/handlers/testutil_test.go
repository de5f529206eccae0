package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/customer-recognition/internal/database/mock"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 27, 10, 0, 0, 0, time.UTC)

// stubDetector records detections and answers with a fixed status
type stubDetector struct {
	mu     sync.Mutex
	status detection.Status
	ids    []string
}

func (d *stubDetector) HandleDetection(_ context.Context, customerID string) detection.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, customerID)
	return detection.Result{CustomerID: customerID, Status: d.status}
}

func (d *stubDetector) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

// stubPublisher maps capture paths to URLs
type stubPublisher struct {
	urls map[string]string
	err  error
}

func (p stubPublisher) Publish(_ context.Context, path string) (string, error) {
	return p.urls[path], p.err
}

// newTestEngine creates a loaded engine without prediction noise
func newTestEngine(t *testing.T, store *mock.MockCustomerStore) *prediction.Engine {
	t.Helper()
	e := prediction.NewEngine(store, nil,
		prediction.WithJitter(func() float64 { return 0 }),
		prediction.WithClock(func() time.Time { return t0 }),
	)
	require.NoError(t, e.Load(context.Background()))
	return e
}

// jsonRequest creates a request with a JSON body
func jsonRequest(method, path, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target), "body: %s", recorder.Body.String())
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, recorder.Code, "body: %s", recorder.Body.String())
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	assert.Equal(t, expectedMessage, result["error"])
}
