package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNotifierPaused is returned while the notifier is backing off after repeated failures.
var ErrNotifierPaused = goerr.New("detection notifications paused")

// HTTPNotifier posts detected customer ids to the server's customer_detected endpoint.
//
// After limit consecutive failures calls are skipped until the failure counter is
// reset, which happens on every success and every resetEvery.
type HTTPNotifier struct {
	url        string
	client     *http.Client
	limit      int
	resetEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	failures  int
	lastReset time.Time
}

// NewHTTPNotifier creates a notifier with the default timeout and failure limit.
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{
		url:        url,
		client:     &http.Client{Timeout: constants.NotifyTimeout},
		limit:      constants.NotifyFailureLimit,
		resetEvery: constants.NotifyResetInterval,
		now:        time.Now,
		lastReset:  time.Now(),
	}
}

// Online reports whether notifications are currently being sent.
func (n *HTTPNotifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maybeResetLocked()
	return n.failures < n.limit
}

func (n *HTTPNotifier) maybeResetLocked() {
	now := n.now()
	if now.Sub(n.lastReset) > n.resetEvery {
		n.failures = 0
		n.lastReset = now
	}
}

// Notify sends customerID. Returns ErrNotifierPaused without a request while paused.
func (n *HTTPNotifier) Notify(ctx context.Context, customerID string) error {
	n.mu.Lock()
	n.maybeResetLocked()
	if n.failures >= n.limit {
		n.mu.Unlock()
		return ErrNotifierPaused
	}
	n.mu.Unlock()

	err := n.post(ctx, customerID)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.failures++
		return err
	}
	n.failures = 0
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, customerID string) error {
	body, err := json.Marshal(map[string]string{"customer_id": customerID})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("url", n.url))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "notification request failed", goerr.V("url", n.url))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return goerr.New("notification rejected", goerr.V("status", resp.StatusCode), goerr.V("customer_id", customerID))
	}
	return nil
}
